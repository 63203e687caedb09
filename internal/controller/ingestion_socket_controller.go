package controller

import (
	"docchat-be/internal/service"
	internalWS "docchat-be/internal/websocket"
	"docchat-be/pkg/rag/ingestion"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type IIngestionSocketController interface {
	RegisterRoutes(r fiber.Router, limits RouteLimits)
	Watch(ctx *fiber.Ctx) error
}

type ingestionSocketController struct {
	hub             *internalWS.Hub
	documentService service.IDocumentService
}

func NewIngestionSocketController(hub *internalWS.Hub, documentService service.IDocumentService) IIngestionSocketController {
	return &ingestionSocketController{hub: hub, documentService: documentService}
}

func (c *ingestionSocketController) RegisterRoutes(r fiber.Router, _ RouteLimits) {
	r.Get("/ws/ingestions/:session_id", c.Watch)
}

// Watch upgrades to a websocket that pushes every status change of the
// session's ingestion job.
func (c *ingestionSocketController) Watch(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	sessionId, err := uuidParam(ctx, "session_id")
	if err != nil {
		return err
	}

	res, err := c.documentService.IngestionStatus(ctx.UserContext(), sessionId)
	if err != nil {
		return err
	}
	current := &ingestion.Status{
		JobID:     res.JobId,
		SessionID: res.SessionId,
		Filename:  res.Filename,
		State:     ingestion.State(res.State),
		Chunks:    res.Chunks,
		Committed: res.Committed,
		Error:     res.Error,
		UpdatedAt: res.UpdatedAt,
	}

	return websocket.New(func(conn *websocket.Conn) {
		internalWS.ServeWs(c.hub, conn, sessionId.String(), current)
	})(ctx)
}
