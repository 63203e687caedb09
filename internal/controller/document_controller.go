package controller

import (
	"fmt"
	"io"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/service"
	"docchat-be/pkg/rag"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IDocumentController interface {
	RegisterRoutes(r fiber.Router, limits RouteLimits)
	Upload(ctx *fiber.Ctx) error
	IngestionStatus(ctx *fiber.Ctx) error
}

type documentController struct {
	documentService service.IDocumentService
}

func NewDocumentController(documentService service.IDocumentService) IDocumentController {
	return &documentController{documentService: documentService}
}

func (c *documentController) RegisterRoutes(r fiber.Router, limits RouteLimits) {
	r.Post("/upload", orPass(limits.Upload), c.Upload)
	r.Get("/ingestions/:session_id", c.IngestionStatus)
}

// Upload accepts multipart "file" and an optional "user_id" form field.
func (c *documentController) Upload(ctx *fiber.Ctx) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: multipart field \"file\" is required", rag.ErrInvalidInput)
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	req := &dto.UploadRequest{Filename: fh.Filename, Data: data}
	if raw := ctx.FormValue("user_id"); raw != "" {
		userId, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: user_id must be a UUID", rag.ErrInvalidInput)
		}
		req.UserId = &userId
	}
	// A bearer token pins the owner; a conflicting form value is refused.
	if authed, ok := serverutils.UserID(ctx); ok {
		if req.UserId != nil && *req.UserId != authed {
			return fiber.NewError(fiber.StatusForbidden, "user_id does not match token")
		}
		req.UserId = &authed
	}

	res, err := c.documentService.Upload(ctx.UserContext(), req)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *documentController) IngestionStatus(ctx *fiber.Ctx) error {
	sessionId, err := uuidParam(ctx, "session_id")
	if err != nil {
		return err
	}

	res, err := c.documentService.IngestionStatus(ctx.UserContext(), sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Ingestion status retrieved", res))
}
