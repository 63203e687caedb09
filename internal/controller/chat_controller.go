package controller

import (
	"bufio"
	"context"
	"encoding/json"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/service"
	"docchat-be/pkg/rag"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router, limits RouteLimits)
	Chat(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{chatService: chatService}
}

func (c *chatController) RegisterRoutes(r fiber.Router, limits RouteLimits) {
	r.Post("/chat", orPass(limits.Chat), c.Chat)
	r.Get("/sessions/:owner_id", c.ListSessions)
	r.Delete("/sessions/:session_id", c.DeleteSession)
	r.Get("/history/:session_id", c.History)
}

// Chat streams NDJSON: one sources frame, then content frames until the
// connection closes. Errors before the first frame are plain JSON errors.
func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// The body is written after this handler returns, so generation gets its
	// own context, canceled when the client goes away.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx.UserContext()))
	stream, err := c.chatService.Chat(streamCtx, &req)
	if err != nil {
		cancel()
		return err
	}

	sources := stream.Sources
	if sources == nil {
		sources = []rag.Source{}
	}

	ctx.Set(fiber.HeaderContentType, "application/x-ndjson")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		delivered := writeFrame(w, dto.StreamFrame{Type: dto.StreamFrameSources, Data: sources}) == nil
		if !delivered {
			cancel()
		}
		for fragment := range stream.Fragments() {
			if !delivered {
				continue
			}
			if err := writeFrame(w, dto.StreamFrame{Type: dto.StreamFrameContent, Data: fragment}); err != nil {
				delivered = false
				cancel()
			}
		}
		stream.Complete(delivered)
	})
	return nil
}

func writeFrame(w *bufio.Writer, frame dto.StreamFrame) error {
	line, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.Flush()
}

func (c *chatController) ListSessions(ctx *fiber.Ctx) error {
	res, err := c.chatService.ListSessions(ctx.UserContext(), ctx.Params("owner_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *chatController) History(ctx *fiber.Ctx) error {
	sessionId, err := uuidParam(ctx, "session_id")
	if err != nil {
		return err
	}

	res, err := c.chatService.History(ctx.UserContext(), sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	sessionId, err := uuidParam(ctx, "session_id")
	if err != nil {
		return err
	}

	if err := c.chatService.DeleteSession(ctx.UserContext(), sessionId); err != nil {
		return err
	}
	return ctx.JSON(dto.StatusResponse{Status: "deleted"})
}
