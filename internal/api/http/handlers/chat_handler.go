package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/edusupport/internal/api/dto"
	"github.com/spec-kit/edusupport/internal/auth"
	"github.com/spec-kit/edusupport/internal/service"
	apperrors "github.com/spec-kit/edusupport/pkg/util"
)

// ChatHandler exposes the REST surface of ticket chat: transcript fetch,
// message submission and receipt marks. Live traffic goes over the websocket
// gateway; these endpoints are the durable fallback.
type ChatHandler struct {
	chat    *service.ChatService
	tickets *service.TicketService
}

// NewChatHandler constructs handler.
func NewChatHandler(chat *service.ChatService, tickets *service.TicketService) *ChatHandler {
	return &ChatHandler{chat: chat, tickets: tickets}
}

// Transcript handles GET /api/tickets/:id/chat.
func (h *ChatHandler) Transcript(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticketID := c.Params("id")

	ticket, err := h.tickets.Get(c.Context(), principal, ticketID)
	if err != nil {
		return err
	}
	conv, msgs, err := h.chat.Transcript(c.Context(), principal, ticketID)
	if err != nil {
		return err
	}

	resp := dto.TranscriptResponse{
		TicketID:     ticketID,
		TicketStatus: ticket.Status,
		Messages:     make([]dto.MessageResponse, 0, len(msgs)),
	}
	if conv != nil {
		resp.ConversationID = conv.ID
	}
	for i := range msgs {
		resp.Messages = append(resp.Messages, dto.MessageFromDomain(&msgs[i], principal.ID))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// SendMessage handles POST /api/tickets/:id/chat/messages.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	msg, ticket, err := h.chat.SubmitMessage(c.Context(), principal, c.Params("id"), req.Body, dto.AttachmentInputsToService(req.Attachments))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.SendMessageResponse{
		Message:      dto.MessageFromDomain(msg, principal.ID),
		TicketStatus: ticket.Status,
	}})
}

// MarkDelivered handles PATCH /api/chat/messages/:id/delivered.
func (h *ChatHandler) MarkDelivered(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.chat.MarkDelivered(c.Context(), c.Params("id"), principal.ID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkSeen handles PATCH /api/chat/messages/:id/seen.
func (h *ChatHandler) MarkSeen(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.chat.MarkSeen(c.Context(), c.Params("id"), principal.ID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// DeliveryStatus handles GET /api/chat/messages/:id/status.
func (h *ChatHandler) DeliveryStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	messageID := c.Params("id")
	state, err := h.chat.DeliveryStatus(c.Context(), messageID, principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DeliveryStatusResponse{MessageID: messageID, Delivery: state}})
}
