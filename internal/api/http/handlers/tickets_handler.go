package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/edusupport/internal/api/dto"
	"github.com/spec-kit/edusupport/internal/auth"
	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/service"
	apperrors "github.com/spec-kit/edusupport/pkg/util"
)

// TicketsHandler exposes ticket lifecycle endpoints. Status changes go through
// the chat service so every transition is broadcast to the ticket room.
type TicketsHandler struct {
	tickets *service.TicketService
	chat    *service.ChatService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, chat *service.ChatService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, chat: chat}
}

// Create handles POST /api/tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	ticket, err := h.tickets.Create(c.Context(), principal, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// List handles GET /api/tickets. Results are scoped to the caller's role.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var statuses []domain.TicketStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.TicketStatus(strings.TrimSpace(part))
			if !domain.ValidStatus(status) {
				return apperrors.NewValidationError("unknown ticket status", map[string]any{"status": status})
			}
			statuses = append(statuses, status)
		}
	}
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	tickets, err := h.tickets.List(c.Context(), principal, statuses, limit, offset)
	if err != nil {
		return err
	}

	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.TicketFromDomain(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{Tickets: items, Count: len(items)}})
}

// Get handles GET /api/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	ticket, err := h.tickets.Get(c.Context(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// Assign handles PUT /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.TeacherID == "" {
		return apperrors.NewValidationError("teacher_id required", nil)
	}

	ticket, err := h.tickets.Assign(c.Context(), principal, c.Params("id"), req.TeacherID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// UpdateStatus handles PUT /api/tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	ticket, err := h.chat.UpdateStatus(c.Context(), principal, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
