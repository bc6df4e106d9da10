package handlers

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/edusupport/internal/api/dto"
	"github.com/spec-kit/edusupport/internal/auth"
	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/events"
	"github.com/spec-kit/edusupport/internal/service"
	"github.com/spec-kit/edusupport/internal/session"
)

const (
	wsPrincipalKey = "ws_principal"
	wsTicketKey    = "ws_ticket"
)

// WSHandler upgrades ticket room connections and pumps room events to the
// client. Each connection runs its own session view that mirrors what the
// client renders, so delivery acks and seen sweeps happen server side.
type WSHandler struct {
	chat    *service.ChatService
	tickets *service.TicketService
	broker  events.Broker
	authMW  *auth.AuthMiddleware
	logger  *zap.Logger
}

// NewWSHandler constructs handler.
func NewWSHandler(chat *service.ChatService, tickets *service.TicketService, broker events.Broker, authMW *auth.AuthMiddleware, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{chat: chat, tickets: tickets, broker: broker, authMW: authMW, logger: logger}
}

// Upgrade authenticates the caller and checks room access before the protocol
// switch. Browsers cannot set headers on websocket dials, so the token rides
// in the query string.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	principal, err := h.authMW.Authenticate(c, c.Query("token"))
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Get(c.Context(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	c.Locals(wsPrincipalKey, principal)
	c.Locals(wsTicketKey, ticket)
	return c.Next()
}

// Handle returns the websocket connection handler.
func (h *WSHandler) Handle() fiber.Handler {
	return websocket.New(h.serve)
}

type clientFrame struct {
	Action    string `json:"action"`
	MessageID string `json:"message_id,omitempty"`
}

type transcriptFrame struct {
	Type     string                `json:"type"`
	TicketID string                `json:"ticket_id"`
	Status   domain.TicketStatus   `json:"status"`
	Messages []dto.MessageResponse `json:"messages"`
}

func (h *WSHandler) serve(conn *websocket.Conn) {
	defer conn.Close()

	principal := conn.Locals(wsPrincipalKey).(*domain.User)
	ticket := conn.Locals(wsTicketKey).(*domain.Ticket)
	ctx := context.Background()
	logger := h.logger.With(zap.String("ticket_id", ticket.ID), zap.String("user_id", principal.ID))

	sess := session.New(ticket.ID, principal.ID, h.chat, logger)
	_, msgs, err := h.chat.Transcript(ctx, principal, ticket.ID)
	if err != nil {
		logger.Warn("transcript load failed", zap.Error(err))
		return
	}
	sess.Seed(ticket.Status, msgs)

	sub, err := h.broker.Join(ticket.ID)
	if err != nil {
		logger.Warn("room join failed", zap.Error(err))
		return
	}
	defer func() {
		h.broker.Leave(ticket.ID, sub)
	}()

	// Snapshot first so the client renders history before live events.
	history := sess.Transcript()
	snapshot := transcriptFrame{
		Type:     "transcript",
		TicketID: ticket.ID,
		Status:   sess.Status(),
		Messages: make([]dto.MessageResponse, 0, len(history)),
	}
	for i := range history {
		snapshot.Messages = append(snapshot.Messages, dto.MessageFromDomain(&history[i], principal.ID))
	}
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}

	// The room is on screen for the lifetime of the connection, so everything
	// already in the transcript counts as seen.
	sess.SeenSweep(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sub.C {
			sess.HandleEvent(ctx, event)
			if event.Type == events.EventNewMessage {
				sess.SeenSweep(ctx)
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}()

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		h.dispatch(ctx, sess, principal, ticket.ID, frame, logger)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, sess *session.Session, principal *domain.User, ticketID string, frame clientFrame, logger *zap.Logger) {
	var err error
	switch frame.Action {
	case "typing":
		h.chat.NotifyTyping(ctx, ticketID, principal.ID)
	case "stopTyping":
		h.chat.NotifyStopTyping(ctx, ticketID, principal.ID)
	case "delivered":
		err = h.chat.MarkDelivered(ctx, frame.MessageID, principal.ID)
	case "seen":
		err = h.chat.MarkSeen(ctx, frame.MessageID, principal.ID)
	case "sweep":
		sess.SeenSweep(ctx)
	default:
		logger.Debug("unknown ws action", zap.String("action", frame.Action))
	}
	if err != nil {
		logger.Warn("ws action failed", zap.String("action", frame.Action), zap.Error(err))
	}
}
