package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/pkg/errorutil"
)

// QueueHandler exposes end-user queue endpoints.
type QueueHandler struct {
	queue *service.QueueService
}

// NewQueueHandler constructs handler.
func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{queue: queueService}
}

// Book handles POST /api/queue/book.
func (h *QueueHandler) Book(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("authentication required")
	}
	var req dto.BookRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}

	ticket, message, err := h.queue.Book(c.UserContext(), identityOf(principal), service.BookInput{
		ServiceType: req.ServiceType,
		TimeSlot:    req.TimeSlot,
		Date:        req.Date,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.BookResponse{
		TicketID:    ticket.ID,
		QueueNumber: ticket.QueueNumber,
		Message:     message,
	}})
}

// ListBookings handles GET /api/user/bookings.
func (h *QueueHandler) ListBookings(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("authentication required")
	}
	tickets, err := h.queue.ListUserTickets(c.UserContext(), identityOf(principal))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponses(tickets)})
}

func identityOf(principal *auth.Principal) service.Identity {
	return service.Identity{UserID: principal.User.ID, Role: principal.Role}
}
