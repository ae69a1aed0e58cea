package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/pkg/errorutil"
)

// StaffQueueHandler exposes staff queue-management endpoints.
type StaffQueueHandler struct {
	queue *service.QueueService
}

// NewStaffQueueHandler constructs handler.
func NewStaffQueueHandler(queueService *service.QueueService) *StaffQueueHandler {
	return &StaffQueueHandler{queue: queueService}
}

// Next handles POST /api/queue/next.
func (h *StaffQueueHandler) Next(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("authentication required")
	}
	var req dto.AdvanceRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.queue.Advance(c.UserContext(), identityOf(principal), req.ServiceType, req.Date)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Next customer called",
		"data":    dto.NewTicketResponse(ticket),
	})
}

// Complete handles POST /api/queue/complete.
func (h *StaffQueueHandler) Complete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("authentication required")
	}
	var req dto.CompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}

	if err := h.queue.Complete(c.UserContext(), identityOf(principal), req.TicketID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Service completed successfully"})
}

// ListAll handles GET /api/queue/all.
func (h *StaffQueueHandler) ListAll(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("authentication required")
	}

	tickets, err := h.queue.ListLines(c.UserContext(), identityOf(principal), c.Query("date"))
	if err != nil {
		return err
	}

	grouped := make(map[domain.ServiceType][]dto.TicketResponse)
	for i := range tickets {
		grouped[tickets[i].ServiceType] = append(grouped[tickets[i].ServiceType], dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": grouped})
}
