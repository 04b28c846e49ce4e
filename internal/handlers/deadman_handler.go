package handlers

import (
	"errors"
	"strconv"

	"github.com/Reshigan/Heirloom-sub004/internal/deadman"
	"github.com/Reshigan/Heirloom-sub004/internal/dto"
	"github.com/Reshigan/Heirloom-sub004/internal/middleware"
	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/gofiber/fiber/v2"
)

type DeadManHandler struct {
	service   *deadman.Service
	collector *deadman.Collector
}

func NewDeadManHandler(service *deadman.Service, collector *deadman.Collector) *DeadManHandler {
	return &DeadManHandler{service: service, collector: collector}
}

func (h *DeadManHandler) Configure(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.ConfigureSwitchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	sw, err := h.service.Configure(userID, req.IntervalDays, req.GracePeriodDays)
	if err != nil {
		if errors.Is(err, deadman.ErrInvalidInterval) || errors.Is(err, deadman.ErrInvalidGracePeriod) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to configure switch",
		})
	}

	return c.JSON(sw)
}

func (h *DeadManHandler) CheckIn(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	// HTTP check-ins are always MANUAL; the AUTOMATED origin is reserved
	// for non-interactive integrations.
	next, err := h.service.CheckIn(userID, models.CheckInManual)
	if err != nil {
		switch {
		case errors.Is(err, deadman.ErrNotConfigured):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, deadman.ErrDisabled), errors.Is(err, deadman.ErrAlreadyReleased):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, deadman.ErrConflict):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to check in",
		})
	}

	return c.JSON(dto.CheckInResponse{
		Message:        "Check-in recorded",
		NextCheckInDue: *next,
	})
}

func (h *DeadManHandler) Cancel(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.PasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.service.CancelTrigger(userID, req.Password); err != nil {
		switch {
		case errors.Is(err, deadman.ErrInvalidPassword):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Incorrect password. Please try again.",
			})
		case errors.Is(err, deadman.ErrNotCancellable):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, deadman.ErrNotConfigured):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to cancel trigger",
		})
	}

	return c.JSON(fiber.Map{"message": "Trigger cancelled, switch is active again"})
}

func (h *DeadManHandler) Disable(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.PasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.service.Disable(userID, req.Password); err != nil {
		switch {
		case errors.Is(err, deadman.ErrInvalidPassword):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Incorrect password. Please try again.",
			})
		case errors.Is(err, deadman.ErrAlreadyReleased), errors.Is(err, deadman.ErrNotCancellable):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, deadman.ErrNotConfigured):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to disable switch",
		})
	}

	return c.JSON(fiber.Map{"message": "Switch disabled"})
}

func (h *DeadManHandler) Status(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	snap, err := h.service.Status(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load switch status",
		})
	}
	return c.JSON(snap)
}

func (h *DeadManHandler) History(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	events, total, err := h.service.History(userID, page, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load check-in history",
		})
	}

	resp := dto.CheckInHistoryResponse{
		Events: make([]dto.CheckInEventResponse, 0, len(events)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, dto.CheckInEventResponse{
			CheckedInAt: e.CheckedInAt,
			Method:      e.Method,
		})
	}
	return c.JSON(resp)
}

// Verify is the public attestation endpoint contacts reach from the
// emailed link. Failures are always the same generic message.
func (h *DeadManHandler) Verify(c *fiber.Ctx) error {
	result, err := h.collector.VerifyPassing(c.Params("token"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Verification could not be processed",
		})
	}
	if !result.Success {
		return c.Status(fiber.StatusBadRequest).JSON(dto.VerifyResponse{
			Success: false, Message: result.Message,
		})
	}
	return c.JSON(dto.VerifyResponse{Success: true, Message: result.Message})
}
