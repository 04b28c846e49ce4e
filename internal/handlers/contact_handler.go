package handlers

import (
	"errors"

	"github.com/Reshigan/Heirloom-sub004/internal/dto"
	"github.com/Reshigan/Heirloom-sub004/internal/middleware"
	"github.com/Reshigan/Heirloom-sub004/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ContactHandler struct {
	contacts *services.ContactService
}

func NewContactHandler(contacts *services.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

func (h *ContactHandler) Create(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.CreateContactRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	contact, err := h.contacts.Create(userID, req.Name, req.Email)
	if err != nil {
		if errors.Is(err, services.ErrContactExists) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.ContactResponse{
		ID:                 contact.ID,
		Name:               contact.Name,
		Email:              contact.Email,
		VerificationStatus: contact.VerificationStatus,
		CreatedAt:          contact.CreatedAt,
	})
}

func (h *ContactHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	contacts, err := h.contacts.List(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to list contacts",
		})
	}

	out := make([]dto.ContactResponse, 0, len(contacts))
	for _, contact := range contacts {
		out = append(out, dto.ContactResponse{
			ID:                 contact.ID,
			Name:               contact.Name,
			Email:              contact.Email,
			VerificationStatus: contact.VerificationStatus,
			AcceptedAt:         contact.AcceptedAt,
			CreatedAt:          contact.CreatedAt,
		})
	}
	return c.JSON(out)
}

// Accept is the public endpoint behind the invite link.
func (h *ContactHandler) Accept(c *fiber.Ctx) error {
	if err := h.contacts.Accept(c.Params("token")); err != nil {
		if errors.Is(err, services.ErrInvalidAcceptLink) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to accept invitation",
		})
	}
	return c.JSON(fiber.Map{"message": "Role accepted. Thank you."})
}
