package handlers

import (
	"errors"

	"github.com/Reshigan/Heirloom-sub004/internal/dto"
	"github.com/Reshigan/Heirloom-sub004/internal/escrow"
	"github.com/Reshigan/Heirloom-sub004/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

type EncryptionHandler struct {
	vault *escrow.Vault
}

func NewEncryptionHandler(vault *escrow.Vault) *EncryptionHandler {
	return &EncryptionHandler{vault: vault}
}

func (h *EncryptionHandler) Setup(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.SetupEncryptionRequest
	if err := c.BodyParser(&req); err != nil || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Password is required",
		})
	}

	result, err := h.vault.SetupUserEncryption(userID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, escrow.ErrInvalidPassword):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Incorrect password. Please try again.",
			})
		case errors.Is(err, escrow.ErrAlreadyConfigured):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to set up encryption",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SetupEncryptionResponse{
		Salt:                result.KeySet.Salt,
		EncryptedMasterKey:  result.KeySet.WrappedMasterKey,
		KeyDerivationParams: result.KeySet.KDFParams,
		RecoveryCode:        result.RecoveryCode,
	})
}

func (h *EncryptionHandler) Params(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	keySet, err := h.vault.Params(userID)
	if err != nil {
		if errors.Is(err, escrow.ErrNotConfigured) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load encryption parameters",
		})
	}

	return c.JSON(dto.EncryptionParamsResponse{
		Salt:                keySet.Salt,
		EncryptedMasterKey:  keySet.WrappedMasterKey,
		KeyDerivationParams: keySet.KDFParams,
	})
}

func (h *EncryptionHandler) CreateEscrow(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.CreateEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.vault.CreateKeyEscrow(userID, req.EncryptedKey, req.BeneficiaryIDs); err != nil {
		switch {
		case errors.Is(err, escrow.ErrNoBeneficiaries), errors.Is(err, escrow.ErrUnknownBeneficiary):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create key escrow",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Key escrow created"})
}
