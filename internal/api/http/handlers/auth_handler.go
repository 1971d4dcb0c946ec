package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/config"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// AuthHandler exchanges the shared operator key for a bearer token.
type AuthHandler struct {
	tokens *auth.TokenManager
	cfg    config.AuthConfig
}

// NewAuthHandler constructs handler.
func NewAuthHandler(tokens *auth.TokenManager, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{tokens: tokens, cfg: cfg}
}

// IssueToken POST /auth/token.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.OperatorTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Operator = strings.TrimSpace(req.Operator)
	if req.Operator == "" || req.Key == "" {
		return apperrors.NewValidationError("operator, key required", nil)
	}
	if h.cfg.OperatorKeyHash == "" {
		return apperrors.NewForbidden("operator access not configured")
	}
	if err := auth.VerifyOperatorKey(h.cfg.OperatorKeyHash, req.Key); err != nil {
		return apperrors.NewUnauthorized("invalid operator key")
	}
	token, err := h.tokens.Issue(req.Operator)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"token":      token,
		"expires_in": h.cfg.TokenTTLMinutes * 60,
	}})
}
