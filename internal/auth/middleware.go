package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

const operatorKey = "auth_operator"

// OperatorMiddleware validates bearer tokens on ops routes.
type OperatorMiddleware struct {
	tokens *TokenManager
}

// NewOperatorMiddleware constructs middleware.
func NewOperatorMiddleware(tokens *TokenManager) *OperatorMiddleware {
	return &OperatorMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *OperatorMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	operator, err := m.tokens.Validate(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(operatorKey, operator)
	return c.Next()
}

// OperatorFromContext retrieves the authenticated operator name.
func OperatorFromContext(c *fiber.Ctx) (string, bool) {
	val := c.Locals(operatorKey)
	if val == nil {
		return "", false
	}
	operator, ok := val.(string)
	return operator, ok
}
