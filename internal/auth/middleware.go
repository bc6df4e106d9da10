package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/repository"
	apperrors "github.com/spec-kit/edusupport/pkg/util"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and loads the calling user.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	user, err := m.Authenticate(c, parts[1])
	if err != nil {
		return err
	}
	c.Locals(principalKey, user)
	return c.Next()
}

// Authenticate resolves a raw token to a user. Used by both the HTTP
// middleware and the websocket gateway, which receives the token as a query
// parameter since browsers cannot set headers on upgrade requests.
func (m *AuthMiddleware) Authenticate(c *fiber.Ctx, tokenStr string) (*domain.User, error) {
	claims, err := m.tokens.ParseToken(tokenStr)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	user, err := m.users.GetByID(c.Context(), claims.SubjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, apperrors.MapError(err)
	}
	if user.Status != domain.UserStatusActive {
		return nil, apperrors.NewForbidden("account suspended")
	}
	return user, nil
}

// PrincipalFromContext retrieves the authenticated user.
func PrincipalFromContext(c *fiber.Ctx) (*domain.User, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	user, ok := val.(*domain.User)
	return user, ok
}
