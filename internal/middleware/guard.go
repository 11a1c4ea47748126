package middleware

import (
	"context"

	apierrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/logging"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TokenValidator validates a session token and returns its subject
type TokenValidator interface {
	Validate(token string) (string, error)
}

// UserLookup loads the account behind a resolved subject
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Guard resolves bearer tokens to active user identities
type Guard struct {
	tokens TokenValidator
	users  UserLookup
}

// NewGuard creates an access guard
func NewGuard(tokens TokenValidator, users UserLookup) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// ResolveIdentity maps a raw token to the id of an existing, active user.
// Every failure is reported as ErrUnauthorized; the cause is only logged.
func (g *Guard) ResolveIdentity(ctx context.Context, rawToken string) (uuid.UUID, error) {
	subject, err := g.tokens.Validate(rawToken)
	if err != nil {
		log.Debug().Err(err).Msg("Token rejected")
		return uuid.Nil, apierrors.ErrUnauthorized
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		log.Debug().Str("subject", subject).Msg("Token subject is not a user id")
		return uuid.Nil, apierrors.ErrUnauthorized
	}

	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID.String()).Msg("Token subject lookup failed")
		return uuid.Nil, apierrors.ErrUnauthorized
	}
	if !user.IsActive {
		log.Debug().Str("user_id", userID.String()).Msg("Token subject is inactive")
		return uuid.Nil, apierrors.ErrUnauthorized
	}

	return userID, nil
}

// RequireIdentity rejects requests without a valid bearer token for an active user
// and stores the resolved user id in the gin context.
func (g *Guard) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}

		userID, err := g.ResolveIdentity(c.Request.Context(), token)
		if err != nil {
			logging.LogSecurityEvent("unauthorized", "", c.ClientIP(), c.Request.URL.Path)
			unauthorized(c)
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	RespondWithError(c, apierrors.ErrUnauthorizedError)
	c.Abort()
}
