package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/shinyyama/snaplist-backend/internal/reqctx"
)

// TokenVerifier is the part of the Firebase auth client the middleware needs.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

// NewFirebaseVerifier builds a Firebase auth client for projectID. When
// credentialsFile is empty the ambient application default credentials are
// used.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*auth.Client, error) {
	if projectID == "" {
		return nil, errors.New("firebase project id is not set")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, err
	}
	return app.Auth(ctx)
}

func NewAuthMiddleware(v TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: v}
}

type authError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func unauthorized(c echo.Context, message string) error {
	var body authError
	body.Error.Code = "UNAUTHORIZED"
	body.Error.Message = message
	return c.JSON(http.StatusUnauthorized, body)
}

// RequireAuth verifies the bearer token and exposes the caller as "uid" (and
// "email" when the token carries one) on the echo context.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get(echo.HeaderAuthorization)
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return unauthorized(c, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		if tokenStr == "" {
			return unauthorized(c, "missing bearer token")
		}
		token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			log.Debug().Err(err).Str("rid", reqctx.RID(c.Request().Context())).Msg("id token rejected")
			return unauthorized(c, "invalid token")
		}
		c.Set("uid", token.UID)
		if email, ok := token.Claims["email"].(string); ok && email != "" {
			c.Set("email", email)
		}
		req := c.Request()
		c.SetRequest(req.WithContext(reqctx.WithUserID(req.Context(), token.UID)))
		return next(c)
	}
}
