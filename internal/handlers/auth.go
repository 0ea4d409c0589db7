package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/bookmarks-go/internal/auth"
	"github.com/serroba/bookmarks-go/internal/middleware"
	"go.uber.org/zap"
)

// SessionIssuer issues signed sessions.
type SessionIssuer interface {
	Login(email, name string) (*auth.Session, error)
}

// AuthHandler handles session operations.
type AuthHandler struct {
	issuer       SessionIssuer
	secureCookie bool
	logger       *zap.Logger
}

// NewAuthHandler creates a new auth handler. secureCookie marks the session
// cookie Secure, which browsers only send over HTTPS.
func NewAuthHandler(issuer SessionIssuer, secureCookie bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		issuer:       issuer,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func (h *AuthHandler) Login(_ context.Context, req *LoginRequest) (*LoginResponse, error) {
	session, err := h.issuer.Login(req.Body.Email, req.Body.Name)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidEmail) {
			return nil, huma.Error400BadRequest("invalid email", &huma.ErrorDetail{
				Location: "body.email",
				Message:  "must be a plain email address",
				Value:    req.Body.Email,
			})
		}

		h.logger.Error("failed to issue session", zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to issue session")
	}

	resp := &LoginResponse{}
	resp.SetCookie = http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	resp.Body.UserID = session.UserID
	resp.Body.Email = session.Email
	resp.Body.Token = session.Token
	resp.Body.ExpiresAt = session.ExpiresAt

	return resp, nil
}
