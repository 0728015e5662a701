package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/LouAnabel/someContacts/internal/server/models"
	"github.com/LouAnabel/someContacts/internal/server/services"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenResponse struct {
	User             *models.User `json:"user,omitempty"`
	TokenType        string       `json:"token_type"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

type sessionResponse struct {
	JTI       string           `json:"jti"`
	Type      models.TokenType `json:"token_type"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
	Current   bool             `json:"current"`
}

func newTokenResponse(u *models.User, p *services.TokenPair) tokenResponse {
	return tokenResponse{
		User:             u,
		TokenType:        "Bearer",
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// decode reads and validates a JSON body into dst. On failure the 400 has
// already been written and false is returned.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := render.DecodeJSON(r.Body, dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "request body is empty")
			return false
		}
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "request body is not valid JSON")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, r, http.StatusBadRequest, codeInvalidRequest, validationMessage(verrs[0]))
			return false
		}
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	default:
		return field + " is invalid"
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.sessions.Issue(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newTokenResponse(user, pair))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, pair, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, newTokenResponse(user, pair))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, newTokenResponse(nil, pair))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	revoked, err := h.sessions.Logout(r.Context(), *p)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, map[string]bool{"revoked": revoked})
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	n, err := h.sessions.LogoutAll(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, map[string]int64{"revoked_count": n})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	user, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, map[string]*models.User{"user": user})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	records, err := h.sessions.ListSessions(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, sessionResponse{
			JTI:       rec.JTI,
			Type:      rec.Type,
			ExpiresAt: rec.ExpiresAt,
			CreatedAt: rec.CreatedAt,
			Current:   rec.JTI == p.JTI,
		})
	}

	render.JSON(w, r, map[string][]sessionResponse{"sessions": out})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, "ok\n")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn(r.Context(), "readyz.db.not_ready", "err", err)
		render.Status(r, http.StatusServiceUnavailable)
		render.PlainText(w, r, "db not ready\n")
		return
	}
	render.PlainText(w, r, "ready\n")
}
