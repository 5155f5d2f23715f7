package handler

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/efreitasn/minibroker/internal/service"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token      string `json:"token"`
	TokenType  string `json:"tokenType"`
	ExpiresAt  string `json:"expiresAt"`
	Username   string `json:"username"`
	CustomerID string `json:"customerId"`
	Role       string `json:"role"`
}

// Login handles POST /api/auth/login. Attempts are throttled per client
// address.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.authSvc.Login(r.Context(), req.Username, req.Password, clientKey(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, loginResponse{
		Token:      res.Token,
		TokenType:  "Bearer",
		ExpiresAt:  res.ExpiresAt.UTC().Format(timeLayout),
		Username:   res.Username,
		CustomerID: res.CustomerID,
		Role:       string(res.Role),
	})
}

// clientKey returns the remote host without its port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
