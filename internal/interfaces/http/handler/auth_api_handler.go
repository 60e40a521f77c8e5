package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dreschagin/securecam/internal/application/usecase"
	"github.com/dreschagin/securecam/internal/interfaces/http/middleware"
	"github.com/dreschagin/securecam/pkg/logger"
)

// AuthAPIHandler: токен доступа к API (cookie для браузера) и регистрация водителя по телефону.
type AuthAPIHandler struct {
	authConfig middleware.AuthConfig
	signup     *usecase.SignupUserUseCase
	logger     *logger.Logger
}

type authLoginRequest struct {
	Token string `json:"token"`
}

type signupRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

type userResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

func NewAuthAPIHandler(authConfig middleware.AuthConfig, signup *usecase.SignupUserUseCase, log *logger.Logger) *AuthAPIHandler {
	return &AuthAPIHandler{
		authConfig: authConfig,
		signup:     signup,
		logger:     log,
	}
}

func (h *AuthAPIHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authConfig.Enabled {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"auth_enabled": false,
		})
		return
	}

	defer r.Body.Close()
	var req authLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" || token != h.authConfig.BearerToken {
		h.logger.Warn("Auth login failed", "remote_addr", r.RemoteAddr)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	secureCookie := r.TLS != nil
	middleware.WriteAuthCookie(w, token, secureCookie, 12*60*60)

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"auth_enabled": true,
	})
}

func (h *AuthAPIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	secureCookie := r.TLS != nil
	middleware.ClearAuthCookie(w, secureCookie)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
	})
}

func (h *AuthAPIHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := middleware.ValidateRequestAuth(r, h.authConfig)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"auth_enabled":   h.authConfig.Enabled,
		"authenticated":  err == nil,
		"cookie_present": hasAuthCookie(r),
	})
}

func hasAuthCookie(r *http.Request) bool {
	c, err := r.Cookie(middleware.AuthCookieName)
	if err != nil {
		return false
	}
	return strings.TrimSpace(c.Value) != ""
}

// Signup регистрирует пользователя в бэкенде или возвращает существующего по номеру телефона.
func (h *AuthAPIHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.signup.Execute(r.Context(), usecase.SignupUserCommand{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		var validationErr *usecase.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	status := http.StatusOK
	if result.IsNewUser {
		status = http.StatusCreated
	}
	middleware.WriteJSON(w, status, map[string]any{
		"success":     true,
		"message":     result.Message,
		"is_new_user": result.IsNewUser,
		"user": userResponse{
			ID:          result.User.ID,
			Name:        result.User.Name,
			PhoneNumber: result.User.PhoneNumber,
		},
	})
}
