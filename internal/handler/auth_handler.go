package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/worksafe-io/be-permits/internal/errors"
	"github.com/worksafe-io/be-permits/internal/logger"
	"github.com/worksafe-io/be-permits/internal/repository"
	"github.com/worksafe-io/be-permits/internal/service"
)

// AuthHandler handles signup, login and identity verification.
type AuthHandler struct {
	service *service.AuthService
	log     *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service *service.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{service: service, log: log}
}

// RegisterPublic mounts the unauthenticated auth routes.
func (h *AuthHandler) RegisterPublic(r *mux.Router) {
	r.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
}

// RegisterProtected mounts the routes behind the auth middleware.
func (h *AuthHandler) RegisterProtected(r *mux.Router) {
	r.HandleFunc("/auth/verify", h.Verify).Methods(http.MethodGet)
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.log, errors.InvalidInput("body", "invalid request body"))
		return
	}

	user, token, err := h.service.Signup(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User registered", userPayload(user, token))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.log, errors.InvalidInput("body", "invalid request body"))
		return
	}

	user, token, err := h.service.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", userPayload(user, token))
}

// Verify handles GET /auth/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	user, err := h.service.Verify(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User verified", userPayload(user, ""))
}

func userPayload(user *repository.User, token string) map[string]any {
	payload := map[string]any{
		"name":  user.Name,
		"email": user.Email,
		"role":  user.Role,
		"level": user.Level,
	}
	if token != "" {
		payload["token"] = token
	}
	return payload
}
