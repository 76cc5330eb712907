package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"market-chat/errors"
	"market-chat/services"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func registerHandler(log *slog.Logger, svc services.IAuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "malformed body"})
			return
		}

		token, err := svc.Register(req.Username, req.Email, req.Password)
		switch {
		case errors.Is(err, errors.ErrUserAlreadyExists):
			writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})
		case errors.Is(err, errors.ErrInvalidPassword):
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		case err != nil:
			log.Error("Registration failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		default:
			writeJSON(w, http.StatusCreated, tokenResponse{Token: string(token)})
		}
	}
}

func loginHandler(log *slog.Logger, svc services.IAuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "malformed body"})
			return
		}

		token, err := svc.Login(req.Email, req.Password)
		switch {
		case errors.Is(err, errors.ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: err.Error()})
		case err != nil:
			log.Error("Login failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		default:
			writeJSON(w, http.StatusOK, tokenResponse{Token: string(token)})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
