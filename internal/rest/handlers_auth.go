package rest

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/bookhaven/library/internal/auth"
	"github.com/bookhaven/library/internal/db"
	"github.com/bookhaven/library/internal/repo"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// POST /auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		s.log.Error("Failed to hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user := &db.User{Email: req.Email, HashedPassword: hash}
	if err := s.users.Create(r.Context(), user); err != nil {
		s.repoError(w, err)
		return
	}

	s.issueToken(w, user.ID)
}

// POST /auth/login, accepts an OAuth2 password form
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid form body")
		return
	}
	email := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	user, err := s.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.repoError(w, err)
		return
	}
	if !auth.CheckPassword(user.HashedPassword, password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.issueToken(w, user.ID)
}

func (s *Server) issueToken(w http.ResponseWriter, userID uint) {
	token, err := s.tokens.Issue(userID)
	if err != nil {
		s.log.Error("Failed to issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}
