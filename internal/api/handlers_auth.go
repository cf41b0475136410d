package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"fleetops/internal/authz"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

// RegisterHandler handles POST /v1/auth/register. Admin accounts cannot be
// created through the public endpoint; seed them directly.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Role      string `json:"role"`
		CompanyID string `json:"companyId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
		return
	}
	if missing := missingFields(map[string]string{
		"name": in.Name, "email": in.Email, "password": in.Password, "role": in.Role,
	}); missing != nil {
		writeErrorMsg(w, http.StatusBadRequest, "missing required fields", missing)
		return
	}
	if !authz.ValidRole(in.Role) || in.Role == string(authz.RoleAdmin) {
		writeErrorMsg(w, http.StatusBadRequest, "invalid role", nil)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.Store.CreateUser(r.Context(), model.User{
		Name:         in.Name,
		Email:        in.Email,
		Role:         in.Role,
		CompanyID:    in.CompanyID,
		PasswordHash: string(hash),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, u)
}

// LoginHandler handles POST /v1/auth/login and returns a signed token plus
// the user profile.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
		return
	}
	if missing := missingFields(map[string]string{"email": in.Email, "password": in.Password}); missing != nil {
		writeErrorMsg(w, http.StatusBadRequest, "missing required fields", missing)
		return
	}
	u, err := s.Store.GetUserByEmail(r.Context(), in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.AuthFailures.WithLabelValues("login").Inc()
			writeErrorMsg(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		s.writeError(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		metrics.AuthFailures.WithLabelValues("login").Inc()
		writeErrorMsg(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	tok, err := s.Auth.Sign(u.ID, u.Email, s.TokenTTL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"token": tok, "user": u})
}
