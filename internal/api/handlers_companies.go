package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"fleetops/internal/authz"
	"fleetops/internal/model"
)

// CompaniesHandler handles GET/POST /v1/companies. Admin only; enforced by
// RequireAuth in main and the rule table here.
func (s *Server) CompaniesHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r)
	switch r.Method {
	case http.MethodGet:
		f, err := authz.DeriveFilter(ident, authz.Companies, r.URL.Query())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items, total, err := s.Store.ListCompanies(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writePaged(w, items, model.Pagination{Page: f.Page, Limit: f.Limit, Total: total})
	case http.MethodPost:
		var in model.Company
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		if missing := missingFields(map[string]string{"name": in.Name}); missing != nil {
			writeErrorMsg(w, http.StatusBadRequest, "missing required fields", missing)
			return
		}
		c, err := s.Store.CreateCompany(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, c)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// CompanyByIDHandler handles /v1/companies/{id} and
// POST /v1/companies/{id}/toggle-status.
func (s *Server) CompanyByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/companies/")
	if rest == r.URL.Path || rest == "" {
		writeErrorMsg(w, http.StatusNotFound, "not found", nil)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) > 1 && parts[1] == "toggle-status" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		c, err := s.Store.ToggleCompanyStatus(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, c)
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := s.Store.GetCompany(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, c)
	case http.MethodPut:
		var in model.Company
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		in.ID = id
		// omitted fields keep their current values; never blank the name
		if in.Name == "" || in.Email == "" || in.Phone == "" {
			cur, err := s.Store.GetCompany(r.Context(), id)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if in.Name == "" {
				in.Name = cur.Name
			}
			if in.Email == "" {
				in.Email = cur.Email
			}
			if in.Phone == "" {
				in.Phone = cur.Phone
			}
		}
		c, err := s.Store.UpdateCompany(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, c)
	case http.MethodDelete:
		if err := s.Store.DeleteCompany(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
