package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"fleetops/internal/authz"
	"fleetops/internal/model"
)

// checkDriverCompany validates access to a driver record for company-scoped
// roles. Driver rows carry the owning company by name, so the identity's
// company id is resolved to its name first.
func (s *Server) checkDriverCompany(ctx context.Context, ident authz.Identity, companyName string) error {
	if ident.IsAdmin() {
		return nil
	}
	if !ident.Role.CompanyScoped() {
		return authz.ErrForbidden
	}
	if ident.CompanyID == "" {
		return authz.ErrUnaffiliated
	}
	comp, err := s.Store.GetCompany(ctx, ident.CompanyID)
	if err != nil {
		return authz.ErrForbidden
	}
	if !strings.EqualFold(companyName, comp.Name) {
		return authz.ErrForbidden
	}
	return nil
}

// DriversHandler handles GET/POST /v1/drivers.
func (s *Server) DriversHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r)
	switch r.Method {
	case http.MethodGet:
		f, err := authz.DeriveFilter(ident, authz.Drivers, r.URL.Query())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items, total, err := s.Store.ListDrivers(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writePaged(w, items, model.Pagination{Page: f.Page, Limit: f.Limit, Total: total})
	case http.MethodPost:
		var in model.Driver
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		if missing := missingFields(map[string]string{"name": in.Name, "company": in.Company}); missing != nil {
			writeErrorMsg(w, http.StatusBadRequest, "missing required fields", missing)
			return
		}
		if err := s.checkDriverCompany(r.Context(), ident, in.Company); err != nil {
			s.writeError(w, r, err)
			return
		}
		d, err := s.Store.CreateDriver(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, d)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// DriverByIDHandler handles GET/PUT/DELETE /v1/drivers/{id}.
func (s *Server) DriverByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/drivers/")
	if id == r.URL.Path || id == "" || strings.Contains(id, "/") {
		writeErrorMsg(w, http.StatusNotFound, "not found", nil)
		return
	}
	ident := identityFrom(r)
	d, err := s.Store.GetDriver(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.checkDriverCompany(r.Context(), ident, d.Company); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, d)
	case http.MethodPut:
		var in model.Driver
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		in.ID = id
		if in.Company == "" {
			in.Company = d.Company
		}
		// a company-scoped caller may not move the driver to another company
		if err := s.checkDriverCompany(r.Context(), ident, in.Company); err != nil {
			s.writeError(w, r, err)
			return
		}
		upd, err := s.Store.UpdateDriver(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, upd)
	case http.MethodDelete:
		if err := s.Store.DeleteDriver(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
