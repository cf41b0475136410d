package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"fleetops/internal/authz"
	"fleetops/internal/model"
)

// PassengersHandler handles GET/POST /v1/passengers. Passengers themselves
// may list (scoped to their own records) but not create.
func (s *Server) PassengersHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r)
	switch r.Method {
	case http.MethodGet:
		f, err := authz.DeriveFilter(ident, authz.Passengers, r.URL.Query())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items, total, err := s.Store.ListPassengers(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writePaged(w, items, model.Pagination{Page: f.Page, Limit: f.Limit, Total: total})
	case http.MethodPost:
		var in model.Passenger
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		if !ident.IsAdmin() && in.CompanyID == "" {
			in.CompanyID = ident.CompanyID
		}
		// ownership verdict first so an unaffiliated caller gets 403, not 400
		if err := authz.CheckWrite(ident, in.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		if missing := missingFields(map[string]string{"name": in.Name, "companyId": in.CompanyID}); missing != nil {
			writeErrorMsg(w, http.StatusBadRequest, "missing required fields", missing)
			return
		}
		p, err := s.Store.CreatePassenger(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, p)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PassengerByIDHandler handles GET/PUT/DELETE /v1/passengers/{id}.
func (s *Server) PassengerByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/passengers/")
	if id == r.URL.Path || id == "" || strings.Contains(id, "/") {
		writeErrorMsg(w, http.StatusNotFound, "not found", nil)
		return
	}
	ident := identityFrom(r)
	p, err := s.Store.GetPassenger(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := authz.CheckRecord(ident, authz.Passengers, p.UserID, p.CompanyID); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, p)
	case http.MethodPut:
		var in model.Passenger
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		in.ID = id
		if in.CompanyID == "" {
			in.CompanyID = p.CompanyID
		}
		if in.UserID == "" {
			in.UserID = p.UserID
		}
		if err := authz.CheckWrite(ident, in.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		upd, err := s.Store.UpdatePassenger(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, upd)
	case http.MethodDelete:
		if err := authz.CheckWrite(ident, p.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Store.DeletePassenger(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
