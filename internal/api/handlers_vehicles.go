package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"fleetops/internal/authz"
	"fleetops/internal/model"
)

// VehiclesHandler handles GET/POST /v1/vehicles.
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r)
	switch r.Method {
	case http.MethodGet:
		f, err := authz.DeriveFilter(ident, authz.Vehicles, r.URL.Query())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items, total, err := s.Store.ListVehicles(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writePaged(w, items, model.Pagination{Page: f.Page, Limit: f.Limit, Total: total})
	case http.MethodPost:
		var in model.Vehicle
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		if !ident.IsAdmin() && in.CompanyID == "" {
			in.CompanyID = ident.CompanyID
		}
		// ownership verdict first: an unaffiliated operator gets 403, not a
		// missing-field 400, and no store call is issued either way
		if err := authz.CheckWrite(ident, in.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		if missing := missingFields(map[string]string{"plate": in.Plate, "companyId": in.CompanyID}); missing != nil {
			writeErrorMsg(w, http.StatusBadRequest, "missing required fields", missing)
			return
		}
		v, err := s.Store.CreateVehicle(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, v)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// VehicleByIDHandler handles GET/PUT/DELETE /v1/vehicles/{id}.
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	if id == r.URL.Path || id == "" || strings.Contains(id, "/") {
		writeErrorMsg(w, http.StatusNotFound, "not found", nil)
		return
	}
	ident := identityFrom(r)
	v, err := s.Store.GetVehicle(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := authz.CheckRecord(ident, authz.Vehicles, "", v.CompanyID); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, v)
	case http.MethodPut:
		var in model.Vehicle
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		in.ID = id
		if in.CompanyID == "" {
			in.CompanyID = v.CompanyID
		}
		if err := authz.CheckWrite(ident, in.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		upd, err := s.Store.UpdateVehicle(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, upd)
	case http.MethodDelete:
		if err := authz.CheckWrite(ident, v.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Store.DeleteVehicle(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
