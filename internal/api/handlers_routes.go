package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"fleetops/internal/authz"
	"fleetops/internal/model"
)

// RoutesHandler handles GET/POST /v1/routes. Drivers see only their assigned
// routes; they cannot create.
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r)
	switch r.Method {
	case http.MethodGet:
		f, err := authz.DeriveFilter(ident, authz.Routes, r.URL.Query())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items, total, err := s.Store.ListRoutes(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writePaged(w, items, model.Pagination{Page: f.Page, Limit: f.Limit, Total: total})
	case http.MethodPost:
		var in model.RouteRecord
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
		rt, err := s.Store.CreateRoute(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, rt)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RouteByIDHandler handles /v1/routes/{id} plus the lifecycle actions
// POST /v1/routes/{id}/start, POST /v1/routes/{id}/finish and the
// /v1/routes/{id}/location position endpoint.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	if rest == r.URL.Path || rest == "" {
		writeErrorMsg(w, http.StatusNotFound, "not found", nil)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	ident := identityFrom(r)

	rt, err := s.Store.GetRoute(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := authz.CheckRecord(ident, authz.Routes, rt.DriverID, rt.CompanyID); err != nil {
		s.writeError(w, r, err)
		return
	}

	if len(parts) > 1 {
		switch parts[1] {
		case "start", "finish":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !authz.CanTransitionRoute(ident, rt) {
				s.writeError(w, r, authz.ErrForbidden)
				return
			}
			now := time.Now().UTC()
			var upd model.RouteRecord
			if parts[1] == "start" {
				upd, err = s.Store.StartRoute(r.Context(), id, now)
			} else {
				upd, err = s.Store.FinishRoute(r.Context(), id, now)
			}
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			s.publishAlertEvent("route."+parts[1], map[string]any{
				"routeId": upd.ID, "status": upd.Status, "ts": now.Format(time.RFC3339),
			}, upd.DriverID, upd.CompanyID)
			writeData(w, http.StatusOK, upd)
			return
		case "location":
			s.routeLocation(w, r, ident, rt)
			return
		default:
			writeErrorMsg(w, http.StatusNotFound, "not found", nil)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, rt)
	case http.MethodPut:
		var in model.RouteRecord
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		in.ID = id
		if in.CompanyID == "" {
			in.CompanyID = rt.CompanyID
		}
		if err := authz.CheckWrite(ident, in.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		upd, err := s.Store.UpdateRoute(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, upd)
	case http.MethodDelete:
		if err := authz.CheckWrite(ident, rt.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Store.DeleteRoute(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// routeLocation accepts positions from the assigned driver (POST) and serves
// latest positions to anyone already cleared for the route (GET). Positions
// live only in the in-process cache.
func (s *Server) routeLocation(w http.ResponseWriter, r *http.Request, ident authz.Identity, rt model.RouteRecord) {
	switch r.Method {
	case http.MethodPost:
		if !authz.CanTransitionRoute(ident, rt) {
			s.writeError(w, r, authz.ErrForbidden)
			return
		}
		var in struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
			TS  string  `json:"ts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		if in.TS == "" {
			in.TS = time.Now().UTC().Format(time.RFC3339)
		}
		driverID := rt.DriverID
		if driverID == "" {
			driverID = ident.ID
		}
		s.Locations.Upsert(rt.ID, driverID, in.Lat, in.Lng, in.TS)
		writeData(w, http.StatusOK, map[string]bool{"accepted": true})
	case http.MethodGet:
		writeData(w, http.StatusOK, s.Locations.ListByRoute(rt.ID))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
