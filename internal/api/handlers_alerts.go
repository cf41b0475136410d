package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetops/internal/authz"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

// publishAlertEvent fans an event out to its user channel, its company
// channel and the firehose.
func (s *Server) publishAlertEvent(typ string, data map[string]any, userID, companyID string) {
	evt := Event{Type: typ, Data: data}
	if userID != "" {
		s.Broker.Publish("user:"+userID, evt)
	}
	if companyID != "" {
		s.Broker.Publish("company:"+companyID, evt)
	}
	s.Broker.Publish("all", evt)
	metrics.AlertsPublished.WithLabelValues(typ).Inc()
}

// streamKey picks the broker channel an identity may listen on. Admins may
// narrow to a company via ?company_id, otherwise they get the firehose.
func streamKey(ident authz.Identity, q map[string][]string) (string, error) {
	switch ident.Role {
	case authz.RoleAdmin:
		if v, ok := q["company_id"]; ok && len(v) > 0 && v[0] != "" {
			return "company:" + v[0], nil
		}
		return "all", nil
	case authz.RoleClient, authz.RoleOperator:
		if ident.CompanyID == "" {
			return "", authz.ErrUnaffiliated
		}
		return "company:" + ident.CompanyID, nil
	default:
		return "user:" + ident.ID, nil
	}
}

// AlertsHandler handles GET/POST /v1/alerts. Any authenticated role may
// create; the alert is pinned to the caller's own scope unless the caller is
// an admin.
func (s *Server) AlertsHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r)
	switch r.Method {
	case http.MethodGet:
		f, err := authz.DeriveFilter(ident, authz.Alerts, r.URL.Query())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items, total, err := s.Store.ListAlerts(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writePaged(w, items, model.Pagination{Page: f.Page, Limit: f.Limit, Total: total})
	case http.MethodPost:
		var in model.Alert
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid JSON", nil)
			return
		}
		if missing := missingFields(map[string]string{"type": in.Type, "message": in.Message}); missing != nil {
			writeErrorMsg(w, http.StatusBadRequest, "missing required fields", missing)
			return
		}
		switch {
		case ident.IsAdmin():
			// admin may target anyone; payload taken as-is
		case ident.Role.CompanyScoped():
			if in.CompanyID == "" {
				in.CompanyID = ident.CompanyID
			}
			if err := authz.CheckWrite(ident, in.CompanyID); err != nil {
				s.writeError(w, r, err)
				return
			}
			// a user-pinned alert must target someone in the caller's company
			if in.UserID != "" {
				u, err := s.Store.GetUser(r.Context(), in.UserID)
				if errors.Is(err, store.ErrNotFound) {
					s.writeError(w, r, store.ErrInvalidReference)
					return
				}
				if err != nil {
					s.writeError(w, r, err)
					return
				}
				if u.CompanyID != ident.CompanyID {
					s.writeError(w, r, authz.ErrForbidden)
					return
				}
			}
		default:
			// drivers and passengers only raise alerts about themselves
			in.UserID = ident.ID
			in.CompanyID = ident.CompanyID
		}
		a, err := s.Store.CreateAlert(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.publishAlertEvent("alert.created", map[string]any{
			"id": a.ID, "type": a.Type, "priority": a.Priority, "message": a.Message,
		}, a.UserID, a.CompanyID)
		writeData(w, http.StatusCreated, a)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AlertByIDHandler handles /v1/alerts/{id} plus POST /v1/alerts/{id}/read and
// POST /v1/alerts/{id}/resolve.
func (s *Server) AlertByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/alerts/")
	if rest == r.URL.Path || rest == "" {
		writeErrorMsg(w, http.StatusNotFound, "not found", nil)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	ident := identityFrom(r)

	a, err := s.Store.GetAlert(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if len(parts) > 1 {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := authz.CheckRecord(ident, authz.Alerts, a.UserID, a.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		switch parts[1] {
		case "read":
			upd, err := s.Store.MarkAlertRead(r.Context(), id)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeData(w, http.StatusOK, upd)
		case "resolve":
			upd, err := s.Store.ResolveAlert(r.Context(), id)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			s.publishAlertEvent("alert.resolved", map[string]any{"id": upd.ID}, upd.UserID, upd.CompanyID)
			writeData(w, http.StatusOK, upd)
		default:
			writeErrorMsg(w, http.StatusNotFound, "not found", nil)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		if err := authz.CheckRecord(ident, authz.Alerts, a.UserID, a.CompanyID); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, a)
	case http.MethodDelete:
		// operators delete any alert; clients stay company-bound and
		// drivers/passengers own-bound
		switch ident.Role {
		case authz.RoleAdmin, authz.RoleOperator:
		case authz.RoleClient:
			if ident.CompanyID == "" || a.CompanyID != ident.CompanyID {
				s.writeError(w, r, authz.ErrForbidden)
				return
			}
		default:
			if a.UserID == "" || a.UserID != ident.ID {
				s.writeError(w, r, authz.ErrForbidden)
				return
			}
		}
		if err := s.Store.DeleteAlert(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AlertsStreamHandler streams alert events over SSE with a 15s heartbeat.
func (s *Server) AlertsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ident := identityFrom(r)
	key, err := streamKey(ident, r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorMsg(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(key)
	defer s.Broker.Unsubscribe(key, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}
