package api

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"fleetops/internal/authz"
	"fleetops/internal/model"
)

// StatsHandler handles GET /v1/stats: aggregate counters across every family
// the caller may list, counted under the same visibility filter as the list
// endpoints. Families outside the caller's scope are omitted. All-or-nothing:
// one failed count fails the whole response.
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ident := identityFrom(r)

	type counter struct {
		res   authz.Resource
		dst   **int
		count func(context.Context, model.Filter) (int, error)
	}
	var out model.Stats
	counters := []counter{
		{authz.Companies, &out.Companies, s.Store.CountCompanies},
		{authz.Drivers, &out.Drivers, s.Store.CountDrivers},
		{authz.Vehicles, &out.Vehicles, s.Store.CountVehicles},
		{authz.Passengers, &out.Passengers, s.Store.CountPassengers},
		{authz.Routes, &out.Routes, s.Store.CountRoutes},
		{authz.Alerts, &out.Alerts, s.Store.CountAlerts},
	}

	g, ctx := errgroup.WithContext(r.Context())
	for _, c := range counters {
		if authz.ScopeFor(c.res, ident.Role) == authz.ScopeDenied {
			continue
		}
		f, err := authz.DeriveFilter(ident, c.res, url.Values{})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		c := c
		g.Go(func() error {
			n, err := c.count(ctx, f)
			if err != nil {
				return err
			}
			*c.dst = &n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out)
}
