package authz

import (
	"errors"
	"net/url"
	"testing"

	"fleetops/internal/model"
)

func TestDeriveFilterScopes(t *testing.T) {
	cases := []struct {
		name  string
		id    Identity
		res   Resource
		query url.Values
		want  model.Filter
		err   error
	}{
		{
			name: "driver routes pinned to own id",
			id:   Identity{ID: "u1", Role: RoleDriver, CompanyID: "c1"},
			res:  Routes,
			want: model.Filter{DriverID: "u1", Page: 1, Limit: 20},
		},
		{
			name:  "driver cannot widen via driver_id",
			id:    Identity{ID: "u1", Role: RoleDriver, CompanyID: "c1"},
			res:   Routes,
			query: url.Values{"driver_id": {"someone-else"}},
			want:  model.Filter{DriverID: "u1", Page: 1, Limit: 20},
		},
		{
			name:  "client cannot widen via company_id",
			id:    Identity{ID: "u2", Role: RoleClient, CompanyID: "c1"},
			res:   Vehicles,
			query: url.Values{"company_id": {"c2"}},
			want:  model.Filter{CompanyID: "c1", Page: 1, Limit: 20},
		},
		{
			name: "passenger alerts pinned to own user",
			id:   Identity{ID: "u3", Role: RolePassenger, CompanyID: "c1"},
			res:  Alerts,
			want: model.Filter{UserID: "u3", Page: 1, Limit: 20},
		},
		{
			name: "unaffiliated operator rejected",
			id:   Identity{ID: "u4", Role: RoleOperator},
			res:  Vehicles,
			err:  ErrUnaffiliated,
		},
		{
			name: "passenger denied on vehicles",
			id:   Identity{ID: "u3", Role: RolePassenger, CompanyID: "c1"},
			res:  Vehicles,
			err:  ErrForbidden,
		},
		{
			name: "driver denied on passengers",
			id:   Identity{ID: "u1", Role: RoleDriver, CompanyID: "c1"},
			res:  Passengers,
			err:  ErrForbidden,
		},
		{
			name:  "admin filter params honored",
			id:    Identity{ID: "a1", Role: RoleAdmin},
			res:   Routes,
			query: url.Values{"company_id": {"c2"}, "driver_id": {"d9"}, "status": {"scheduled"}},
			want:  model.Filter{CompanyID: "c2", DriverID: "d9", Status: "scheduled", Page: 1, Limit: 20},
		},
		{
			name:  "limit clamped",
			id:    Identity{ID: "a1", Role: RoleAdmin},
			res:   Alerts,
			query: url.Values{"limit": {"5000"}, "page": {"3"}},
			want:  model.Filter{Page: 3, Limit: 100},
		},
		{
			name:  "bad paging falls back to defaults",
			id:    Identity{ID: "a1", Role: RoleAdmin},
			res:   Alerts,
			query: url.Values{"limit": {"-2"}, "page": {"zero"}},
			want:  model.Filter{Page: 1, Limit: 20},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.query
			if q == nil {
				q = url.Values{}
			}
			got, err := DeriveFilter(tc.id, tc.res, q)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("err = %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("filter = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestCheckRecord(t *testing.T) {
	client := Identity{ID: "u1", Role: RoleClient, CompanyID: "c1"}
	if err := CheckRecord(client, Vehicles, "", "c1"); err != nil {
		t.Fatalf("own company: %v", err)
	}
	if err := CheckRecord(client, Vehicles, "", "c2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign company: %v", err)
	}

	pax := Identity{ID: "u2", Role: RolePassenger, CompanyID: "c1"}
	if err := CheckRecord(pax, Alerts, "u2", "c1"); err != nil {
		t.Fatalf("own record: %v", err)
	}
	if err := CheckRecord(pax, Alerts, "u9", "c1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign record: %v", err)
	}
	// a record with no owner never matches an own-scope identity
	if err := CheckRecord(pax, Alerts, "", "c1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ownerless record: %v", err)
	}

	admin := Identity{ID: "a", Role: RoleAdmin}
	if err := CheckRecord(admin, Vehicles, "", "c9"); err != nil {
		t.Fatalf("admin: %v", err)
	}
}

func TestCheckWrite(t *testing.T) {
	if err := CheckWrite(Identity{Role: RoleAdmin}, "anything"); err != nil {
		t.Fatalf("admin: %v", err)
	}
	op := Identity{Role: RoleOperator, CompanyID: "c1"}
	if err := CheckWrite(op, "c1"); err != nil {
		t.Fatalf("own company: %v", err)
	}
	if err := CheckWrite(op, "c2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign company: %v", err)
	}
	if err := CheckWrite(Identity{Role: RoleOperator}, "c1"); !errors.Is(err, ErrUnaffiliated) {
		t.Fatalf("unaffiliated: %v", err)
	}
	if err := CheckWrite(Identity{Role: RolePassenger, CompanyID: "c1"}, "c1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("passenger write: %v", err)
	}
}

func TestCanTransitionRoute(t *testing.T) {
	rec := model.RouteRecord{ID: "r1", CompanyID: "c1", DriverID: "d1"}
	cases := []struct {
		id   Identity
		want bool
	}{
		{Identity{Role: RoleAdmin}, true},
		{Identity{Role: RoleOperator, CompanyID: "c1"}, true},
		{Identity{Role: RoleOperator, CompanyID: "c2"}, false},
		{Identity{ID: "d1", Role: RoleDriver, CompanyID: "c1"}, true},
		{Identity{ID: "d2", Role: RoleDriver, CompanyID: "c1"}, false},
		{Identity{Role: RoleClient, CompanyID: "c1"}, false},
		{Identity{ID: "d1", Role: RolePassenger}, false},
	}
	for _, tc := range cases {
		if got := CanTransitionRoute(tc.id, rec); got != tc.want {
			t.Errorf("CanTransitionRoute(%+v) = %v, want %v", tc.id, got, tc.want)
		}
	}
	// unassigned route: no driver can transition it
	if CanTransitionRoute(Identity{ID: "d1", Role: RoleDriver}, model.RouteRecord{ID: "r2", CompanyID: "c1"}) {
		t.Error("driver transitioned an unassigned route")
	}
}
