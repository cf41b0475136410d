package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fleetops/internal/auth"
	"fleetops/internal/authz"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return &Server{
		Store:     store.NewMemory(),
		Auth:      auth.NewVerifier("dev", "", ""),
		Broker:    NewBroker(),
		Locations: NewLocationCache(),
		TokenTTL:  time.Hour,
	}
}

// fixture seeds two companies and one user per role. In dev auth mode the
// bearer token is the user id.
type fixture struct {
	compA, compB model.Company
	admin        model.User
	clientA      model.User
	operatorA    model.User
	driverA      model.User
	passengerA   model.User
	passengerB   model.User
}

func seed(t *testing.T, s *Server) fixture {
	t.Helper()
	ctx := context.Background()
	var fx fixture
	var err error
	fx.compA, err = s.Store.CreateCompany(ctx, model.Company{Name: "Acme Transit"})
	if err != nil {
		t.Fatalf("seed company A: %v", err)
	}
	fx.compB, err = s.Store.CreateCompany(ctx, model.Company{Name: "Borealis Lines"})
	if err != nil {
		t.Fatalf("seed company B: %v", err)
	}
	mk := func(id, email, role, companyID string) model.User {
		u, err := s.Store.CreateUser(ctx, model.User{ID: id, Email: email, Name: id, Role: role, CompanyID: companyID})
		if err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
		return u
	}
	fx.admin = mk("u-admin", "admin@example.com", "admin", "")
	fx.clientA = mk("u-client-a", "client-a@example.com", "client", fx.compA.ID)
	fx.operatorA = mk("u-op-a", "op-a@example.com", "operator", fx.compA.ID)
	fx.driverA = mk("u-driver-a", "driver-a@example.com", "driver", fx.compA.ID)
	fx.passengerA = mk("u-pax-a", "pax-a@example.com", "passenger", fx.compA.ID)
	fx.passengerB = mk("u-pax-b", "pax-b@example.com", "passenger", fx.compB.ID)
	return fx
}

func doReq(t *testing.T, h http.HandlerFunc, method, path, asUser string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if asUser != "" {
		req.Header.Set("Authorization", "Bearer "+asUser)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v (body %s)", err, rr.Body.String())
		}
	}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)

	rr := doReq(t, s.RegisterHandler, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"name": "New Client", "email": "new@example.com", "password": "hunter22",
		"role": "client", "companyId": fx.compA.ID,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: got %d body %s", rr.Code, rr.Body.String())
	}

	// admin self-registration is rejected
	rr = doReq(t, s.RegisterHandler, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"name": "Sneaky", "email": "sneaky@example.com", "password": "x", "role": "admin",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("register admin: got %d", rr.Code)
	}

	// missing fields reported by name
	rr = doReq(t, s.RegisterHandler, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": "x@example.com",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("register missing: got %d", rr.Code)
	}
	var env struct {
		MissingFields []string `json:"missingFields"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	if len(env.MissingFields) != 3 {
		t.Fatalf("missingFields: got %v", env.MissingFields)
	}

	rr = doReq(t, s.LoginHandler, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "new@example.com", "password": "hunter22",
	})
	if rr.Code != 200 {
		t.Fatalf("login: got %d body %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	decodeData(t, rr, &res)
	if res.Token == "" || res.User.Email != "new@example.com" {
		t.Fatalf("login payload: %+v", res)
	}

	rr = doReq(t, s.LoginHandler, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "new@example.com", "password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: got %d", rr.Code)
	}
}

func TestAuthFailures(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)
	h := s.RequireAuth(s.VehiclesHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient)

	// no credential
	rr := doReq(t, h, http.MethodGet, "/v1/vehicles", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing credential: got %d", rr.Code)
	}
	// token for a deleted/unknown user
	rr = doReq(t, h, http.MethodGet, "/v1/vehicles", "u-ghost", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown principal: got %d", rr.Code)
	}
	// wrong role
	rr = doReq(t, h, http.MethodGet, "/v1/vehicles", "u-pax-a", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("insufficient role: got %d", rr.Code)
	}
}

func TestVehiclesCompanyScope(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	ctx := context.Background()
	va, _ := s.Store.CreateVehicle(ctx, model.Vehicle{Plate: "AAA-111", CompanyID: fx.compA.ID})
	vb, _ := s.Store.CreateVehicle(ctx, model.Vehicle{Plate: "BBB-222", CompanyID: fx.compB.ID})

	list := s.RequireAuth(s.VehiclesHandler)
	// client of A sees only A, even when asking for B explicitly
	rr := doReq(t, list, http.MethodGet, "/v1/vehicles?company_id="+fx.compB.ID, fx.clientA.ID, nil)
	if rr.Code != 200 {
		t.Fatalf("list: got %d body %s", rr.Code, rr.Body.String())
	}
	var items []model.Vehicle
	decodeData(t, rr, &items)
	if len(items) != 1 || items[0].ID != va.ID {
		t.Fatalf("client A list: %+v", items)
	}

	// admin with an explicit company filter
	rr = doReq(t, list, http.MethodGet, "/v1/vehicles?company_id="+fx.compB.ID, fx.admin.ID, nil)
	decodeData(t, rr, &items)
	if len(items) != 1 || items[0].ID != vb.ID {
		t.Fatalf("admin filtered list: %+v", items)
	}

	// reading a foreign vehicle by id is forbidden, not hidden as 404
	byID := s.RequireAuth(s.VehicleByIDHandler)
	rr = doReq(t, byID, http.MethodGet, "/v1/vehicles/"+vb.ID, fx.clientA.ID, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign get: got %d", rr.Code)
	}
}

func TestVehicleCreateForForeignCompany(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	h := s.RequireAuth(s.VehiclesHandler)

	// operator of A cannot create in B; rejected before the store is touched
	rr := doReq(t, h, http.MethodPost, "/v1/vehicles", fx.operatorA.ID, map[string]any{
		"plate": "XYZ-999", "companyId": fx.compB.ID,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign create: got %d", rr.Code)
	}
	n, _ := s.Store.CountVehicles(context.Background(), model.Filter{})
	if n != 0 {
		t.Fatalf("vehicle was created despite 403")
	}

	// without an explicit companyId the operator's own company is assumed
	rr = doReq(t, h, http.MethodPost, "/v1/vehicles", fx.operatorA.ID, map[string]any{"plate": "XYZ-999"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("own create: got %d body %s", rr.Code, rr.Body.String())
	}
	var v model.Vehicle
	decodeData(t, rr, &v)
	if v.CompanyID != fx.compA.ID {
		t.Fatalf("companyId: got %s", v.CompanyID)
	}

	// duplicate plate conflicts
	rr = doReq(t, h, http.MethodPost, "/v1/vehicles", fx.operatorA.ID, map[string]any{"plate": "XYZ-999"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("dup plate: got %d", rr.Code)
	}
}

func TestUnaffiliatedCreateIsForbidden(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)
	// an operator with no company can neither fall back to one nor name one
	orphan, err := s.Store.CreateUser(context.Background(), model.User{
		ID: "u-op-orphan", Email: "orphan@example.com", Name: "Orphan", Role: "operator",
	})
	if err != nil {
		t.Fatalf("seed orphan operator: %v", err)
	}

	cases := []struct {
		name string
		h    http.HandlerFunc
		path string
		body map[string]any
	}{
		{"vehicles", s.RequireAuth(s.VehiclesHandler), "/v1/vehicles", map[string]any{"plate": "ZZZ-000"}},
		{"passengers", s.RequireAuth(s.PassengersHandler), "/v1/passengers", map[string]any{"name": "Ghost"}},
		{"routes", s.RequireAuth(s.RoutesHandler), "/v1/routes", map[string]any{"name": "Nowhere Express"}},
	}
	for _, tc := range cases {
		rr := doReq(t, tc.h, http.MethodPost, tc.path, orphan.ID, tc.body)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s create as unaffiliated operator: got %d body %s", tc.name, rr.Code, rr.Body.String())
		}
	}
}

func TestPassengerOwnScope(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	ctx := context.Background()
	pa, _ := s.Store.CreatePassenger(ctx, model.Passenger{UserID: fx.passengerA.ID, Name: "Pax A", CompanyID: fx.compA.ID})
	pb, _ := s.Store.CreatePassenger(ctx, model.Passenger{UserID: fx.passengerB.ID, Name: "Pax B", CompanyID: fx.compB.ID})

	list := s.RequireAuth(s.PassengersHandler)
	rr := doReq(t, list, http.MethodGet, "/v1/passengers", fx.passengerA.ID, nil)
	var items []model.Passenger
	decodeData(t, rr, &items)
	if len(items) != 1 || items[0].ID != pa.ID {
		t.Fatalf("own list: %+v", items)
	}

	byID := s.RequireAuth(s.PassengerByIDHandler)
	// foreign record by id: forbidden even though it exists
	rr = doReq(t, byID, http.MethodGet, "/v1/passengers/"+pb.ID, fx.passengerA.ID, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign passenger get: got %d", rr.Code)
	}
	// passengers cannot write, even to their own record
	rr = doReq(t, byID, http.MethodPut, "/v1/passengers/"+pa.ID, fx.passengerA.ID, map[string]any{"name": "Renamed"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("passenger self-write: got %d", rr.Code)
	}
	// an operator of the same company can
	rr = doReq(t, byID, http.MethodPut, "/v1/passengers/"+pa.ID, fx.operatorA.ID, map[string]any{"name": "Renamed"})
	if rr.Code != 200 {
		t.Fatalf("operator write: got %d body %s", rr.Code, rr.Body.String())
	}
}

func TestDriversCompanyByName(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	h := s.RequireAuth(s.DriversHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient)

	// driver rows carry the company by name
	rr := doReq(t, h, http.MethodPost, "/v1/drivers", fx.operatorA.ID, map[string]any{
		"name": "Dan Driver", "company": fx.compA.Name,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create driver: got %d body %s", rr.Code, rr.Body.String())
	}
	var d model.Driver
	decodeData(t, rr, &d)

	// creating into another company's name is forbidden
	rr = doReq(t, h, http.MethodPost, "/v1/drivers", fx.operatorA.ID, map[string]any{
		"name": "Eve Driver", "company": fx.compB.Name,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign driver create: got %d", rr.Code)
	}

	// unknown company name is an invalid reference for the admin
	rr = doReq(t, h, http.MethodPost, "/v1/drivers", fx.admin.ID, map[string]any{
		"name": "Ghost", "company": "No Such Lines",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad company ref: got %d", rr.Code)
	}

	// client of A lists drivers: the id filter is translated to the name
	rr = doReq(t, h, http.MethodGet, "/v1/drivers", fx.clientA.ID, nil)
	var items []model.Driver
	decodeData(t, rr, &items)
	if len(items) != 1 || items[0].ID != d.ID {
		t.Fatalf("client driver list: %+v", items)
	}

	// moving the driver to another company is forbidden for operators
	byID := s.RequireAuth(s.DriverByIDHandler)
	rr = doReq(t, byID, http.MethodPut, "/v1/drivers/"+d.ID, fx.operatorA.ID, map[string]any{
		"name": "Dan Driver", "company": fx.compB.Name,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("driver move: got %d", rr.Code)
	}
}

func TestRouteLifecycle(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	create := s.RequireAuth(s.RoutesHandler)
	byID := s.RequireAuth(s.RouteByIDHandler)

	rr := doReq(t, create, http.MethodPost, "/v1/routes", fx.operatorA.ID, map[string]any{
		"name": "Morning Run", "driverId": fx.driverA.ID,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create route: got %d body %s", rr.Code, rr.Body.String())
	}
	var rt model.RouteRecord
	decodeData(t, rr, &rt)
	if rt.Status != model.RouteScheduled {
		t.Fatalf("new route status: %s", rt.Status)
	}

	// finishing before starting is an invalid transition
	rr = doReq(t, byID, http.MethodPost, "/v1/routes/"+rt.ID+"/finish", fx.driverA.ID, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("finish scheduled: got %d", rr.Code)
	}

	// the assigned driver starts it
	rr = doReq(t, byID, http.MethodPost, "/v1/routes/"+rt.ID+"/start", fx.driverA.ID, nil)
	if rr.Code != 200 {
		t.Fatalf("start: got %d body %s", rr.Code, rr.Body.String())
	}
	decodeData(t, rr, &rt)
	if rt.Status != model.RouteInProgress || rt.StartedAt == nil {
		t.Fatalf("started route: %+v", rt)
	}

	// starting twice conflicts
	rr = doReq(t, byID, http.MethodPost, "/v1/routes/"+rt.ID+"/start", fx.driverA.ID, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("double start: got %d", rr.Code)
	}

	// a client may see the route but not drive its lifecycle
	rr = doReq(t, byID, http.MethodPost, "/v1/routes/"+rt.ID+"/finish", fx.clientA.ID, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("client finish: got %d", rr.Code)
	}

	rr = doReq(t, byID, http.MethodPost, "/v1/routes/"+rt.ID+"/finish", fx.driverA.ID, nil)
	if rr.Code != 200 {
		t.Fatalf("finish: got %d", rr.Code)
	}
	decodeData(t, rr, &rt)
	if rt.Status != model.RouteFinished || rt.FinishedAt == nil {
		t.Fatalf("finished route: %+v", rt)
	}
}

func TestDriverSeesOnlyAssignedRoutes(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	ctx := context.Background()
	mine, _ := s.Store.CreateRoute(ctx, model.RouteRecord{Name: "Mine", CompanyID: fx.compA.ID, DriverID: fx.driverA.ID})
	other, _ := s.Store.CreateRoute(ctx, model.RouteRecord{Name: "Other", CompanyID: fx.compA.ID})

	list := s.RequireAuth(s.RoutesHandler)
	rr := doReq(t, list, http.MethodGet, "/v1/routes", fx.driverA.ID, nil)
	var items []model.RouteRecord
	decodeData(t, rr, &items)
	if len(items) != 1 || items[0].ID != mine.ID {
		t.Fatalf("driver route list: %+v", items)
	}

	// same-company unassigned route stays invisible by id too
	byID := s.RequireAuth(s.RouteByIDHandler)
	rr = doReq(t, byID, http.MethodGet, "/v1/routes/"+other.ID, fx.driverA.ID, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unassigned route get: got %d", rr.Code)
	}

	// drivers cannot create routes
	rr = doReq(t, list, http.MethodPost, "/v1/routes", fx.driverA.ID, map[string]any{
		"name": "Rogue", "companyId": fx.compA.ID,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("driver create route: got %d", rr.Code)
	}
}

func TestRouteLocation(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	ctx := context.Background()
	rt, _ := s.Store.CreateRoute(ctx, model.RouteRecord{Name: "Tracked", CompanyID: fx.compA.ID, DriverID: fx.driverA.ID})

	byID := s.RequireAuth(s.RouteByIDHandler)
	rr := doReq(t, byID, http.MethodPost, "/v1/routes/"+rt.ID+"/location", fx.driverA.ID, map[string]any{
		"lat": 41.0, "lng": 28.9,
	})
	if rr.Code != 200 {
		t.Fatalf("post location: got %d body %s", rr.Code, rr.Body.String())
	}

	rr = doReq(t, byID, http.MethodGet, "/v1/routes/"+rt.ID+"/location", fx.clientA.ID, nil)
	if rr.Code != 200 {
		t.Fatalf("get location: got %d", rr.Code)
	}
	var locs []LatestLocation
	decodeData(t, rr, &locs)
	if len(locs) != 1 || locs[0].Lat != 41.0 {
		t.Fatalf("locations: %+v", locs)
	}

	// clients cannot push positions
	rr = doReq(t, byID, http.MethodPost, "/v1/routes/"+rt.ID+"/location", fx.clientA.ID, map[string]any{
		"lat": 0.0, "lng": 0.0,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("client post location: got %d", rr.Code)
	}
}

func TestCompanyToggleStatus(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	h := s.RequireAuth(s.CompanyByIDHandler, authz.RoleAdmin)

	rr := doReq(t, h, http.MethodPost, "/v1/companies/"+fx.compA.ID+"/toggle-status", fx.admin.ID, nil)
	var c model.Company
	decodeData(t, rr, &c)
	if c.Status != "inactive" {
		t.Fatalf("toggle 1: %s", c.Status)
	}
	rr = doReq(t, h, http.MethodPost, "/v1/companies/"+fx.compA.ID+"/toggle-status", fx.admin.ID, nil)
	decodeData(t, rr, &c)
	if c.Status != "active" {
		t.Fatalf("toggle 2: %s", c.Status)
	}

	// only admins reach company endpoints at all
	rr = doReq(t, h, http.MethodPost, "/v1/companies/"+fx.compA.ID+"/toggle-status", fx.operatorA.ID, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("operator toggle: got %d", rr.Code)
	}
}

func TestCompanyUpdateKeepsOmittedFields(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	h := s.RequireAuth(s.CompanyByIDHandler, authz.RoleAdmin)

	// a partial update touches only the fields it names
	rr := doReq(t, h, http.MethodPut, "/v1/companies/"+fx.compA.ID, fx.admin.ID, map[string]any{
		"email": "ops@acme.example",
	})
	if rr.Code != 200 {
		t.Fatalf("partial update: got %d body %s", rr.Code, rr.Body.String())
	}
	var c model.Company
	decodeData(t, rr, &c)
	if c.Name != "Acme Transit" {
		t.Fatalf("name blanked by partial update: %q", c.Name)
	}
	if c.Email != "ops@acme.example" {
		t.Fatalf("email: %q", c.Email)
	}

	// an empty body is a no-op rather than a wipe
	rr = doReq(t, h, http.MethodPut, "/v1/companies/"+fx.compA.ID, fx.admin.ID, map[string]any{})
	if rr.Code != 200 {
		t.Fatalf("empty update: got %d body %s", rr.Code, rr.Body.String())
	}
	decodeData(t, rr, &c)
	if c.Name != "Acme Transit" || c.Email != "ops@acme.example" {
		t.Fatalf("empty update wiped fields: %+v", c)
	}
}

func TestAlertsScopes(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	ctx := context.Background()
	own, _ := s.Store.CreateAlert(ctx, model.Alert{UserID: fx.passengerA.ID, CompanyID: fx.compA.ID, Type: "delay", Message: "bus late"})
	companyWide, _ := s.Store.CreateAlert(ctx, model.Alert{CompanyID: fx.compA.ID, Type: "maintenance", Message: "depot closed"})
	foreign, _ := s.Store.CreateAlert(ctx, model.Alert{UserID: fx.passengerB.ID, CompanyID: fx.compB.ID, Type: "delay", Message: "other bus late"})

	list := s.RequireAuth(s.AlertsHandler)
	// passenger: own alerts only
	rr := doReq(t, list, http.MethodGet, "/v1/alerts", fx.passengerA.ID, nil)
	var items []model.Alert
	decodeData(t, rr, &items)
	if len(items) != 1 || items[0].ID != own.ID {
		t.Fatalf("passenger alerts: %+v", items)
	}
	// client: everything in the company, including user-pinned alerts
	rr = doReq(t, list, http.MethodGet, "/v1/alerts", fx.clientA.ID, nil)
	decodeData(t, rr, &items)
	if len(items) != 2 {
		t.Fatalf("client alerts: %+v", items)
	}

	byID := s.RequireAuth(s.AlertByIDHandler)
	// read transition: unread -> read
	rr = doReq(t, byID, http.MethodPost, "/v1/alerts/"+own.ID+"/read", fx.passengerA.ID, nil)
	var a model.Alert
	decodeData(t, rr, &a)
	if a.Status != model.AlertRead {
		t.Fatalf("read: %s", a.Status)
	}
	// resolve
	rr = doReq(t, byID, http.MethodPost, "/v1/alerts/"+companyWide.ID+"/resolve", fx.operatorA.ID, nil)
	decodeData(t, rr, &a)
	if a.Status != model.AlertResolved {
		t.Fatalf("resolve: %s", a.Status)
	}

	// passenger cannot see a foreign alert
	rr = doReq(t, byID, http.MethodGet, "/v1/alerts/"+foreign.ID, fx.passengerA.ID, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign alert get: got %d", rr.Code)
	}
	// client cannot delete a foreign alert, but an operator may delete any
	rr = doReq(t, byID, http.MethodDelete, "/v1/alerts/"+foreign.ID, fx.clientA.ID, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("client delete foreign: got %d", rr.Code)
	}
	rr = doReq(t, byID, http.MethodDelete, "/v1/alerts/"+foreign.ID, fx.operatorA.ID, nil)
	if rr.Code != 200 {
		t.Fatalf("operator delete foreign: got %d", rr.Code)
	}
}

func TestAlertCreatePinsOwnScope(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	h := s.RequireAuth(s.AlertsHandler)

	// passenger-created alerts are pinned to the caller regardless of payload
	rr := doReq(t, h, http.MethodPost, "/v1/alerts", fx.passengerA.ID, map[string]any{
		"type": "lost_item", "message": "left my bag", "userId": fx.passengerB.ID, "companyId": fx.compB.ID,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d body %s", rr.Code, rr.Body.String())
	}
	var a model.Alert
	decodeData(t, rr, &a)
	if a.UserID != fx.passengerA.ID || a.CompanyID != fx.compA.ID {
		t.Fatalf("pinned alert: %+v", a)
	}
	if a.Status != model.AlertUnread {
		t.Fatalf("new alert status: %s", a.Status)
	}
}

func TestAlertCreateRejectsForeignUser(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	h := s.RequireAuth(s.AlertsHandler)

	// operator of A cannot pin an alert to a user of B
	rr := doReq(t, h, http.MethodPost, "/v1/alerts", fx.operatorA.ID, map[string]any{
		"type": "delay", "message": "bus late", "userId": fx.passengerB.ID,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign user pin: got %d body %s", rr.Code, rr.Body.String())
	}

	// an unknown userId is a bad reference, not a silent broadcast
	rr = doReq(t, h, http.MethodPost, "/v1/alerts", fx.operatorA.ID, map[string]any{
		"type": "delay", "message": "bus late", "userId": "u-nope",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown user pin: got %d body %s", rr.Code, rr.Body.String())
	}

	// pinning to someone in the operator's own company is fine
	rr = doReq(t, h, http.MethodPost, "/v1/alerts", fx.operatorA.ID, map[string]any{
		"type": "delay", "message": "bus late", "userId": fx.passengerA.ID,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("own user pin: got %d body %s", rr.Code, rr.Body.String())
	}
	var a model.Alert
	decodeData(t, rr, &a)
	if a.UserID != fx.passengerA.ID || a.CompanyID != fx.compA.ID {
		t.Fatalf("pinned alert: %+v", a)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	ctx := context.Background()
	_, _ = s.Store.CreateVehicle(ctx, model.Vehicle{Plate: "AAA-111", CompanyID: fx.compA.ID})
	_, _ = s.Store.CreateVehicle(ctx, model.Vehicle{Plate: "BBB-222", CompanyID: fx.compB.ID})
	_, _ = s.Store.CreateRoute(ctx, model.RouteRecord{Name: "R1", CompanyID: fx.compA.ID, DriverID: fx.driverA.ID})

	h := s.RequireAuth(s.StatsHandler)
	rr := doReq(t, h, http.MethodGet, "/v1/stats", fx.clientA.ID, nil)
	if rr.Code != 200 {
		t.Fatalf("stats: got %d body %s", rr.Code, rr.Body.String())
	}
	var st model.Stats
	decodeData(t, rr, &st)
	if st.Companies != nil {
		t.Fatalf("client should not see the companies counter")
	}
	if st.Vehicles == nil || *st.Vehicles != 1 {
		t.Fatalf("vehicles counter: %+v", st.Vehicles)
	}
	if st.Routes == nil || *st.Routes != 1 {
		t.Fatalf("routes counter: %+v", st.Routes)
	}

	rr = doReq(t, h, http.MethodGet, "/v1/stats", fx.admin.ID, nil)
	decodeData(t, rr, &st)
	if st.Companies == nil || *st.Companies != 2 || st.Vehicles == nil || *st.Vehicles != 2 {
		t.Fatalf("admin stats: %+v", st)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher and
// captures writes for SSE tests.
type sseRecorder struct {
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int)           { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush()                      {}

func TestAlertsStreamSSE(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts/stream", nil)
	req.Header.Set("Authorization", "Bearer "+fx.passengerA.ID)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.RequireAuth(s.AlertsStreamHandler)(rec, req)
		close(done)
	}()

	// give the handler time to subscribe
	time.Sleep(50 * time.Millisecond)
	s.publishAlertEvent("alert.created", map[string]any{"id": "a1"}, fx.passengerA.ID, fx.compA.ID)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if bytes.Contains(rec.buf.Bytes(), []byte("event: alert.created")) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !bytes.Contains(rec.buf.Bytes(), []byte("event: alert.created")) {
		t.Fatalf("SSE did not contain expected event. Body: %s", rec.buf.String())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("handler did not exit after cancel")
	}
}

func TestPaginationEnvelope(t *testing.T) {
	s := newTestServer(t)
	fx := seed(t, s)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = s.Store.CreateAlert(ctx, model.Alert{CompanyID: fx.compA.ID, Type: "info", Message: "m"})
		time.Sleep(time.Millisecond)
	}
	h := s.RequireAuth(s.AlertsHandler)
	rr := doReq(t, h, http.MethodGet, "/v1/alerts?page=2&limit=2", fx.clientA.ID, nil)
	var env struct {
		Success    bool             `json:"success"`
		Data       []model.Alert    `json:"data"`
		Pagination model.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 2 || env.Pagination.Page != 2 || env.Pagination.Limit != 2 || env.Pagination.Total != 5 {
		t.Fatalf("pagination: %+v (%d items)", env.Pagination, len(env.Data))
	}
}

func TestLoginBcryptSeededUser(t *testing.T) {
	s := newTestServer(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	_, err := s.Store.CreateUser(context.Background(), model.User{
		ID: "u-seeded", Email: "seeded@example.com", Name: "Seeded", Role: "admin", PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	rr := doReq(t, s.LoginHandler, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "seeded@example.com", "password": "s3cret",
	})
	if rr.Code != 200 {
		t.Fatalf("login: got %d body %s", rr.Code, rr.Body.String())
	}
}
