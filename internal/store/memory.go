package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set and by
// the handler tests.
type Memory struct {
	mu         sync.Mutex
	users      map[string]model.User // id -> user
	usersMail  map[string]string     // email -> id
	companies  map[string]model.Company
	drivers    map[string]model.Driver
	vehicles   map[string]model.Vehicle
	passengers map[string]model.Passenger
	routes     map[string]model.RouteRecord
	alerts     map[string]model.Alert
}

func NewMemory() *Memory {
	return &Memory{
		users:      map[string]model.User{},
		usersMail:  map[string]string{},
		companies:  map[string]model.Company{},
		drivers:    map[string]model.Driver{},
		vehicles:   map[string]model.Vehicle{},
		passengers: map[string]model.Passenger{},
		routes:     map[string]model.RouteRecord{},
		alerts:     map[string]model.Alert{},
	}
}

func matches(s, want string) bool { return want == "" || s == want }

func contains(haystack, needle string) bool {
	return needle == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// paginate slices items to the requested page and returns the page plus the
// pre-pagination total.
func paginate[T any](items []T, f model.Filter) ([]T, int) {
	total := len(items)
	if f.Limit <= 0 {
		return items, total
	}
	off := f.Offset()
	if off >= total {
		return []T{}, total
	}
	end := off + f.Limit
	if end > total {
		end = total
	}
	return items[off:end], total
}

// Users

func (m *Memory) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usersMail[strings.ToLower(u.Email)]; ok {
		return model.User{}, ErrConflict
	}
	if u.CompanyID != "" {
		if _, ok := m.companies[u.CompanyID]; !ok {
			return model.User{}, ErrInvalidReference
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = u
	m.usersMail[strings.ToLower(u.Email)] = u.ID
	return u, nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usersMail[strings.ToLower(email)]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return m.users[id], nil
}

// Companies

func (m *Memory) CreateCompany(ctx context.Context, c model.Company) (model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.companies {
		if strings.EqualFold(e.Name, c.Name) {
			return model.Company{}, ErrConflict
		}
	}
	c.ID = uuid.New().String()
	if c.Status == "" {
		c.Status = "active"
	}
	c.CreatedAt = time.Now().UTC()
	m.companies[c.ID] = c
	return c, nil
}

func (m *Memory) GetCompany(ctx context.Context, id string) (model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return model.Company{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) filterCompanies(f model.Filter) []model.Company {
	out := []model.Company{}
	for _, c := range m.companies {
		if !matches(c.Status, f.Status) {
			continue
		}
		if !contains(c.Name+" "+c.Email, f.Search) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListCompanies(ctx context.Context, f model.Filter) ([]model.Company, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, total := paginate(m.filterCompanies(f), f)
	return page, total, nil
}

func (m *Memory) CountCompanies(ctx context.Context, f model.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterCompanies(f)), nil
}

func (m *Memory) UpdateCompany(ctx context.Context, c model.Company) (model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.companies[c.ID]
	if !ok {
		return model.Company{}, ErrNotFound
	}
	for id, e := range m.companies {
		if id != c.ID && strings.EqualFold(e.Name, c.Name) {
			return model.Company{}, ErrConflict
		}
	}
	c.CreatedAt = cur.CreatedAt
	if c.Status == "" {
		c.Status = cur.Status
	}
	m.companies[c.ID] = c
	return c, nil
}

func (m *Memory) DeleteCompany(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[id]; !ok {
		return ErrNotFound
	}
	delete(m.companies, id)
	return nil
}

func (m *Memory) ToggleCompanyStatus(ctx context.Context, id string) (model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return model.Company{}, ErrNotFound
	}
	if c.Status == "active" {
		c.Status = "inactive"
	} else {
		c.Status = "active"
	}
	m.companies[id] = c
	return c, nil
}

// companyName resolves a company id to its name; empty when unknown.
func (m *Memory) companyName(id string) string {
	if c, ok := m.companies[id]; ok {
		return c.Name
	}
	return ""
}

// Drivers

func (m *Memory) CreateDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.companyNameExists(d.Company) {
		return model.Driver{}, ErrInvalidReference
	}
	d.ID = uuid.New().String()
	if d.Status == "" {
		d.Status = "active"
	}
	d.CreatedAt = time.Now().UTC()
	m.drivers[d.ID] = d
	return d, nil
}

func (m *Memory) companyNameExists(name string) bool {
	for _, c := range m.companies {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (m *Memory) GetDriver(ctx context.Context, id string) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return model.Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) filterDrivers(f model.Filter) []model.Driver {
	// Driver rows reference the company by name; translate the id filter.
	wantCompany := ""
	if f.CompanyID != "" {
		wantCompany = m.companyName(f.CompanyID)
		if wantCompany == "" {
			return []model.Driver{}
		}
	}
	out := []model.Driver{}
	for _, d := range m.drivers {
		if wantCompany != "" && !strings.EqualFold(d.Company, wantCompany) {
			continue
		}
		if !matches(d.Status, f.Status) {
			continue
		}
		if !contains(d.Name+" "+d.License, f.Search) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListDrivers(ctx context.Context, f model.Filter) ([]model.Driver, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, total := paginate(m.filterDrivers(f), f)
	return page, total, nil
}

func (m *Memory) CountDrivers(ctx context.Context, f model.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterDrivers(f)), nil
}

func (m *Memory) UpdateDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.drivers[d.ID]
	if !ok {
		return model.Driver{}, ErrNotFound
	}
	if !m.companyNameExists(d.Company) {
		return model.Driver{}, ErrInvalidReference
	}
	d.CreatedAt = cur.CreatedAt
	if d.Status == "" {
		d.Status = cur.Status
	}
	m.drivers[d.ID] = d
	return d, nil
}

func (m *Memory) DeleteDriver(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[id]; !ok {
		return ErrNotFound
	}
	delete(m.drivers, id)
	return nil
}

// Vehicles

func (m *Memory) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[v.CompanyID]; !ok {
		return model.Vehicle{}, ErrInvalidReference
	}
	for _, e := range m.vehicles {
		if strings.EqualFold(e.Plate, v.Plate) {
			return model.Vehicle{}, ErrConflict
		}
	}
	v.ID = uuid.New().String()
	if v.Status == "" {
		v.Status = "active"
	}
	v.CreatedAt = time.Now().UTC()
	m.vehicles[v.ID] = v
	return v, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) filterVehicles(f model.Filter) []model.Vehicle {
	out := []model.Vehicle{}
	for _, v := range m.vehicles {
		if !matches(v.CompanyID, f.CompanyID) || !matches(v.Status, f.Status) {
			continue
		}
		if !contains(v.Plate+" "+v.Model, f.Search) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListVehicles(ctx context.Context, f model.Filter) ([]model.Vehicle, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, total := paginate(m.filterVehicles(f), f)
	return page, total, nil
}

func (m *Memory) CountVehicles(ctx context.Context, f model.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterVehicles(f)), nil
}

func (m *Memory) UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.vehicles[v.ID]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	if _, ok := m.companies[v.CompanyID]; !ok {
		return model.Vehicle{}, ErrInvalidReference
	}
	for id, e := range m.vehicles {
		if id != v.ID && strings.EqualFold(e.Plate, v.Plate) {
			return model.Vehicle{}, ErrConflict
		}
	}
	v.CreatedAt = cur.CreatedAt
	if v.Status == "" {
		v.Status = cur.Status
	}
	m.vehicles[v.ID] = v
	return v, nil
}

func (m *Memory) DeleteVehicle(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[id]; !ok {
		return ErrNotFound
	}
	delete(m.vehicles, id)
	return nil
}

// Passengers

func (m *Memory) CreatePassenger(ctx context.Context, p model.Passenger) (model.Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[p.CompanyID]; !ok {
		return model.Passenger{}, ErrInvalidReference
	}
	p.ID = uuid.New().String()
	if p.Status == "" {
		p.Status = "active"
	}
	p.CreatedAt = time.Now().UTC()
	m.passengers[p.ID] = p
	return p, nil
}

func (m *Memory) GetPassenger(ctx context.Context, id string) (model.Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passengers[id]
	if !ok {
		return model.Passenger{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) filterPassengers(f model.Filter) []model.Passenger {
	out := []model.Passenger{}
	for _, p := range m.passengers {
		if !matches(p.CompanyID, f.CompanyID) || !matches(p.UserID, f.UserID) || !matches(p.Status, f.Status) {
			continue
		}
		if !contains(p.Name+" "+p.PickupAddress, f.Search) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListPassengers(ctx context.Context, f model.Filter) ([]model.Passenger, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, total := paginate(m.filterPassengers(f), f)
	return page, total, nil
}

func (m *Memory) CountPassengers(ctx context.Context, f model.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterPassengers(f)), nil
}

func (m *Memory) UpdatePassenger(ctx context.Context, p model.Passenger) (model.Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.passengers[p.ID]
	if !ok {
		return model.Passenger{}, ErrNotFound
	}
	if _, ok := m.companies[p.CompanyID]; !ok {
		return model.Passenger{}, ErrInvalidReference
	}
	p.CreatedAt = cur.CreatedAt
	if p.Status == "" {
		p.Status = cur.Status
	}
	m.passengers[p.ID] = p
	return p, nil
}

func (m *Memory) DeletePassenger(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.passengers[id]; !ok {
		return ErrNotFound
	}
	delete(m.passengers, id)
	return nil
}

// Routes

func (m *Memory) CreateRoute(ctx context.Context, r model.RouteRecord) (model.RouteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[r.CompanyID]; !ok {
		return model.RouteRecord{}, ErrInvalidReference
	}
	if r.VehicleID != "" {
		if _, ok := m.vehicles[r.VehicleID]; !ok {
			return model.RouteRecord{}, ErrInvalidReference
		}
	}
	r.ID = uuid.New().String()
	r.Status = model.RouteScheduled
	r.StartedAt = nil
	r.FinishedAt = nil
	r.CreatedAt = time.Now().UTC()
	m.routes[r.ID] = r
	return r, nil
}

func (m *Memory) GetRoute(ctx context.Context, id string) (model.RouteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.RouteRecord{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) filterRoutes(f model.Filter) []model.RouteRecord {
	out := []model.RouteRecord{}
	for _, r := range m.routes {
		if !matches(r.CompanyID, f.CompanyID) || !matches(r.DriverID, f.DriverID) ||
			!matches(r.VehicleID, f.VehicleID) || !matches(r.Status, f.Status) {
			continue
		}
		if !contains(r.Name+" "+r.Origin+" "+r.Destination, f.Search) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListRoutes(ctx context.Context, f model.Filter) ([]model.RouteRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, total := paginate(m.filterRoutes(f), f)
	return page, total, nil
}

func (m *Memory) CountRoutes(ctx context.Context, f model.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterRoutes(f)), nil
}

func (m *Memory) UpdateRoute(ctx context.Context, r model.RouteRecord) (model.RouteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.routes[r.ID]
	if !ok {
		return model.RouteRecord{}, ErrNotFound
	}
	if _, ok := m.companies[r.CompanyID]; !ok {
		return model.RouteRecord{}, ErrInvalidReference
	}
	// Status and timestamps only move through Start/Finish.
	r.Status = cur.Status
	r.StartedAt = cur.StartedAt
	r.FinishedAt = cur.FinishedAt
	r.CreatedAt = cur.CreatedAt
	m.routes[r.ID] = r
	return r, nil
}

func (m *Memory) DeleteRoute(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[id]; !ok {
		return ErrNotFound
	}
	delete(m.routes, id)
	return nil
}

func (m *Memory) StartRoute(ctx context.Context, id string, ts time.Time) (model.RouteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.RouteRecord{}, ErrNotFound
	}
	if r.Status != model.RouteScheduled {
		return model.RouteRecord{}, ErrInvalidTransition
	}
	r.Status = model.RouteInProgress
	t := ts.UTC()
	r.StartedAt = &t
	m.routes[id] = r
	return r, nil
}

func (m *Memory) FinishRoute(ctx context.Context, id string, ts time.Time) (model.RouteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.RouteRecord{}, ErrNotFound
	}
	if r.Status != model.RouteInProgress {
		return model.RouteRecord{}, ErrInvalidTransition
	}
	r.Status = model.RouteFinished
	t := ts.UTC()
	r.FinishedAt = &t
	m.routes[id] = r
	return r, nil
}

// Alerts

func (m *Memory) CreateAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CompanyID != "" {
		if _, ok := m.companies[a.CompanyID]; !ok {
			return model.Alert{}, ErrInvalidReference
		}
	}
	a.ID = uuid.New().String()
	if a.Status == "" {
		a.Status = model.AlertUnread
	}
	a.CreatedAt = time.Now().UTC()
	m.alerts[a.ID] = a
	return a, nil
}

func (m *Memory) GetAlert(ctx context.Context, id string) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) filterAlerts(f model.Filter) []model.Alert {
	out := []model.Alert{}
	for _, a := range m.alerts {
		if !matches(a.UserID, f.UserID) || !matches(a.CompanyID, f.CompanyID) ||
			!matches(a.Type, f.Type) || !matches(a.Priority, f.Priority) || !matches(a.Status, f.Status) {
			continue
		}
		if !contains(a.Message, f.Search) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListAlerts(ctx context.Context, f model.Filter) ([]model.Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, total := paginate(m.filterAlerts(f), f)
	return page, total, nil
}

func (m *Memory) CountAlerts(ctx context.Context, f model.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterAlerts(f)), nil
}

func (m *Memory) DeleteAlert(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[id]; !ok {
		return ErrNotFound
	}
	delete(m.alerts, id)
	return nil
}

func (m *Memory) MarkAlertRead(ctx context.Context, id string) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	if a.Status == model.AlertUnread {
		a.Status = model.AlertRead
		m.alerts[id] = a
	}
	return a, nil
}

func (m *Memory) ResolveAlert(ctx context.Context, id string) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	a.Status = model.AlertResolved
	m.alerts[id] = a
	return a, nil
}
