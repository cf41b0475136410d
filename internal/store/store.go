// Package store defines the persistence interface used by the API server and
// provides an in-memory implementation (dev/tests) and a Postgres one.
package store

import (
	"context"
	"errors"
	"time"

	"fleetops/internal/model"
)

// Store is the persistence interface used by the API server. Implementations
// apply filters and pagination themselves and know nothing about roles; all
// authorization happens before these methods are called.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)

	// Companies
	CreateCompany(ctx context.Context, c model.Company) (model.Company, error)
	GetCompany(ctx context.Context, id string) (model.Company, error)
	ListCompanies(ctx context.Context, f model.Filter) ([]model.Company, int, error)
	UpdateCompany(ctx context.Context, c model.Company) (model.Company, error)
	DeleteCompany(ctx context.Context, id string) error
	ToggleCompanyStatus(ctx context.Context, id string) (model.Company, error)
	CountCompanies(ctx context.Context, f model.Filter) (int, error)

	// Drivers. ListDrivers resolves Filter.CompanyID to the company name
	// before matching, since driver rows carry the company by name.
	CreateDriver(ctx context.Context, d model.Driver) (model.Driver, error)
	GetDriver(ctx context.Context, id string) (model.Driver, error)
	ListDrivers(ctx context.Context, f model.Filter) ([]model.Driver, int, error)
	UpdateDriver(ctx context.Context, d model.Driver) (model.Driver, error)
	DeleteDriver(ctx context.Context, id string) error
	CountDrivers(ctx context.Context, f model.Filter) (int, error)

	// Vehicles
	CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	ListVehicles(ctx context.Context, f model.Filter) ([]model.Vehicle, int, error)
	UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
	CountVehicles(ctx context.Context, f model.Filter) (int, error)

	// Passengers
	CreatePassenger(ctx context.Context, p model.Passenger) (model.Passenger, error)
	GetPassenger(ctx context.Context, id string) (model.Passenger, error)
	ListPassengers(ctx context.Context, f model.Filter) ([]model.Passenger, int, error)
	UpdatePassenger(ctx context.Context, p model.Passenger) (model.Passenger, error)
	DeletePassenger(ctx context.Context, id string) error
	CountPassengers(ctx context.Context, f model.Filter) (int, error)

	// Routes. Start/Finish enforce the scheduled -> in_progress -> finished
	// state machine exactly and return ErrInvalidTransition otherwise.
	CreateRoute(ctx context.Context, r model.RouteRecord) (model.RouteRecord, error)
	GetRoute(ctx context.Context, id string) (model.RouteRecord, error)
	ListRoutes(ctx context.Context, f model.Filter) ([]model.RouteRecord, int, error)
	UpdateRoute(ctx context.Context, r model.RouteRecord) (model.RouteRecord, error)
	DeleteRoute(ctx context.Context, id string) error
	StartRoute(ctx context.Context, id string, ts time.Time) (model.RouteRecord, error)
	FinishRoute(ctx context.Context, id string, ts time.Time) (model.RouteRecord, error)
	CountRoutes(ctx context.Context, f model.Filter) (int, error)

	// Alerts
	CreateAlert(ctx context.Context, a model.Alert) (model.Alert, error)
	GetAlert(ctx context.Context, id string) (model.Alert, error)
	ListAlerts(ctx context.Context, f model.Filter) ([]model.Alert, int, error)
	DeleteAlert(ctx context.Context, id string) error
	MarkAlertRead(ctx context.Context, id string) (model.Alert, error)
	ResolveAlert(ctx context.Context, id string) (model.Alert, error)
	CountAlerts(ctx context.Context, f model.Filter) (int, error)
}

// Store-layer error taxonomy. Driver-specific failures are normalized to
// these before leaving the package; raw driver errors never reach handlers
// except as wrapped internal errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrInvalidTransition = errors.New("invalid status transition")
)
