package model

import "time"

// Core domain types shared by the API layer and both stores.

// User is an authenticated account. Drivers and passengers reference their
// user row through UserID on the owned record; clients and operators are tied
// to a company through CompanyID.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"` // admin, operator, client, driver, passenger
	CompanyID    string    `json:"companyId,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status"` // active, inactive
	CreatedAt time.Time `json:"createdAt"`
}

// Driver carries its owning company by NAME, not id. Listing by company_id
// therefore goes through a company -> name resolution inside the store.
type Driver struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Name      string    `json:"name"`
	License   string    `json:"license,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company"`
	Status    string    `json:"status"` // active, inactive
	CreatedAt time.Time `json:"createdAt"`
}

type Vehicle struct {
	ID        string    `json:"id"`
	Plate     string    `json:"plate"`
	Model     string    `json:"model,omitempty"`
	Capacity  int       `json:"capacity,omitempty"`
	CompanyID string    `json:"companyId"`
	Status    string    `json:"status"` // active, maintenance, inactive
	CreatedAt time.Time `json:"createdAt"`
}

type Passenger struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	PickupAddress string    `json:"pickupAddress,omitempty"`
	CompanyID     string    `json:"companyId"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Route lifecycle statuses.
const (
	RouteScheduled  = "scheduled"
	RouteInProgress = "in_progress"
	RouteFinished   = "finished"
)

// RouteRecord is a planned trip. DriverID references the driver's user id so
// the assigned driver can be matched directly against an authenticated
// identity.
type RouteRecord struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CompanyID   string     `json:"companyId"`
	DriverID    string     `json:"driverId,omitempty"`
	VehicleID   string     `json:"vehicleId,omitempty"`
	Origin      string     `json:"origin,omitempty"`
	Destination string     `json:"destination,omitempty"`
	Status      string     `json:"status"` // scheduled, in_progress, finished
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Alert statuses.
const (
	AlertUnread   = "unread"
	AlertRead     = "read"
	AlertResolved = "resolved"
)

type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	CompanyID string    `json:"companyId,omitempty"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority,omitempty"` // low, medium, high
	Message   string    `json:"message"`
	Status    string    `json:"status"` // unread, read, resolved
	CreatedAt time.Time `json:"createdAt"`
}

// Filter is the validated query restriction passed to the store. It is only
// constructed by the authorization layer; handlers never assemble one from
// raw query parameters.
type Filter struct {
	UserID    string
	CompanyID string
	DriverID  string
	VehicleID string
	Status    string
	Type      string
	Priority  string
	Search    string
	Page      int
	Limit     int
}

// Offset returns the zero-based offset implied by Page/Limit.
func (f Filter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Pagination echoes the applied paging back to the caller.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Stats is the aggregate counters response. Families the caller may not list
// are omitted rather than reported as zero.
type Stats struct {
	Companies  *int `json:"companies,omitempty"`
	Drivers    *int `json:"drivers,omitempty"`
	Vehicles   *int `json:"vehicles,omitempty"`
	Passengers *int `json:"passengers,omitempty"`
	Routes     *int `json:"routes,omitempty"`
	Alerts     *int `json:"alerts,omitempty"`
}
