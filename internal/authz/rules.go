package authz

import (
	"net/url"
	"strconv"

	"fleetops/internal/model"
)

// Resource identifies a resource family.
type Resource string

const (
	Companies  Resource = "companies"
	Drivers    Resource = "drivers"
	Vehicles   Resource = "vehicles"
	Passengers Resource = "passengers"
	Routes     Resource = "routes"
	Alerts     Resource = "alerts"
)

// Scope is the base visibility restriction a role has on a resource family.
type Scope int

const (
	ScopeDenied    Scope = iota // no access at all
	ScopeOwn                    // records with user_id = identity id
	ScopeOwnDriver              // records with driver_id = identity id
	ScopeCompany                // records with company_id = identity company
	ScopeAll                    // unrestricted
)

// rules is the single visibility table. Missing entries mean ScopeDenied.
var rules = map[Resource]map[Role]Scope{
	Alerts: {
		RoleDriver:    ScopeOwn,
		RolePassenger: ScopeOwn,
		RoleClient:    ScopeCompany,
		RoleOperator:  ScopeCompany,
		RoleAdmin:     ScopeAll,
	},
	Drivers: {
		RoleClient:   ScopeCompany,
		RoleOperator: ScopeCompany,
		RoleAdmin:    ScopeAll,
	},
	Passengers: {
		RolePassenger: ScopeOwn,
		RoleClient:    ScopeCompany,
		RoleOperator:  ScopeCompany,
		RoleAdmin:     ScopeAll,
	},
	Routes: {
		RoleDriver:   ScopeOwnDriver,
		RoleClient:   ScopeCompany,
		RoleOperator: ScopeCompany,
		RoleAdmin:    ScopeAll,
	},
	Vehicles: {
		RoleClient:   ScopeCompany,
		RoleOperator: ScopeCompany,
		RoleAdmin:    ScopeAll,
	},
	Companies: {
		RoleAdmin: ScopeAll,
	},
}

// ScopeFor returns the base restriction for a role on a resource family.
func ScopeFor(res Resource, role Role) Scope {
	return rules[res][role]
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

// DeriveFilter builds the store filter for a list operation. The base
// restriction from the rule table is applied first and cannot be widened by
// query parameters: user_id, company_id and driver_id filters are honored for
// admins only. Free-text and status filters are merged for every role.
func DeriveFilter(id Identity, res Resource, q url.Values) (model.Filter, error) {
	var f model.Filter
	switch ScopeFor(res, id.Role) {
	case ScopeOwn:
		f.UserID = id.ID
	case ScopeOwnDriver:
		f.DriverID = id.ID
	case ScopeCompany:
		if id.CompanyID == "" {
			return model.Filter{}, ErrUnaffiliated
		}
		f.CompanyID = id.CompanyID
	case ScopeAll:
		f.UserID = q.Get("user_id")
		f.CompanyID = q.Get("company_id")
		f.DriverID = q.Get("driver_id")
	default:
		return model.Filter{}, ErrForbidden
	}

	f.Status = q.Get("status")
	f.Type = q.Get("type")
	f.Priority = q.Get("priority")
	f.Search = q.Get("search")
	f.VehicleID = q.Get("vehicle_id")

	f.Page = 1
	f.Limit = defaultLimit
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f, nil
}

// CheckRecord re-validates ownership of a single fetched record against the
// identity. The list filter should already exclude foreign records; this is
// the required redundant check on findById-style reads.
func CheckRecord(id Identity, res Resource, ownerUserID, ownerCompanyID string) error {
	switch ScopeFor(res, id.Role) {
	case ScopeAll:
		return nil
	case ScopeOwn:
		if ownerUserID != "" && ownerUserID == id.ID {
			return nil
		}
		return ErrForbidden
	case ScopeOwnDriver:
		if ownerUserID != "" && ownerUserID == id.ID {
			return nil
		}
		return ErrForbidden
	case ScopeCompany:
		if id.CompanyID == "" {
			return ErrUnaffiliated
		}
		if ownerCompanyID == id.CompanyID {
			return nil
		}
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

// CheckWrite validates a create/update/delete against the payload's (or
// existing record's) owning company. Company-scoped roles may only write
// records of their own company; admins are unrestricted.
func CheckWrite(id Identity, companyID string) error {
	if id.IsAdmin() {
		return nil
	}
	if !id.Role.CompanyScoped() {
		return ErrForbidden
	}
	if id.CompanyID == "" {
		return ErrUnaffiliated
	}
	if companyID != id.CompanyID {
		return ErrForbidden
	}
	return nil
}

// CanTransitionRoute reports whether the identity may start or finish the
// route: admin, an operator of the owning company, or the assigned driver.
func CanTransitionRoute(id Identity, rec model.RouteRecord) bool {
	switch id.Role {
	case RoleAdmin:
		return true
	case RoleOperator:
		return id.CompanyID != "" && rec.CompanyID == id.CompanyID
	case RoleDriver:
		return rec.DriverID != "" && rec.DriverID == id.ID
	}
	return false
}
