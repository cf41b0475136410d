package api

import (
	"sync"
)

// LatestLocation holds the latest known position reported by a driver on a
// route in progress.
type LatestLocation struct {
	RouteID  string  `json:"routeId"`
	DriverID string  `json:"driverId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	TS       string  `json:"ts"`
}

// LocationCache stores latest driver locations per route/driver. Positions
// are ephemeral; they are never persisted.
type LocationCache struct {
	mu sync.Mutex
	// key: routeId|driverId
	m map[string]LatestLocation
}

// NewLocationCache constructs a LocationCache.
func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]LatestLocation{}} }

func (c *LocationCache) key(routeID, driverID string) string {
	return routeID + "|" + driverID
}

// Upsert stores or updates the latest location for a driver.
func (c *LocationCache) Upsert(routeID, driverID string, lat, lng float64, ts string) {
	if routeID == "" || driverID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(routeID, driverID)
	c.m[k] = LatestLocation{RouteID: routeID, DriverID: driverID, Lat: lat, Lng: lng, TS: ts}
}

// ListByRoute returns the latest locations for drivers on a route.
func (c *LocationCache) ListByRoute(routeID string) []LatestLocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []LatestLocation{}
	prefix := routeID + "|"
	for k, v := range c.m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	return out
}
