package plans

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Unlimited marks a limit with no enforced ceiling.
const Unlimited = -1

// Entitlement is the bundle of limits and feature flags granted by a plan.
type Entitlement struct {
	MaxUsers        int      `json:"max_users"`
	MaxStorageBytes int64    `json:"max_storage_bytes"`
	Features        []string `json:"features"`
}

// FreeTier is the fallback bundle applied when a subscription is cancelled.
// It is intentionally a constant rather than a catalog entry so that a
// misconfigured catalog can never change what a cancelled tenant keeps.
func FreeTier() Entitlement {
	return Entitlement{
		MaxUsers:        5,
		MaxStorageBytes: 1 * 1024 * 1024 * 1024, // 1GB
		Features:        []string{"basic"},
	}
}

// UnknownPlanError indicates a plan identifier with no catalog entry.
// A checkout referencing an unknown plan must not silently grant default
// access, so callers treat this as a fatal configuration error.
type UnknownPlanError struct {
	Plan string
}

func (e *UnknownPlanError) Error() string {
	return "unknown plan: " + e.Plan
}

// IsUnknownPlan checks if an error is an UnknownPlanError.
func IsUnknownPlan(err error) bool {
	var unknownErr *UnknownPlanError
	return errors.As(err, &unknownErr)
}

// Catalog maps plan identifiers to entitlement bundles.
type Catalog struct {
	entries map[string]Entitlement
}

// DefaultCatalog returns the built-in plan table.
func DefaultCatalog() *Catalog {
	return &Catalog{
		entries: map[string]Entitlement{
			"starter": {
				MaxUsers:        10,
				MaxStorageBytes: 10 * 1024 * 1024 * 1024, // 10GB
				Features:        []string{"basic", "priority-support"},
			},
			"pro": {
				MaxUsers:        50,
				MaxStorageBytes: 100 * 1024 * 1024 * 1024, // 100GB
				Features:        []string{"basic", "priority-support", "advanced-analytics", "api-access"},
			},
			"enterprise": {
				MaxUsers:        Unlimited,
				MaxStorageBytes: Unlimited,
				Features:        []string{"basic", "priority-support", "advanced-analytics", "api-access", "custom-integrations"},
			},
		},
	}
}

// LoadCatalog reads a plan table from a JSON file. The file holds a map of
// plan name to entitlement, replacing the built-in table entirely.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}

	var entries map[string]Entitlement
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("plan catalog %s defines no plans", path)
	}

	return &Catalog{entries: entries}, nil
}

// EntitlementsFor returns the entitlement bundle for a plan.
func (c *Catalog) EntitlementsFor(plan string) (Entitlement, error) {
	ent, ok := c.entries[plan]
	if !ok {
		return Entitlement{}, &UnknownPlanError{Plan: plan}
	}
	return ent, nil
}

// Plans returns the plan identifiers the catalog knows about.
func (c *Catalog) Plans() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	return names
}
