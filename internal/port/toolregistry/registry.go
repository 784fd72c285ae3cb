// Package toolregistry defines the tool enable/disable store port.
// The registry is an opaque key-value store; keys identify tools or
// whole agent roles ("role:dev").
package toolregistry

import "context"

// Store is the port interface for tool enablement flags.
type Store interface {
	// Enabled reports whether the key is enabled. Missing keys default
	// to enabled.
	Enabled(ctx context.Context, key string) (bool, error)

	// SetEnabled flips the flag for the key.
	SetEnabled(ctx context.Context, key string, enabled bool) error

	// Keys lists all known keys.
	Keys(ctx context.Context) ([]string, error)
}

// RoleKey returns the enablement key for an agent role.
func RoleKey(role string) string {
	return "role:" + role
}
