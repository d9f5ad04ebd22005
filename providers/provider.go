// Package providers defines the cloud provider adapter contract and registry.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/sjkallio/kirjuri/types"
)

// CloudProvider is the capability set every adapter implements. All
// operations are read-only.
type CloudProvider interface {
	// Name returns the provider name (aws, azure)
	Name() string

	// DiscoverScopes enumerates the scopes the credential can see. This
	// doubles as the authentication probe: an error here is fatal to the
	// connection's sync run.
	DiscoverScopes(ctx context.Context) ([]types.Scope, error)

	// ListInventory fetches live resources for one scope
	ListInventory(ctx context.Context, scope types.Scope) ([]types.ObservedResource, error)

	// ListBilling fetches billing line items for one scope over a period
	ListBilling(ctx context.Context, scope types.Scope, start, end time.Time) ([]types.BillingItem, error)
}

// Factory creates a provider instance for a connection
type Factory func(ctx context.Context, conn types.ProviderConnection) (CloudProvider, error)

// Registry of available providers
var providers = make(map[string]Factory)

// Register registers a new provider factory
func Register(name string, factory Factory) {
	providers[name] = factory
}

// ForConnection creates a provider instance for a connection
func ForConnection(ctx context.Context, conn types.ProviderConnection) (CloudProvider, error) {
	factory, exists := providers[conn.Provider]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", conn.Provider)
	}
	return factory(ctx, conn)
}

// List returns available provider names
func List() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
