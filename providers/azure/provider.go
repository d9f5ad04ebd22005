// Package azure implements the CloudProvider adapter for Azure.
package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"

	"github.com/sjkallio/kirjuri/providers"
	"github.com/sjkallio/kirjuri/types"
)

func init() {
	providers.Register("azure", NewProviderFactory)
}

// NewProviderFactory creates an Azure provider for a connection
func NewProviderFactory(ctx context.Context, conn types.ProviderConnection) (providers.CloudProvider, error) {
	return NewProvider(conn.Setting("subscription_id", ""))
}

// Provider implements providers.CloudProvider for Azure. Scopes are
// subscriptions; the credential may see only a subset of the tenant.
type Provider struct {
	cred           azcore.TokenCredential
	subsClient     *armsubscriptions.Client
	queryClient    *armcostmanagement.QueryClient
	subscriptionID string // restrict to one subscription when set
}

// NewProvider creates a new Azure provider using the default credential
// chain (env vars, managed identity, CLI).
func NewProvider(subscriptionID string) (*Provider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	subsClient, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %w", err)
	}

	queryClient, err := armcostmanagement.NewQueryClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost management client: %w", err)
	}

	return &Provider{
		cred:           cred,
		subsClient:     subsClient,
		queryClient:    queryClient,
		subscriptionID: subscriptionID,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "azure"
}

// DiscoverScopes enumerates subscriptions visible to the credential.
// The first page fetch doubles as the authentication probe.
func (p *Provider) DiscoverScopes(ctx context.Context) ([]types.Scope, error) {
	var scopes []types.Scope

	pager := p.subsClient.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("authentication failed: %w", err)
		}

		for _, sub := range page.Value {
			if sub.SubscriptionID == nil {
				continue
			}
			id := *sub.SubscriptionID
			if p.subscriptionID != "" && id != p.subscriptionID {
				continue
			}
			scopes = append(scopes, types.Scope{
				ID:   id,
				Kind: "subscription",
			})
		}
	}

	if p.subscriptionID != "" && len(scopes) == 0 {
		return nil, fmt.Errorf("subscription %s not visible to credential", p.subscriptionID)
	}

	return scopes, nil
}
