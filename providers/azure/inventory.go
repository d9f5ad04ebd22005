package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/sjkallio/kirjuri/types"
)

// ListInventory lists all ARM resources in one subscription.
func (p *Provider) ListInventory(ctx context.Context, scope types.Scope) ([]types.ObservedResource, error) {
	client, err := armresources.NewClient(scope.ID, p.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resources client: %w", err)
	}

	var resources []types.ObservedResource

	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list resources: %w", err)
		}

		for _, res := range page.Value {
			resources = append(resources, convertResource(res, scope))
		}
	}

	return resources, nil
}

func convertResource(res *armresources.GenericResourceExpanded, scope types.Scope) types.ObservedResource {
	observed := types.ObservedResource{
		ProviderResourceID: deref(res.ID),
		RawType:            strings.ToLower(deref(res.Type)),
		Name:               deref(res.Name),
		Region:             deref(res.Location),
		ScopeID:            scope.ID,
		Status:             deref(res.ProvisioningState),
		// ManagedBy names the owning resource for managed disks and
		// similar attached resources
		AttachedTo: deref(res.ManagedBy),
		SpecFields: map[string]string{},
		CreatedAt:  derefTime(res.CreatedTime),
	}

	if res.Kind != nil {
		observed.SpecFields["kind"] = *res.Kind
	}
	if res.SKU != nil && res.SKU.Name != nil {
		observed.SpecFields["sku"] = *res.SKU.Name
	}

	for key, value := range res.Tags {
		if value == nil {
			continue
		}
		// AKS tags node resources with the owning cluster
		if strings.EqualFold(key, "aks-managed-cluster-name") {
			observed.ClusterLabel = *value
		}
		if strings.EqualFold(key, "kubernetes.io-created-for-pvc-name") && observed.ClusterLabel == "" {
			observed.SpecFields["pvc"] = *value
		}
	}

	return observed
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
