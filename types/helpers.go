package types

// BuildResourceMap converts a slice of resources to a map keyed by
// provider resource id for efficient lookup.
func BuildResourceMap(resources []Resource) map[string]Resource {
	resourceMap := make(map[string]Resource, len(resources))
	for _, resource := range resources {
		resourceMap[resource.ProviderResourceID] = resource
	}
	return resourceMap
}

// GroupBillingByResource groups billing line items by resource id.
func GroupBillingByResource(items []BillingItem) map[string][]BillingItem {
	grouped := make(map[string][]BillingItem)
	for _, item := range items {
		grouped[item.ProviderResourceID] = append(grouped[item.ProviderResourceID], item)
	}
	return grouped
}
