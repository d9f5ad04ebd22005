package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"

	"github.com/sjkallio/kirjuri/types"
)

// ListBilling queries Cost Management for per-resource daily costs in
// one subscription.
func (p *Provider) ListBilling(ctx context.Context, scope types.Scope, start, end time.Time) ([]types.BillingItem, error) {
	queryDef := buildQueryDefinition(start, end)

	resp, err := p.queryClient.Usage(ctx, fmt.Sprintf("/subscriptions/%s", scope.ID), queryDef, nil)
	if err != nil {
		return nil, fmt.Errorf("cost query failed: %w", err)
	}

	return parseQueryResult(resp.QueryResult, scope), nil
}

func buildQueryDefinition(start, end time.Time) armcostmanagement.QueryDefinition {
	return armcostmanagement.QueryDefinition{
		Type:      to.Ptr(armcostmanagement.ExportTypeActualCost),
		Timeframe: to.Ptr(armcostmanagement.TimeframeTypeCustom),
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: to.Ptr(start),
			To:   to.Ptr(end),
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: to.Ptr(armcostmanagement.GranularityTypeDaily),
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"totalCost": {
					Name:     to.Ptr("Cost"),
					Function: to.Ptr(armcostmanagement.FunctionTypeSum),
				},
			},
			Grouping: []*armcostmanagement.QueryGrouping{
				{
					Type: to.Ptr(armcostmanagement.QueryColumnTypeDimension),
					Name: to.Ptr("ResourceId"),
				},
				{
					Type: to.Ptr(armcostmanagement.QueryColumnTypeDimension),
					Name: to.Ptr("ServiceName"),
				},
			},
		},
	}
}

func parseQueryResult(result armcostmanagement.QueryResult, scope types.Scope) []types.BillingItem {
	if result.Properties == nil {
		return nil
	}

	columnMap := buildColumnMap(result.Properties.Columns)
	var items []types.BillingItem

	for _, row := range result.Properties.Rows {
		item, ok := convertRow(row, columnMap, scope)
		if ok {
			items = append(items, item)
		}
	}

	return items
}

func buildColumnMap(columns []*armcostmanagement.QueryColumn) map[string]int {
	columnMap := make(map[string]int, len(columns))
	for i, col := range columns {
		if col.Name != nil {
			columnMap[*col.Name] = i
		}
	}
	return columnMap
}

func convertRow(row []any, columnMap map[string]int, scope types.Scope) (types.BillingItem, bool) {
	resourceID := stringAt(row, columnMap, "ResourceId")
	if resourceID == "" {
		return types.BillingItem{}, false
	}

	day := parseUsageDate(valueAt(row, columnMap, "UsageDate"))

	return types.BillingItem{
		ProviderResourceID: resourceID,
		Service:            stringAt(row, columnMap, "ServiceName"),
		ScopeID:            scope.ID,
		Cost:               parseCost(valueAt(row, columnMap, "Cost")),
		Currency:           stringAt(row, columnMap, "Currency"),
		PeriodStart:        day,
		PeriodEnd:          day.Add(24 * time.Hour),
		Raw: map[string]any{
			"resource_id": resourceID,
			"service":     stringAt(row, columnMap, "ServiceName"),
		},
	}, true
}

func valueAt(row []any, columnMap map[string]int, name string) any {
	idx, ok := columnMap[name]
	if !ok || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func stringAt(row []any, columnMap map[string]int, name string) string {
	value := valueAt(row, columnMap, name)
	if value == nil {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Sprintf("%v", value)
	}
	return s
}

func parseCost(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// parseUsageDate handles the API's numeric YYYYMMDD date encoding.
func parseUsageDate(value any) time.Time {
	var encoded int
	switch v := value.(type) {
	case float64:
		encoded = int(v)
	case int:
		encoded = v
	case int64:
		encoded = int(v)
	default:
		return time.Time{}
	}

	year := encoded / 10000
	month := (encoded / 100) % 100
	day := encoded % 100
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
