package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/sjkallio/kirjuri/types"
)

const costDateFormat = "2006-01-02"

// noResourceID is Cost Explorer's placeholder key for spend that has
// no resource attribution.
const noResourceID = "NoResourceId"

// ListBilling fetches per-resource cost line items for one region via
// Cost Explorer. Resource-level data requires the connection's account
// to have it enabled; a denied call surfaces as a scope error upstream.
func (p *Provider) ListBilling(ctx context.Context, scope types.Scope, start, end time.Time) ([]types.BillingItem, error) {
	input := &costexplorer.GetCostAndUsageWithResourcesInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format(costDateFormat)),
			End:   aws.String(end.Format(costDateFormat)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		Filter: &cetypes.Expression{
			Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionRegion,
				Values: []string{scope.Region},
			},
		},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("RESOURCE_ID")},
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
	}

	var items []types.BillingItem
	for {
		output, err := p.ceClient.GetCostAndUsageWithResources(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("cost explorer query failed: %w", err)
		}

		for _, result := range output.ResultsByTime {
			periodStart, periodEnd := parsePeriod(result.TimePeriod)
			for _, group := range result.Groups {
				item, ok := convertGroup(group, scope, periodStart, periodEnd)
				if ok {
					items = append(items, item)
				}
			}
		}

		if aws.ToString(output.NextPageToken) == "" {
			break
		}
		input.NextPageToken = output.NextPageToken
	}

	return items, nil
}

func convertGroup(group cetypes.Group, scope types.Scope, start, end time.Time) (types.BillingItem, bool) {
	if len(group.Keys) < 2 {
		return types.BillingItem{}, false
	}
	resourceID := group.Keys[0]
	service := group.Keys[1]
	if resourceID == "" || resourceID == noResourceID {
		return types.BillingItem{}, false
	}

	metric, ok := group.Metrics["UnblendedCost"]
	if !ok {
		return types.BillingItem{}, false
	}

	cost, err := strconv.ParseFloat(aws.ToString(metric.Amount), 64)
	if err != nil {
		return types.BillingItem{}, false
	}

	return types.BillingItem{
		ProviderResourceID: resourceID,
		Service:            service,
		Region:             scope.Region,
		ScopeID:            scope.ID,
		Cost:               cost,
		Currency:           aws.ToString(metric.Unit),
		PeriodStart:        start,
		PeriodEnd:          end,
		Raw: map[string]any{
			"resource_id": resourceID,
			"service":     service,
			"amount":      aws.ToString(metric.Amount),
		},
	}, true
}

func parsePeriod(interval *cetypes.DateInterval) (time.Time, time.Time) {
	if interval == nil {
		return time.Time{}, time.Time{}
	}
	start, _ := time.Parse(costDateFormat, aws.ToString(interval.Start))
	end, _ := time.Parse(costDateFormat, aws.ToString(interval.End))
	return start, end
}
