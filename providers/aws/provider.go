// Package aws implements the CloudProvider adapter for AWS using SDK v2.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/sjkallio/kirjuri/providers"
	"github.com/sjkallio/kirjuri/types"
)

func init() {
	providers.Register("aws", NewProviderFactory)
}

// NewProviderFactory creates an AWS provider for a connection
func NewProviderFactory(ctx context.Context, conn types.ProviderConnection) (providers.CloudProvider, error) {
	return NewProvider(ctx, conn.Setting("region", "us-east-1"))
}

// Provider implements providers.CloudProvider using AWS SDK v2
type Provider struct {
	cfg       aws.Config
	ec2Client *ec2.Client
	ceClient  *costexplorer.Client
	stsClient *sts.Client
	accountID string
}

// NewProvider creates a new AWS provider anchored to a home region. Cost
// Explorer is a global endpoint; inventory clients are created per scope.
func NewProvider(ctx context.Context, region string) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Provider{
		cfg:       cfg,
		ec2Client: ec2.NewFromConfig(cfg),
		ceClient:  costexplorer.NewFromConfig(cfg),
		stsClient: sts.NewFromConfig(cfg),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "aws"
}

// DiscoverScopes verifies the credential and enumerates accessible
// regions. The credential may be scoped narrower than the account; only
// opted-in regions come back from DescribeRegions.
func (p *Provider) DiscoverScopes(ctx context.Context) ([]types.Scope, error) {
	identity, err := p.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	p.accountID = aws.ToString(identity.Account)

	output, err := p.ec2Client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to discover regions: %w", err)
	}

	var scopes []types.Scope
	for _, region := range output.Regions {
		name := aws.ToString(region.RegionName)
		scopes = append(scopes, types.Scope{
			ID:     name,
			Kind:   "region",
			Region: name,
		})
	}

	return scopes, nil
}

// regional returns per-scope service clients.
func (p *Provider) regional(scope types.Scope) (*ec2.Client, *rds.Client, *elasticloadbalancingv2.Client, *eks.Client) {
	region := func(o *string) { *o = scope.Region }
	return ec2.NewFromConfig(p.cfg, func(o *ec2.Options) { region(&o.Region) }),
		rds.NewFromConfig(p.cfg, func(o *rds.Options) { region(&o.Region) }),
		elasticloadbalancingv2.NewFromConfig(p.cfg, func(o *elasticloadbalancingv2.Options) { region(&o.Region) }),
		eks.NewFromConfig(p.cfg, func(o *eks.Options) { region(&o.Region) })
}
