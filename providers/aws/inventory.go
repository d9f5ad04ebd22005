package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/sjkallio/kirjuri/types"
)

// ListInventory fetches all supported resource kinds for one region.
func (p *Provider) ListInventory(ctx context.Context, scope types.Scope) ([]types.ObservedResource, error) {
	ec2Client, rdsClient, elbClient, eksClient := p.regional(scope)

	var resources []types.ObservedResource

	instances, err := p.listInstances(ctx, ec2Client, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	resources = append(resources, instances...)

	volumes, err := p.listVolumes(ctx, ec2Client, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}
	resources = append(resources, volumes...)

	databases, err := p.listDatabases(ctx, rdsClient, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	resources = append(resources, databases...)

	loadBalancers, err := p.listLoadBalancers(ctx, elbClient, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list load balancers: %w", err)
	}
	resources = append(resources, loadBalancers...)

	clusters, err := p.listClusters(ctx, eksClient, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	resources = append(resources, clusters...)

	return resources, nil
}

func (p *Provider) listInstances(ctx context.Context, client *ec2.Client, scope types.Scope) ([]types.ObservedResource, error) {
	var resources []types.ObservedResource

	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				resources = append(resources, p.convertInstance(instance, scope))
			}
		}
	}

	return resources, nil
}

func (p *Provider) convertInstance(instance ec2types.Instance, scope types.Scope) types.ObservedResource {
	tags := convertTags(instance.Tags)

	return types.ObservedResource{
		ProviderResourceID: aws.ToString(instance.InstanceId),
		RawType:            "ec2:instance",
		Name:               nameFromTags(tags, aws.ToString(instance.InstanceId)),
		Region:             scope.Region,
		ScopeID:            scope.ID,
		Status:             string(instance.State.Name),
		ClusterLabel:       clusterFromTags(tags),
		SpecFields: map[string]string{
			"instance_type": string(instance.InstanceType),
			"az":            aws.ToString(instance.Placement.AvailabilityZone),
		},
		CreatedAt: aws.ToTime(instance.LaunchTime),
	}
}

func (p *Provider) listVolumes(ctx context.Context, client *ec2.Client, scope types.Scope) ([]types.ObservedResource, error) {
	var resources []types.ObservedResource

	paginator := ec2.NewDescribeVolumesPaginator(client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, volume := range output.Volumes {
			resources = append(resources, p.convertVolume(volume, scope))
		}
	}

	return resources, nil
}

func (p *Provider) convertVolume(volume ec2types.Volume, scope types.Scope) types.ObservedResource {
	tags := convertTags(volume.Tags)

	// Attachment metadata names the owning instance
	var attachedTo string
	for _, att := range volume.Attachments {
		if aws.ToString(att.InstanceId) != "" {
			attachedTo = aws.ToString(att.InstanceId)
			break
		}
	}

	return types.ObservedResource{
		ProviderResourceID: aws.ToString(volume.VolumeId),
		RawType:            "ebs:volume",
		Name:               nameFromTags(tags, aws.ToString(volume.VolumeId)),
		Region:             scope.Region,
		ScopeID:            scope.ID,
		Status:             string(volume.State),
		AttachedTo:         attachedTo,
		ClusterLabel:       clusterFromTags(tags),
		SpecFields: map[string]string{
			"size_gb":     fmt.Sprintf("%d", aws.ToInt32(volume.Size)),
			"volume_type": string(volume.VolumeType),
		},
		CreatedAt: aws.ToTime(volume.CreateTime),
	}
}

func (p *Provider) listDatabases(ctx context.Context, client *rds.Client, scope types.Scope) ([]types.ObservedResource, error) {
	var resources []types.ObservedResource

	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, db := range output.DBInstances {
			resources = append(resources, types.ObservedResource{
				ProviderResourceID: aws.ToString(db.DBInstanceIdentifier),
				RawType:            "rds:instance",
				Name:               aws.ToString(db.DBInstanceIdentifier),
				Region:             scope.Region,
				ScopeID:            scope.ID,
				Status:             aws.ToString(db.DBInstanceStatus),
				SpecFields: map[string]string{
					"engine":         aws.ToString(db.Engine),
					"instance_class": aws.ToString(db.DBInstanceClass),
				},
				CreatedAt: aws.ToTime(db.InstanceCreateTime),
			})
		}
	}

	return resources, nil
}

func (p *Provider) listLoadBalancers(ctx context.Context, client *elasticloadbalancingv2.Client, scope types.Scope) ([]types.ObservedResource, error) {
	var resources []types.ObservedResource

	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(client, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, lb := range output.LoadBalancers {
			resources = append(resources, types.ObservedResource{
				ProviderResourceID: aws.ToString(lb.LoadBalancerArn),
				RawType:            "elbv2:loadbalancer",
				Name:               aws.ToString(lb.LoadBalancerName),
				Region:             scope.Region,
				ScopeID:            scope.ID,
				Status:             string(lb.State.Code),
				SpecFields: map[string]string{
					"lb_type": string(lb.Type),
					"scheme":  string(lb.Scheme),
				},
				CreatedAt: aws.ToTime(lb.CreatedTime),
			})
		}
	}

	return resources, nil
}

func (p *Provider) listClusters(ctx context.Context, client *eks.Client, scope types.Scope) ([]types.ObservedResource, error) {
	var resources []types.ObservedResource

	paginator := eks.NewListClustersPaginator(client, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, name := range output.Clusters {
			detail, err := client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				return nil, err
			}

			cluster := detail.Cluster
			resources = append(resources, types.ObservedResource{
				ProviderResourceID: name,
				RawType:            "eks:cluster",
				Name:               name,
				Region:             scope.Region,
				ScopeID:            scope.ID,
				Status:             string(cluster.Status),
				SpecFields: map[string]string{
					"version": aws.ToString(cluster.Version),
				},
				CreatedAt: aws.ToTime(cluster.CreatedAt),
			})
		}
	}

	return resources, nil
}

func convertTags(tags []ec2types.Tag) map[string]string {
	converted := make(map[string]string, len(tags))
	for _, tag := range tags {
		converted[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return converted
}

func nameFromTags(tags map[string]string, fallback string) string {
	if name := tags["Name"]; name != "" {
		return name
	}
	return fallback
}

// clusterFromTags extracts the owning cluster id from the conventional
// kubernetes.io/cluster/<name> ownership tag.
func clusterFromTags(tags map[string]string) string {
	for key, value := range tags {
		if strings.HasPrefix(key, "kubernetes.io/cluster/") && (value == "owned" || value == "shared") {
			return strings.TrimPrefix(key, "kubernetes.io/cluster/")
		}
	}
	return ""
}
