package correlator

import (
	"strings"

	"github.com/sjkallio/kirjuri/types"
)

// rawTypeTaxonomy maps provider inventory type strings to the normalized
// taxonomy. Keys are lowercase.
var rawTypeTaxonomy = map[string]types.ResourceType{
	// AWS
	"ec2:instance":       types.TypeServer,
	"ebs:volume":         types.TypeVolume,
	"ebs:snapshot":       types.TypeSnapshot,
	"rds:instance":       types.TypeDatabase,
	"eks:cluster":        types.TypeKubernetesCluster,
	"elbv2:loadbalancer": types.TypeLoadBalancer,

	// Azure ARM types
	"microsoft.compute/virtualmachines":           types.TypeServer,
	"microsoft.compute/virtualmachinescalesets":   types.TypeServer,
	"microsoft.compute/disks":                     types.TypeVolume,
	"microsoft.compute/snapshots":                 types.TypeSnapshot,
	"microsoft.compute/images":                    types.TypeImage,
	"microsoft.sql/servers":                       types.TypeDatabase,
	"microsoft.sql/servers/databases":             types.TypeDatabase,
	"microsoft.dbforpostgresql/flexibleservers":   types.TypeDatabase,
	"microsoft.dbformysql/flexibleservers":        types.TypeDatabase,
	"microsoft.containerservice/managedclusters":  types.TypeKubernetesCluster,
	"microsoft.network/loadbalancers":             types.TypeLoadBalancer,
	"microsoft.network/applicationgateways":       types.TypeLoadBalancer,
	"microsoft.network/virtualnetworks":           types.TypeNetwork,
	"microsoft.network/publicipaddresses":         types.TypeNetwork,
	"microsoft.network/networkinterfaces":         types.TypeNetwork,
	"microsoft.recoveryservices/vaults":           types.TypeBackup,
	"microsoft.storage/storageaccounts":           types.TypeVolume,
}

// serviceTaxonomy maps billing service names to the taxonomy. Keys are
// lowercase; matched by substring so provider naming churn degrades
// gracefully.
var serviceTaxonomy = []struct {
	substr string
	rtype  types.ResourceType
}{
	{"elastic compute cloud", types.TypeServer},
	{"virtual machines", types.TypeServer},
	{"elastic block store", types.TypeVolume},
	{"managed disks", types.TypeVolume},
	{"relational database", types.TypeDatabase},
	{"sql database", types.TypeDatabase},
	{"database for", types.TypeDatabase},
	{"kubernetes", types.TypeKubernetesCluster},
	{"elastic load balancing", types.TypeLoadBalancer},
	{"load balancer", types.TypeLoadBalancer},
	{"application gateway", types.TypeLoadBalancer},
	{"bandwidth", types.TypeNetwork},
	{"virtual network", types.TypeNetwork},
	{"vpc", types.TypeNetwork},
	{"backup", types.TypeBackup},
	{"snapshot", types.TypeSnapshot},
}

// metricPrefixes infer a type from a metric name when the service string
// says nothing, e.g. a metric prefixed volume_ infers type volume.
var metricPrefixes = []struct {
	prefix string
	rtype  types.ResourceType
}{
	{"volume_", types.TypeVolume},
	{"disk_", types.TypeVolume},
	{"snapshot_", types.TypeSnapshot},
	{"image_", types.TypeImage},
	{"backup_", types.TypeBackup},
	{"lb_", types.TypeLoadBalancer},
	{"loadbalancer_", types.TypeLoadBalancer},
	{"cluster_", types.TypeKubernetesCluster},
	{"node_", types.TypeKubernetesCluster},
	{"vm_", types.TypeServer},
	{"instance_", types.TypeServer},
	{"db_", types.TypeDatabase},
	{"database_", types.TypeDatabase},
	{"network_", types.TypeNetwork},
	{"bandwidth_", types.TypeNetwork},
}

// idPrefixPatterns and idPathPatterns are a last-resort inference from
// resource id shape.
var idPrefixPatterns = []struct {
	prefix string
	rtype  types.ResourceType
}{
	{"i-", types.TypeServer},
	{"vol-", types.TypeVolume},
	{"snap-", types.TypeSnapshot},
	{"ami-", types.TypeImage},
}

var idPathPatterns = []struct {
	substr string
	rtype  types.ResourceType
}{
	{":loadbalancer/", types.TypeLoadBalancer},
	{"/virtualmachines/", types.TypeServer},
	{"/disks/", types.TypeVolume},
	{"/snapshots/", types.TypeSnapshot},
	{"/managedclusters/", types.TypeKubernetesCluster},
	{"/loadbalancers/", types.TypeLoadBalancer},
}

// ClassifyRawType maps an inventory type string to the taxonomy.
func ClassifyRawType(rawType string) (types.ResourceType, bool) {
	rtype, ok := rawTypeTaxonomy[strings.ToLower(rawType)]
	return rtype, ok
}

// ClassifyBilling maps a billing line item to the taxonomy: direct
// service match first, then metric-name inference, then id shape.
// Returns false when the item cannot be classified at all.
func ClassifyBilling(item types.BillingItem) (types.ResourceType, bool) {
	service := strings.ToLower(item.Service)
	for _, entry := range serviceTaxonomy {
		if strings.Contains(service, entry.substr) {
			return entry.rtype, true
		}
	}

	metric := strings.ToLower(item.Metric)
	for _, entry := range metricPrefixes {
		if strings.HasPrefix(metric, entry.prefix) {
			return entry.rtype, true
		}
	}

	id := strings.ToLower(item.ProviderResourceID)
	for _, entry := range idPrefixPatterns {
		if strings.HasPrefix(id, entry.prefix) {
			return entry.rtype, true
		}
	}
	for _, entry := range idPathPatterns {
		if strings.Contains(id, entry.substr) {
			return entry.rtype, true
		}
	}

	return types.TypeOther, false
}
