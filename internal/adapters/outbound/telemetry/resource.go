package telemetry

import (
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// ChainsKey is the resource attribute listing the chain IDs a run scans.
const ChainsKey = attribute.Key("oracle_scanner.chains")

// newResource describes the running scanner. chains is recorded in the given
// order as a comma-separated list so runs with different chain sets can be
// told apart.
func newResource(serviceName, version, environment string, chains []entity.ChainID) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
		semconv.DeploymentEnvironmentName(environment),
	}
	if len(chains) > 0 {
		attrs = append(attrs, ChainsKey.String(chainList(chains)))
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func chainList(chains []entity.ChainID) string {
	ids := make([]string, len(chains))
	for i, id := range chains {
		ids[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(ids, ",")
}
