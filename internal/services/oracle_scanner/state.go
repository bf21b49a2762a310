package oracle_scanner

import (
	"encoding/json"
	"fmt"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// DecodeRegistry parses a persisted _state.json.
func DecodeRegistry(data []byte) (*entity.Registry, error) {
	registry := entity.NewRegistry()
	if err := json.Unmarshal(data, registry); err != nil {
		return nil, err
	}
	if registry.Version != entity.RegistryVersion {
		return nil, fmt.Errorf("unsupported registry version %d", registry.Version)
	}
	for id := range registry.Chains {
		// Normalises nil partitions and contract maps.
		registry.Chain(id)
	}
	return registry, nil
}

// EncodeRegistry serialises registry as _state.json.
func EncodeRegistry(registry *entity.Registry) ([]byte, error) {
	return json.MarshalIndent(registry, "", "  ")
}
