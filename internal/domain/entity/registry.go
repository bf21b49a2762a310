package entity

import (
	"slices"
	"time"
)

// RegistryVersion is the schema version of the persisted registry.
const RegistryVersion = 1

// Registry is the durable per-chain map from address to ContractState. It is
// append-only: entries are created on first observation and never deleted.
// A Registry is owned by a single orchestrator; per-chain partitions may be
// handed to independent goroutines because they share no mutable state.
type Registry struct {
	Version     int                        `json:"version"`
	GeneratedAt time.Time                  `json:"generatedAt"`
	Chains      map[ChainID]*ChainRegistry `json:"chains"`
}

// Cursor records how far each meta-oracle factory's deployment logs have
// been read on a chain.
type Cursor struct {
	// FactoryBlocks maps a factory to the highest block a deployment was seen
	// in. The next scan of that factory starts at this block.
	FactoryBlocks map[Address]uint64 `json:"factoryBlocks,omitempty"`
}

// FromBlock returns the block factory's log scan resumes from. Unknown
// factories start at 0.
func (c Cursor) FromBlock(factory Address) uint64 {
	return c.FactoryBlocks[factory]
}

// Advance records that factory's logs were read through block. The cursor
// never moves backwards.
func (c *Cursor) Advance(factory Address, block uint64) {
	if c.FactoryBlocks == nil {
		c.FactoryBlocks = make(map[Address]uint64)
	}
	if block > c.FactoryBlocks[factory] {
		c.FactoryBlocks[factory] = block
	}
}

// Reset forgets all progress so every factory is read from block 0.
func (c *Cursor) Reset() {
	c.FactoryBlocks = nil
}

// ChainRegistry holds the contracts of one chain.
type ChainRegistry struct {
	Cursor    Cursor                     `json:"cursor"`
	Contracts map[Address]*ContractState `json:"contracts"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		Version: RegistryVersion,
		Chains:  make(map[ChainID]*ChainRegistry),
	}
}

// Chain returns the partition for chainID, creating it if needed. Call it from
// the owning goroutine before fanning chains out.
func (r *Registry) Chain(chainID ChainID) *ChainRegistry {
	if r.Chains == nil {
		r.Chains = make(map[ChainID]*ChainRegistry)
	}
	cr, ok := r.Chains[chainID]
	if !ok {
		cr = NewChainRegistry()
		r.Chains[chainID] = cr
	}
	if cr.Contracts == nil {
		cr.Contracts = make(map[Address]*ContractState)
	}
	return cr
}

// ChainIDs returns the chains present in the registry in ascending order.
func (r *Registry) ChainIDs() []ChainID {
	ids := make([]ChainID, 0, len(r.Chains))
	for id := range r.Chains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NewChainRegistry returns an empty chain partition.
func NewChainRegistry() *ChainRegistry {
	return &ChainRegistry{Contracts: make(map[Address]*ContractState)}
}

// Get returns the state of addr.
func (c *ChainRegistry) Get(addr Address) (*ContractState, bool) {
	s, ok := c.Contracts[addr]
	return s, ok
}

// Observe creates the state of addr on first sight or touches LastSeenAt.
func (c *ChainRegistry) Observe(addr Address, now time.Time) (state *ContractState, isNew bool) {
	if s, ok := c.Contracts[addr]; ok {
		s.Touch(now)
		return s, false
	}
	s := NewContractState(now)
	c.Contracts[addr] = s
	return s, true
}

// Addresses returns every registered address in ascending order.
func (c *ChainRegistry) Addresses() []Address {
	out := make([]Address, 0, len(c.Contracts))
	for a := range c.Contracts {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of registered contracts.
func (c *ChainRegistry) Len() int {
	return len(c.Contracts)
}
