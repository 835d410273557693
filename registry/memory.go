package registry

import (
	"context"
	"strings"
	"sync"
)

// MemoryClient is an in-memory directory used in tests and single-node
// development setups where no registry contract is reachable.
type MemoryClient struct {
	mu      sync.RWMutex
	nodes   map[string]NodeRecord
	parties map[string]PartyDetails
}

// NewMemoryClient creates an empty in-memory directory.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		nodes:   make(map[string]NodeRecord),
		parties: make(map[string]PartyDetails),
	}
}

// SetParty registers a party's directory entry.
func (c *MemoryClient) SetParty(countryCode, partyID string, record NodeRecord, details PartyDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := partyKey(countryCode, partyID)
	c.nodes[key] = record
	c.parties[key] = details
}

// RemoveParty drops a party's entry, simulating deregistration.
func (c *MemoryClient) RemoveParty(countryCode, partyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := partyKey(countryCode, partyID)
	delete(c.nodes, key)
	delete(c.parties, key)
}

// NodeOf implements Client.
func (c *MemoryClient) NodeOf(_ context.Context, countryCode, partyID string) (NodeRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nodes[partyKey(countryCode, partyID)], nil
}

// PartyDetailsOf implements Client.
func (c *MemoryClient) PartyDetailsOf(_ context.Context, countryCode, partyID string) (PartyDetails, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parties[partyKey(countryCode, partyID)], nil
}

func partyKey(countryCode, partyID string) string {
	return strings.ToUpper(countryCode) + "/" + strings.ToUpper(partyID)
}
