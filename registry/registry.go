package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// NodeRecord is a party's directory entry: the address of the node operator
// representing it and the node's public domain. A zero operator address and
// empty domain mean the party is not registered anywhere on the network.
type NodeRecord struct {
	Operator common.Address
	Domain   string
}

// Registered reports whether the record denotes an actual registration.
func (r NodeRecord) Registered() bool {
	return r.Domain != "" && r.Operator != (common.Address{})
}

// PartyDetails are the two addresses allowed to sign on a party's behalf:
// the party's own wallet and its node operator's.
type PartyDetails struct {
	Address  common.Address
	Operator common.Address
}

// Client is the read-only directory lookup interface the routing core
// depends on. Lookups are single blocking calls; implementations resolve
// against the registry smart contract or, in tests, a fixture.
type Client interface {
	// NodeOf returns the directory entry for a party. A non-registered
	// party yields a zero NodeRecord, not an error.
	NodeOf(ctx context.Context, countryCode, partyID string) (NodeRecord, error)

	// PartyDetailsOf returns the party and operator addresses registered
	// for a party.
	PartyDetailsOf(ctx context.Context, countryCode, partyID string) (PartyDetails, error)
}
