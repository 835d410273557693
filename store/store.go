// Package store defines the node's persistence boundary: registered
// platforms with their tokens and rules, the roles and endpoints they
// advertise, proxied resources, and per-platform access-rule entries.
// Implementations exist for Postgres and for process memory.
package store

import (
	"context"
	"errors"

	"github.com/Smart-Charging/scn-node/scpi"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("store: not found")

// Auth holds a platform's credential tokens: A is the pre-shared
// registration secret (cleared once consumed), B the token the node uses to
// call the platform, C the token the platform uses to call the node.
type Auth struct {
	TokenA string
	TokenB string
	TokenC string
}

// PlatformRules are the per-platform policy flags. Whitelist and blacklist
// are never both true; the rules service enforces that at write time.
type PlatformRules struct {
	Signatures bool
	Whitelist  bool
	Blacklist  bool
}

// Platform is a registered network participant's account on this node.
type Platform struct {
	ID          int64
	Status      scpi.ConnectionStatus
	LastUpdated string
	VersionsURL string
	Auth        Auth
	Rules       PlatformRules
}

// Role is one (country code, party id, business role) triple owned by a
// platform. A party may be registered to at most one platform network-wide.
type Role struct {
	ID              int64
	PlatformID      int64
	Role            scpi.Role
	BusinessDetails scpi.BusinessDetails
	PartyID         string
	CountryCode     string
}

// Endpoint is one advertised (module, interface role) -> URL mapping,
// replaced wholesale on every (re-)registration.
type Endpoint struct {
	ID         int64
	PlatformID int64
	Identifier scpi.ModuleID
	Role       scpi.InterfaceRole
	URL        string
}

// ProxyResource maps an opaque token to a real resource URL, scoped to the
// (sender, receiver) pair allowed to dereference it. AlternativeUID is set
// when the far node supplied the token for a cross-hop callback.
type ProxyResource struct {
	ID             int64
	Resource       string
	Sender         scpi.BasicRole
	Receiver       scpi.BasicRole
	AlternativeUID string
}

// ModuleFlags records which protocol modules an access-rule entry covers.
type ModuleFlags struct {
	Cdrs             bool
	ChargingProfiles bool
	Commands         bool
	Locations        bool
	Sessions         bool
	Tariffs          bool
	Tokens           bool
}

// Enabled reports whether the flag for the given module is set.
func (f ModuleFlags) Enabled(module scpi.ModuleID) bool {
	switch module {
	case scpi.ModuleCdrs:
		return f.Cdrs
	case scpi.ModuleChargingProfiles:
		return f.ChargingProfiles
	case scpi.ModuleCommands:
		return f.Commands
	case scpi.ModuleLocations:
		return f.Locations
	case scpi.ModuleSessions:
		return f.Sessions
	case scpi.ModuleTariffs:
		return f.Tariffs
	case scpi.ModuleTokens:
		return f.Tokens
	}
	return false
}

// Any reports whether at least one module flag is set.
func (f ModuleFlags) Any() bool {
	return f.Cdrs || f.ChargingProfiles || f.Commands || f.Locations ||
		f.Sessions || f.Tariffs || f.Tokens
}

// FlagsFromModules builds ModuleFlags from a module name list.
func FlagsFromModules(modules []string) ModuleFlags {
	var f ModuleFlags
	for _, m := range modules {
		switch scpi.ModuleID(m) {
		case scpi.ModuleCdrs:
			f.Cdrs = true
		case scpi.ModuleChargingProfiles:
			f.ChargingProfiles = true
		case scpi.ModuleCommands:
			f.Commands = true
		case scpi.ModuleLocations:
			f.Locations = true
		case scpi.ModuleSessions:
			f.Sessions = true
		case scpi.ModuleTariffs:
			f.Tariffs = true
		case scpi.ModuleTokens:
			f.Tokens = true
		}
	}
	return f
}

// Modules returns the enabled module names, in canonical order.
func (f ModuleFlags) Modules() []string {
	var out []string
	for _, m := range []scpi.ModuleID{
		scpi.ModuleCdrs, scpi.ModuleChargingProfiles, scpi.ModuleCommands,
		scpi.ModuleLocations, scpi.ModuleSessions, scpi.ModuleTariffs, scpi.ModuleTokens,
	} {
		if f.Enabled(m) {
			out = append(out, string(m))
		}
	}
	return out
}

// RulesListEntry is one (platform, counterparty) access-rule record with its
// per-module flags.
type RulesListEntry struct {
	ID           int64
	PlatformID   int64
	Counterparty scpi.BasicRole
	Modules      ModuleFlags
}

// Store is the full persistence interface consumed by the routing core, the
// rules service and the registration handshake.
type Store interface {
	// Platforms.
	CreatePlatform(ctx context.Context, platform *Platform) error
	UpdatePlatform(ctx context.Context, platform *Platform) error
	PlatformByID(ctx context.Context, id int64) (*Platform, error)
	PlatformByTokenA(ctx context.Context, token string) (*Platform, error)
	PlatformByTokenC(ctx context.Context, token string) (*Platform, error)
	// DeletePlatform cascades to the platform's roles, endpoints and
	// access-rule entries.
	DeletePlatform(ctx context.Context, id int64) error

	// Roles.
	RoleExists(ctx context.Context, party scpi.BasicRole) (bool, error)
	RoleExistsOnPlatform(ctx context.Context, platformID int64, party scpi.BasicRole) (bool, error)
	PlatformIDForRole(ctx context.Context, party scpi.BasicRole) (int64, error)
	RolesForPlatform(ctx context.Context, platformID int64) ([]Role, error)
	SaveRoles(ctx context.Context, roles []Role) error
	DeleteRolesForPlatform(ctx context.Context, platformID int64) error

	// Endpoints.
	EndpointFor(ctx context.Context, platformID int64, module scpi.ModuleID, role scpi.InterfaceRole) (*Endpoint, error)
	// ReplaceEndpoints swaps a platform's whole endpoint catalogue.
	ReplaceEndpoints(ctx context.Context, platformID int64, endpoints []Endpoint) error
	DeleteEndpointsForPlatform(ctx context.Context, platformID int64) error

	// Proxy resources.
	CreateProxyResource(ctx context.Context, resource *ProxyResource) error
	ProxyResourceByID(ctx context.Context, id int64, sender, receiver scpi.BasicRole) (*ProxyResource, error)
	ProxyResourceByAlternativeUID(ctx context.Context, uid string, sender, receiver scpi.BasicRole) (*ProxyResource, error)
	DeleteProxyResource(ctx context.Context, id int64) error

	// Access-rule entries.
	RulesListForPlatform(ctx context.Context, platformID int64) ([]RulesListEntry, error)
	RulesEntryExists(ctx context.Context, platformID int64, counterparty scpi.BasicRole) (bool, error)
	SaveRulesEntry(ctx context.Context, entry *RulesListEntry) error
	ReplaceRulesList(ctx context.Context, platformID int64, entries []RulesListEntry) error
	DeleteRulesEntry(ctx context.Context, platformID int64, counterparty scpi.BasicRole) error
	DeleteRulesListForPlatform(ctx context.Context, platformID int64) error

	// WithPlatformLock serializes multi-step mutations touching one
	// platform's rules flags and entries, so a flag flip and its first
	// entry insert are never observably split.
	WithPlatformLock(ctx context.Context, platformID int64, fn func() error) error
}
