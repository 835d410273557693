package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/Smart-Charging/scn-node/registry"
	"github.com/Smart-Charging/scn-node/scpi"
	"github.com/Smart-Charging/scn-node/store"
	"github.com/Smart-Charging/scn-node/wallet"
)

// Locality says where a validated receiver lives relative to this node.
type Locality int

const (
	// Local receivers are platforms connected directly to this node.
	Local Locality = iota
	// Remote receivers live behind another node found in the directory.
	Remote
)

// NodeMessage is a prepared inter-node call: the destination node's base URL,
// the fresh request id and node-level signature to send as headers, and the
// serialized envelope to post.
type NodeMessage struct {
	URL       string
	RequestID string
	Signature string
	Body      []byte
}

// Router implements the routing core. All methods are safe for concurrent
// use; state lives in the store and the directory.
type Router struct {
	store    store.Store
	registry registry.Client
	wallet   *wallet.Wallet
	nodeURL  string
}

// New builds a Router. nodeURL is this node's public base URL as registered
// in the directory; it is what distinguishes "my" parties from remote ones.
func New(st store.Store, reg registry.Client, w *wallet.Wallet, nodeURL string) *Router {
	return &Router{store: st, registry: reg, wallet: w, nodeURL: nodeURL}
}

// IsRoleKnown reports whether the party is connected to this node directly.
func (r *Router) IsRoleKnown(ctx context.Context, role scpi.BasicRole) (bool, error) {
	return r.store.RoleExists(ctx, role)
}

// IsRegisteredOnNetwork reports whether the party is registered in the
// directory under any node.
func (r *Router) IsRegisteredOnNetwork(ctx context.Context, role scpi.BasicRole) (bool, error) {
	record, err := r.registry.NodeOf(ctx, role.Country, role.ID)
	if err != nil {
		return false, err
	}
	return record.Domain != "", nil
}

// IsMyParty reports whether the party is registered in the directory under
// this node's URL and operator address.
func (r *Router) IsMyParty(ctx context.Context, role scpi.BasicRole) (bool, error) {
	record, err := r.registry.NodeOf(ctx, role.Country, role.ID)
	if err != nil {
		return false, err
	}
	return record.Domain == r.nodeURL && record.Operator == r.wallet.Address(), nil
}

// PlatformID resolves a party to the id of the platform it is connected
// through.
func (r *Router) PlatformID(ctx context.Context, role scpi.BasicRole) (int64, error) {
	id, err := r.store.PlatformIDForRole(ctx, role)
	if err != nil {
		return 0, scpi.ErrUnknownReceiver("Could not find platform ID of %s", role)
	}
	return id, nil
}

// Platform resolves a party to its platform record.
func (r *Router) Platform(ctx context.Context, role scpi.BasicRole) (*store.Platform, error) {
	id, err := r.PlatformID(ctx, role)
	if err != nil {
		return nil, err
	}
	platform, err := r.store.PlatformByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("platform %d has roles but no record: %w", id, err)
	}
	return platform, nil
}

// PlatformRules returns the message rules of the platform a party is
// connected through.
func (r *Router) PlatformRules(ctx context.Context, role scpi.BasicRole) (store.PlatformRules, error) {
	platform, err := r.Platform(ctx, role)
	if err != nil {
		return store.PlatformRules{}, err
	}
	return platform.Rules, nil
}

// Endpoint looks up the URL a platform advertised for a module interface.
func (r *Router) Endpoint(ctx context.Context, platformID int64, module scpi.ModuleID, role scpi.InterfaceRole) (*store.Endpoint, error) {
	endpoint, err := r.store.EndpointFor(ctx, platformID, module, role)
	if err != nil {
		return nil, scpi.ErrInvalidParams("Receiver does not support the requested module")
	}
	return endpoint, nil
}

// RemoteNodeURL returns the node URL the receiver registered in the
// directory.
func (r *Router) RemoteNodeURL(ctx context.Context, receiver scpi.BasicRole) (string, error) {
	record, err := r.registry.NodeOf(ctx, receiver.Country, receiver.ID)
	if err != nil {
		return "", scpi.ErrConnectionProblem("Registry lookup for %s failed: %v", receiver, err)
	}
	if record.Domain == "" {
		return "", scpi.ErrUnknownReceiver("Recipient not registered on SCN")
	}
	return record.Domain, nil
}

// PartyDetails returns the wallet and operator addresses registered for a
// party in the directory.
func (r *Router) PartyDetails(ctx context.Context, party scpi.BasicRole) (registry.PartyDetails, error) {
	return r.registry.PartyDetailsOf(ctx, party.Country, party.ID)
}

// ValidateSender checks the authorization token belongs to a connected
// platform.
func (r *Router) ValidateSender(ctx context.Context, authorization string) error {
	_, err := r.store.PlatformByTokenC(ctx, scpi.ExtractToken(authorization))
	if err != nil {
		return scpi.ErrInvalidParams("Invalid CREDENTIALS_TOKEN_C")
	}
	return nil
}

// ValidateSenderRole checks the authorization token belongs to a connected
// platform and that the claimed sender role is registered on that same
// platform.
func (r *Router) ValidateSenderRole(ctx context.Context, authorization string, sender scpi.BasicRole) error {
	platform, err := r.store.PlatformByTokenC(ctx, scpi.ExtractToken(authorization))
	if err != nil {
		return scpi.ErrInvalidParams("Invalid CREDENTIALS_TOKEN_C")
	}

	exists, err := r.store.RoleExistsOnPlatform(ctx, platform.ID, sender)
	if err != nil {
		return err
	}
	if !exists {
		return scpi.ErrInvalidParams("Could not find role on sending platform using SCPI-from-* headers")
	}
	return nil
}

// ValidateReceiver classifies a receiver as local or remote, in that order
// of preference.
func (r *Router) ValidateReceiver(ctx context.Context, receiver scpi.BasicRole) (Locality, error) {
	known, err := r.IsRoleKnown(ctx, receiver)
	if err != nil {
		return 0, err
	}
	if known {
		return Local, nil
	}

	registered, err := r.IsRegisteredOnNetwork(ctx, receiver)
	if err != nil {
		return 0, scpi.ErrConnectionProblem("Registry lookup for %s failed: %v", receiver, err)
	}
	if registered {
		return Remote, nil
	}
	return 0, scpi.ErrUnknownReceiver("Receiver not registered on Smart Charging Network")
}

var moduleNames = map[scpi.ModuleID]string{
	scpi.ModuleCdrs:             "CDRS",
	scpi.ModuleChargingProfiles: "Charging Profiles",
	scpi.ModuleCommands:         "Commands",
	scpi.ModuleLocations:        "Locations",
	scpi.ModuleSessions:         "Session",
	scpi.ModuleTariffs:          "Tariffs",
	scpi.ModuleTokens:           "Token",
}

// ValidateWhitelisted enforces the receiving platform's access rules against
// the sender and module. A whitelist admits only listed counterparties with
// the module enabled; a blacklist rejects listed counterparties with the
// module flagged; with neither active every sender passes.
func (r *Router) ValidateWhitelisted(ctx context.Context, sender, receiver scpi.BasicRole, module scpi.ModuleID) error {
	platform, err := r.Platform(ctx, receiver)
	if err != nil {
		return err
	}

	entries, err := r.store.RulesListForPlatform(ctx, platform.ID)
	if err != nil {
		return err
	}

	switch {
	case platform.Rules.Whitelist:
		for _, entry := range entries {
			if !entry.Counterparty.Equal(sender) {
				continue
			}
			if !entry.Modules.Enabled(module) {
				return scpi.ErrClientGeneric("%s Module is blocked", moduleNames[module])
			}
			return nil
		}
		return scpi.ErrClientGeneric("Message receiver not in sender's whitelist.")

	case platform.Rules.Blacklist:
		for _, entry := range entries {
			if entry.Counterparty.Equal(sender) && entry.Modules.Enabled(module) {
				return scpi.ErrClientGeneric("%s Module is blocked", moduleNames[module])
			}
		}
		return nil

	default:
		return nil
	}
}

// PrepareLocalRequest resolves the URL a request should be delivered to on a
// locally connected platform and rewrites its headers for the hop: the
// platform's own token B replaces the caller's authorization and the request
// id is regenerated.
//
// The URL depends on how the request references its target. A locally
// initiated proxied request dereferences a stored proxy resource. A request
// arriving from another node may carry the resolved resource directly, or
// carry both the resource and a proxy uid under which this node must make it
// dereferenceable later; everything else goes to the platform's advertised
// module endpoint.
func (r *Router) PrepareLocalRequest(ctx context.Context, request *scpi.Request, proxied bool) (string, scpi.Headers, error) {
	platformID, err := r.PlatformID(ctx, request.Headers.Receiver)
	if err != nil {
		return "", scpi.Headers{}, err
	}

	var url string
	switch {
	case proxied:
		resource, err := r.ProxyResource(ctx, request.URLPath, request.Headers.Sender, request.Headers.Receiver)
		if err != nil {
			return "", scpi.Headers{}, err
		}
		url = resource.Resource

	case request.ProxyUID == "" && request.ProxyResource != "":
		url = request.ProxyResource

	case request.ProxyUID != "" && request.ProxyResource != "":
		// resource flows back in the opposite direction, so store it
		// with sender and receiver swapped
		_, err := r.SaveProxyResource(ctx, request.ProxyResource,
			request.Headers.Receiver, request.Headers.Sender, request.ProxyUID)
		if err != nil {
			return "", scpi.Headers{}, err
		}
		fallthrough

	default:
		endpoint, err := r.Endpoint(ctx, platformID, request.Module, request.InterfaceRole)
		if err != nil {
			return "", scpi.Headers{}, err
		}
		url = scpi.URLJoin(endpoint.URL, request.URLPath)
	}

	platform, err := r.store.PlatformByID(ctx, platformID)
	if err != nil {
		return "", scpi.Headers{}, err
	}

	headers := request.Headers
	headers.Authorization = "Token " + platform.Auth.TokenB
	headers.RequestID = uuid.NewString()

	return url, headers, nil
}

// PrepareRemoteRequest serializes a request for delivery to the receiver's
// node: resolves the destination node URL, optionally lets the caller alter
// the envelope per destination (command callbacks do this), attaches the
// resolved proxy resource on proxied requests, strips the local
// authorization token and signs the envelope with the node key.
func (r *Router) PrepareRemoteRequest(ctx context.Context, request *scpi.Request, proxied bool, alterBody func(nodeURL string) (*scpi.Request, error)) (*NodeMessage, error) {
	url, err := r.RemoteNodeURL(ctx, request.Headers.Receiver)
	if err != nil {
		return nil, err
	}

	modified := *request
	if alterBody != nil {
		altered, err := alterBody(url)
		if err != nil {
			return nil, err
		}
		modified = *altered
	}

	if proxied {
		resource, err := r.ProxyResource(ctx, modified.URLPath, modified.Headers.Sender, modified.Headers.Receiver)
		if err != nil {
			return nil, err
		}
		modified.ProxyResource = resource.Resource
	}

	modified.Headers.Authorization = ""

	body, err := json.Marshal(&modified)
	if err != nil {
		return nil, fmt.Errorf("serializing node message: %w", err)
	}

	signature, err := r.wallet.Sign(string(body))
	if err != nil {
		return nil, err
	}

	return &NodeMessage{
		URL:       url,
		RequestID: uuid.NewString(),
		Signature: signature,
		Body:      body,
	}, nil
}

// ProxyResource dereferences a stored proxy resource by the uid a request
// carries in its path. Resources saved on behalf of a remote party are keyed
// by their alternative uid, so that lookup runs first; the numeric entity id
// is the fallback for locally issued uids.
func (r *Router) ProxyResource(ctx context.Context, id string, sender, receiver scpi.BasicRole) (*store.ProxyResource, error) {
	if id == "" {
		return nil, scpi.ErrUnknownLocation("Proxied resource not found")
	}

	resource, err := r.store.ProxyResourceByAlternativeUID(ctx, id, sender, receiver)
	if err == nil {
		return resource, nil
	}

	entityID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, scpi.ErrUnknownLocation("Proxied resource not found")
	}
	resource, err = r.store.ProxyResourceByID(ctx, entityID, sender, receiver)
	if err != nil {
		return nil, scpi.ErrUnknownLocation("Proxied resource not found")
	}
	return resource, nil
}

// SaveProxyResource stores a resource for later dereferencing, returning the
// uid callers should embed: the alternative uid when given, otherwise the
// generated entity id.
func (r *Router) SaveProxyResource(ctx context.Context, resource string, sender, receiver scpi.BasicRole, alternativeUID string) (string, error) {
	entity := &store.ProxyResource{
		Resource:       resource,
		Sender:         sender,
		Receiver:       receiver,
		AlternativeUID: alternativeUID,
	}
	if err := r.store.CreateProxyResource(ctx, entity); err != nil {
		return "", err
	}
	if alternativeUID != "" {
		return alternativeUID, nil
	}
	return strconv.FormatInt(entity.ID, 10), nil
}

// DeleteProxyResource removes a single-use proxy resource after it has been
// dereferenced.
func (r *Router) DeleteProxyResource(ctx context.Context, id string, sender, receiver scpi.BasicRole) error {
	resource, err := r.ProxyResource(ctx, id, sender, receiver)
	if err != nil {
		return err
	}
	return r.store.DeleteProxyResource(ctx, resource.ID)
}
