package scpi

import (
	"encoding/json"
	"strings"
	"time"
)

// BasicRole identifies a party on the network by its two-letter country code
// and three-letter party id. Roles are compared case-insensitively; Normalize
// returns the canonical uppercase form used for storage and signing.
type BasicRole struct {
	ID      string `json:"party_id"`
	Country string `json:"country_code"`
}

// Normalize returns the role with country code and party id uppercased.
func (r BasicRole) Normalize() BasicRole {
	return BasicRole{
		ID:      strings.ToUpper(r.ID),
		Country: strings.ToUpper(r.Country),
	}
}

// Equal reports whether two roles identify the same party, ignoring case.
func (r BasicRole) Equal(other BasicRole) bool {
	return strings.EqualFold(r.ID, other.ID) && strings.EqualFold(r.Country, other.Country)
}

func (r BasicRole) String() string {
	return r.Country + "/" + r.ID
}

// ModuleID identifies an SCPI protocol module.
type ModuleID string

const (
	ModuleCdrs             ModuleID = "cdrs"
	ModuleChargingProfiles ModuleID = "chargingprofiles"
	ModuleCommands         ModuleID = "commands"
	ModuleCredentials      ModuleID = "credentials"
	ModuleLocations        ModuleID = "locations"
	ModuleSessions         ModuleID = "sessions"
	ModuleTariffs          ModuleID = "tariffs"
	ModuleTokens           ModuleID = "tokens"
)

// Valid reports whether the module id is one this node understands.
func (m ModuleID) Valid() bool {
	switch m {
	case ModuleCdrs, ModuleChargingProfiles, ModuleCommands, ModuleCredentials,
		ModuleLocations, ModuleSessions, ModuleTariffs, ModuleTokens:
		return true
	}
	return false
}

// InterfaceRole says whose API shape is being invoked: the data owner's
// (SENDER) or the data consumer's (RECEIVER).
type InterfaceRole string

const (
	InterfaceSender   InterfaceRole = "SENDER"
	InterfaceReceiver InterfaceRole = "RECEIVER"
)

// Valid reports whether the interface role is recognized.
func (i InterfaceRole) Valid() bool {
	return i == InterfaceSender || i == InterfaceReceiver
}

// Role is the business role a party plays on the network.
type Role string

const (
	RoleCPO   Role = "CPO"
	RoleEMSP  Role = "EMSP"
	RoleHub   Role = "HUB"
	RoleNAP   Role = "NAP"
	RoleNSP   Role = "NSP"
	RoleOther Role = "OTHER"
)

// ConnectionStatus is the lifecycle state of a registered platform.
type ConnectionStatus string

const (
	StatusPlanned   ConnectionStatus = "PLANNED"
	StatusConnected ConnectionStatus = "CONNECTED"
	StatusOffline   ConnectionStatus = "OFFLINE"
	StatusSuspended ConnectionStatus = "SUSPENDED"
)

// Headers is the SCPI routing header block carried by every request. Sender
// and receiver are always present; the signature header only when message
// signing is active for the exchange.
type Headers struct {
	Authorization string    `json:"Authorization"`
	Signature     string    `json:"SCN-Signature,omitempty"`
	RequestID     string    `json:"X-Request-ID"`
	CorrelationID string    `json:"X-Correlation-ID"`
	Sender        BasicRole `json:"sender"`
	Receiver      BasicRole `json:"receiver"`
}

// Map returns the headers as HTTP header key/value pairs for an outgoing
// platform request.
func (h Headers) Map() map[string]string {
	m := map[string]string{
		"Authorization":          h.Authorization,
		"X-Request-ID":           h.RequestID,
		"X-Correlation-ID":       h.CorrelationID,
		"SCPI-from-country-code": h.Sender.Country,
		"SCPI-from-party-id":     h.Sender.ID,
		"SCPI-to-country-code":   h.Receiver.Country,
		"SCPI-to-party-id":       h.Receiver.ID,
	}
	if h.Signature != "" {
		m["SCN-Signature"] = h.Signature
	}
	return m
}

// Request is the canonical unit of work: one SCPI message on its way through
// the node. ProxyUID and ProxyResource are only populated when the request
// crosses a node boundary carrying an indirected resource: ProxyUID names a
// callback the far node must be able to dereference, ProxyResource carries
// the already-resolved value across the hop.
type Request struct {
	Module        ModuleID          `json:"module"`
	InterfaceRole InterfaceRole     `json:"interface_role"`
	Method        string            `json:"method"`
	Headers       Headers           `json:"headers"`
	URLPath       string            `json:"url_path_variables,omitempty"`
	Params        map[string]string `json:"url_encoded_params,omitempty"`
	Body          json.RawMessage   `json:"body,omitempty"`
	ProxyUID      string            `json:"proxy_uid,omitempty"`
	ProxyResource string            `json:"proxy_resource,omitempty"`
}

// Response is the SCPI response wrapper returned for every request. Data is
// opaque to the node. The signature field carries the responder's party-level
// signature when signing is active.
type Response struct {
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Signature     string          `json:"scn_signature,omitempty"`
	Timestamp     string          `json:"timestamp"`
}

// OK reports whether the response carries the protocol success status.
func (r *Response) OK() bool {
	return r.StatusCode == StatusSuccess
}

// Timestamp returns the current time in the ISO-8601 format the protocol
// mandates for response timestamps.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Version names one supported protocol version and its details endpoint.
type Version struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// VersionDetail is a platform's advertised capability surface: the endpoint
// it exposes for each (module, interface role) pair.
type VersionDetail struct {
	Version   string     `json:"version"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Endpoint is one advertised (module, interface role) -> URL mapping.
type Endpoint struct {
	Identifier ModuleID      `json:"identifier"`
	Role       InterfaceRole `json:"role"`
	URL        string        `json:"url"`
}

// BusinessDetails describes the party behind a role.
type BusinessDetails struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

// CredentialsRole is one role a platform claims during registration.
type CredentialsRole struct {
	Role            Role            `json:"role"`
	BusinessDetails BusinessDetails `json:"business_details"`
	PartyID         string          `json:"party_id"`
	CountryCode     string          `json:"country_code"`
}

// Credentials is the registration handshake payload: the token the other
// side should use when calling us, and our versions endpoint.
type Credentials struct {
	Token string            `json:"token"`
	URL   string            `json:"url"`
	Roles []CredentialsRole `json:"roles"`
}
