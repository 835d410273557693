package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Smart-Charging/scn-node/relay"
	"github.com/Smart-Charging/scn-node/scpi"
)

// commandTypes are the asynchronous charge-point commands the protocol
// defines.
var commandTypes = map[string]bool{
	"CANCEL_RESERVATION": true,
	"RESERVE_NOW":        true,
	"START_SESSION":      true,
	"STOP_SESSION":       true,
	"UNLOCK_CONNECTOR":   true,
}

// ModulesHandler mounts the SCPI module endpoints. Each handler assembles
// the protocol envelope from headers, path and query string and drives the
// relay pipeline.
type ModulesHandler struct {
	builder *relay.Builder
}

func NewModulesHandler(builder *relay.Builder) *ModulesHandler {
	return &ModulesHandler{builder: builder}
}

func (h *ModulesHandler) RegisterRoutes(r chi.Router) {
	// sender interfaces: paginated lists plus the single-use page
	// dereference endpoint the node substitutes into Link headers
	for _, m := range []scpi.ModuleID{scpi.ModuleCdrs, scpi.ModuleLocations, scpi.ModuleSessions, scpi.ModuleTariffs, scpi.ModuleTokens} {
		module := m
		r.Get("/scpi/sender/2.2/"+string(module), h.senderList(module))
		r.Get("/scpi/sender/2.2/"+string(module)+"/page/{uid}", h.senderPage(module))
	}

	r.Get("/scpi/sender/2.2/locations/{locationID}", h.senderObject(scpi.ModuleLocations, "locationID"))
	r.Get("/scpi/sender/2.2/locations/{locationID}/{evseUID}", h.senderObject(scpi.ModuleLocations, "locationID", "evseUID"))
	r.Get("/scpi/sender/2.2/locations/{locationID}/{evseUID}/{connectorID}", h.senderObject(scpi.ModuleLocations, "locationID", "evseUID", "connectorID"))

	r.Put("/scpi/sender/2.2/sessions/{sessionID}/charging_preferences", h.putChargingPreferences)
	r.Post("/scpi/sender/2.2/tokens/{tokenUID}/authorize", h.postTokenAuthorize)

	// async command results come back on the callback the node handed out
	r.Post("/scpi/sender/2.2/commands/{command}/{uid}", h.postCommandResult)

	// charging profiles keep their historical inverted path prefix
	r.Post("/scpi/2.2/sender/chargingprofiles/result/{uid}", h.postChargingProfileResult)
	r.Put("/scpi/2.2/sender/chargingprofiles/{sessionID}", h.putSenderChargingProfile)

	// receiver interfaces: client-owned objects addressed by owning party
	r.Get("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID"))
	r.Get("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}/{evseUID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID", "evseUID"))
	r.Get("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}/{evseUID}/{connectorID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID", "evseUID", "connectorID"))
	r.Put("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID"))
	r.Put("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}/{evseUID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID", "evseUID"))
	r.Put("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}/{evseUID}/{connectorID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID", "evseUID", "connectorID"))
	r.Patch("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID"))
	r.Patch("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}/{evseUID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID", "evseUID"))
	r.Patch("/scpi/receiver/2.2/locations/{countryCode}/{partyID}/{locationID}/{evseUID}/{connectorID}", h.receiverObject(scpi.ModuleLocations, nil, "countryCode", "partyID", "locationID", "evseUID", "connectorID"))

	r.Get("/scpi/receiver/2.2/sessions/{countryCode}/{partyID}/{sessionID}", h.receiverObject(scpi.ModuleSessions, nil, "countryCode", "partyID", "sessionID"))
	r.Put("/scpi/receiver/2.2/sessions/{countryCode}/{partyID}/{sessionID}", h.receiverObject(scpi.ModuleSessions, nil, "countryCode", "partyID", "sessionID"))
	r.Patch("/scpi/receiver/2.2/sessions/{countryCode}/{partyID}/{sessionID}", h.receiverObject(scpi.ModuleSessions, nil, "countryCode", "partyID", "sessionID"))

	r.Get("/scpi/receiver/2.2/tariffs/{countryCode}/{partyID}/{tariffID}", h.receiverObject(scpi.ModuleTariffs, nil, "countryCode", "partyID", "tariffID"))
	r.Put("/scpi/receiver/2.2/tariffs/{countryCode}/{partyID}/{tariffID}", h.receiverObject(scpi.ModuleTariffs, nil, "countryCode", "partyID", "tariffID"))
	r.Delete("/scpi/receiver/2.2/tariffs/{countryCode}/{partyID}/{tariffID}", h.receiverObject(scpi.ModuleTariffs, nil, "countryCode", "partyID", "tariffID"))

	r.Get("/scpi/receiver/2.2/tokens/{countryCode}/{partyID}/{tokenUID}", h.receiverObject(scpi.ModuleTokens, tokenTypeParams, "countryCode", "partyID", "tokenUID"))
	r.Put("/scpi/receiver/2.2/tokens/{countryCode}/{partyID}/{tokenUID}", h.receiverObject(scpi.ModuleTokens, tokenTypeParams, "countryCode", "partyID", "tokenUID"))
	r.Patch("/scpi/receiver/2.2/tokens/{countryCode}/{partyID}/{tokenUID}", h.receiverObject(scpi.ModuleTokens, tokenTypeParams, "countryCode", "partyID", "tokenUID"))

	r.Get("/scpi/receiver/2.2/cdrs/{cdrID}", h.getReceiverCdr)
	r.Post("/scpi/receiver/2.2/cdrs", h.postReceiverCdr)

	r.Post("/scpi/receiver/2.2/commands/{command}", h.postCommand)

	r.Get("/scpi/2.2/receiver/chargingprofiles/{sessionID}", h.getReceiverChargingProfile)
	r.Put("/scpi/2.2/receiver/chargingprofiles/{sessionID}", h.putReceiverChargingProfile)
	r.Delete("/scpi/2.2/receiver/chargingprofiles/{sessionID}", h.deleteReceiverChargingProfile)
}

// shapeFunc picks which headers of the forwarded response are surfaced to
// the caller.
type shapeFunc func(f *relay.Forwarded, ctx context.Context) (*relay.Result, error)

// relay drives an envelope through the standard pipeline: authenticate the
// sender, forward, shape the response.
func (h *ModulesHandler) relay(w http.ResponseWriter, r *http.Request, request *scpi.Request, proxied bool, shape shapeFunc) {
	ctx := r.Context()

	validated, err := h.builder.Receive(request).ValidateSender(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	forwarded, err := validated.Forward(ctx, proxied)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := shape(forwarded, ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

// relayModifiable drives an envelope whose response_url must be replaced
// with a callback this node can proxy.
func (h *ModulesHandler) relayModifiable(w http.ResponseWriter, r *http.Request, request *scpi.Request, responseURL string, modify func(newResponseURL string) *scpi.Request) {
	ctx := r.Context()

	validated, err := h.builder.Receive(request).ValidateSender(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	forwarded, err := validated.ForwardModifiable(ctx, responseURL, modify)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := forwarded.Response(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

// moduleRequest parses an incoming module request into a protocol envelope.
// Methods that carry a body have it read and validated here.
func moduleRequest(r *http.Request, module scpi.ModuleID, role scpi.InterfaceRole, urlPath string, params map[string]string) (*scpi.Request, error) {
	headers, err := envelopeHeaders(r)
	if err != nil {
		return nil, err
	}

	request := &scpi.Request{
		Module:        module,
		InterfaceRole: role,
		Method:        r.Method,
		Headers:       headers,
		URLPath:       urlPath,
		Params:        params,
	}
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		request.Body, err = readBody(r)
		if err != nil {
			return nil, err
		}
	}
	return request, nil
}

// pathVars joins chi path parameters into a slash-prefixed URL path
// fragment.
func pathVars(r *http.Request, names ...string) string {
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString("/")
		sb.WriteString(chi.URLParam(r, name))
	}
	return sb.String()
}

// paginationParams extracts the standard list-query parameters, dropping
// the ones the caller left unset.
func paginationParams(r *http.Request) map[string]string {
	params := map[string]string{}
	for _, key := range []string{"date_from", "date_to", "offset", "limit"} {
		if value := r.URL.Query().Get(key); value != "" {
			params[key] = value
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// tokenTypeParams resolves the token type parameter, defaulting to RFID.
func tokenTypeParams(r *http.Request) map[string]string {
	typ := r.URL.Query().Get("type")
	if typ == "" {
		typ = "RFID"
	}
	return map[string]string{"type": typ}
}

func (h *ModulesHandler) senderList(module scpi.ModuleID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		request, err := moduleRequest(r, module, scpi.InterfaceSender, "", paginationParams(r))
		if err != nil {
			writeError(w, err)
			return
		}
		h.relay(w, r, request, false, (*relay.Forwarded).ResponseWithPaginationHeaders)
	}
}

func (h *ModulesHandler) senderPage(module scpi.ModuleID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		request, err := moduleRequest(r, module, scpi.InterfaceSender, chi.URLParam(r, "uid"), nil)
		if err != nil {
			writeError(w, err)
			return
		}
		h.relay(w, r, request, true, (*relay.Forwarded).ResponseWithPaginationHeaders)
	}
}

func (h *ModulesHandler) senderObject(module scpi.ModuleID, names ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		request, err := moduleRequest(r, module, scpi.InterfaceSender, pathVars(r, names...), nil)
		if err != nil {
			writeError(w, err)
			return
		}
		h.relay(w, r, request, false, (*relay.Forwarded).Response)
	}
}

func (h *ModulesHandler) receiverObject(module scpi.ModuleID, params func(*http.Request) map[string]string, names ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var values map[string]string
		if params != nil {
			values = params(r)
		}
		request, err := moduleRequest(r, module, scpi.InterfaceReceiver, pathVars(r, names...), values)
		if err != nil {
			writeError(w, err)
			return
		}
		h.relay(w, r, request, false, (*relay.Forwarded).Response)
	}
}

func (h *ModulesHandler) putChargingPreferences(w http.ResponseWriter, r *http.Request) {
	urlPath := pathVars(r, "sessionID") + "/charging_preferences"
	request, err := moduleRequest(r, scpi.ModuleSessions, scpi.InterfaceSender, urlPath, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	h.relay(w, r, request, false, (*relay.Forwarded).Response)
}

func (h *ModulesHandler) postTokenAuthorize(w http.ResponseWriter, r *http.Request) {
	urlPath := chi.URLParam(r, "tokenUID") + "/authorize"
	request, err := moduleRequest(r, scpi.ModuleTokens, scpi.InterfaceSender, urlPath, tokenTypeParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.relay(w, r, request, false, (*relay.Forwarded).Response)
}

func (h *ModulesHandler) postCommandResult(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")
	if !commandTypes[command] {
		writeError(w, scpi.ErrInvalidParams("Unrecognized command type: %s", command))
		return
	}
	request, err := moduleRequest(r, scpi.ModuleCommands, scpi.InterfaceSender, chi.URLParam(r, "uid"), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	h.relay(w, r, request, true, (*relay.Forwarded).Response)
}

func (h *ModulesHandler) postChargingProfileResult(w http.ResponseWriter, r *http.Request) {
	request, err := moduleRequest(r, scpi.ModuleChargingProfiles, scpi.InterfaceSender, chi.URLParam(r, "uid"), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	h.relay(w, r, request, true, (*relay.Forwarded).Response)
}

func (h *ModulesHandler) putSenderChargingProfile(w http.ResponseWriter, r *http.Request) {
	request, err := moduleRequest(r, scpi.ModuleChargingProfiles, scpi.InterfaceSender, chi.URLParam(r, "sessionID"), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	h.relay(w, r, request, false, (*relay.Forwarded).Response)
}

func (h *ModulesHandler) getReceiverCdr(w http.ResponseWriter, r *http.Request) {
	// cdr locations come back on a dereferenceable proxy, so the id in
	// the path is a stored resource token
	request, err := moduleRequest(r, scpi.ModuleCdrs, scpi.InterfaceReceiver, chi.URLParam(r, "cdrID"), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	h.relay(w, r, request, true, (*relay.Forwarded).Response)
}

func (h *ModulesHandler) postReceiverCdr(w http.ResponseWriter, r *http.Request) {
	request, err := moduleRequest(r, scpi.ModuleCdrs, scpi.InterfaceReceiver, "", nil)
	if err != nil {
		writeError(w, err)
		return
	}
	h.relay(w, r, request, false, func(f *relay.Forwarded, ctx context.Context) (*relay.Result, error) {
		return f.ResponseWithLocationHeader(ctx, "/scpi/receiver/2.2/cdrs")
	})
}

func (h *ModulesHandler) postCommand(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")
	if !commandTypes[command] {
		writeError(w, scpi.ErrInvalidParams("Unrecognized command type: %s", command))
		return
	}
	request, err := moduleRequest(r, scpi.ModuleCommands, scpi.InterfaceReceiver, command, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(request.Body, &payload); err != nil {
		writeError(w, scpi.ErrInvalidParams("Could not parse command body: %v", err))
		return
	}
	responseURL, ok := payload["response_url"].(string)
	if !ok || responseURL == "" {
		writeError(w, scpi.ErrInvalidParams("Missing response_url in command body"))
		return
	}

	h.relayModifiable(w, r, request, responseURL, func(newResponseURL string) *scpi.Request {
		payload["response_url"] = newResponseURL
		body, _ := json.Marshal(payload)
		modified := *request
		modified.Body = body
		return &modified
	})
}

func (h *ModulesHandler) getReceiverChargingProfile(w http.ResponseWriter, r *http.Request) {
	duration := r.URL.Query().Get("duration")
	responseURL := r.URL.Query().Get("response_url")
	if duration == "" {
		writeError(w, scpi.ErrInvalidParams("Missing required parameter: duration"))
		return
	}
	if responseURL == "" {
		writeError(w, scpi.ErrInvalidParams("Missing required parameter: response_url"))
		return
	}

	params := map[string]string{"duration": duration, "response_url": responseURL}
	request, err := moduleRequest(r, scpi.ModuleChargingProfiles, scpi.InterfaceReceiver, chi.URLParam(r, "sessionID"), params)
	if err != nil {
		writeError(w, err)
		return
	}

	h.relayModifiable(w, r, request, responseURL, func(newResponseURL string) *scpi.Request {
		modified := *request
		modified.Params = map[string]string{"duration": duration, "response_url": newResponseURL}
		return &modified
	})
}

func (h *ModulesHandler) putReceiverChargingProfile(w http.ResponseWriter, r *http.Request) {
	request, err := moduleRequest(r, scpi.ModuleChargingProfiles, scpi.InterfaceReceiver, chi.URLParam(r, "sessionID"), nil)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(request.Body, &payload); err != nil {
		writeError(w, scpi.ErrInvalidParams("Could not parse charging profile body: %v", err))
		return
	}
	responseURL, ok := payload["response_url"].(string)
	if !ok || responseURL == "" {
		writeError(w, scpi.ErrInvalidParams("Missing response_url in charging profile body"))
		return
	}

	h.relayModifiable(w, r, request, responseURL, func(newResponseURL string) *scpi.Request {
		payload["response_url"] = newResponseURL
		body, _ := json.Marshal(payload)
		modified := *request
		modified.Body = body
		return &modified
	})
}

func (h *ModulesHandler) deleteReceiverChargingProfile(w http.ResponseWriter, r *http.Request) {
	responseURL := r.URL.Query().Get("response_url")
	if responseURL == "" {
		writeError(w, scpi.ErrInvalidParams("Missing required parameter: response_url"))
		return
	}

	params := map[string]string{"response_url": responseURL}
	request, err := moduleRequest(r, scpi.ModuleChargingProfiles, scpi.InterfaceReceiver, chi.URLParam(r, "sessionID"), params)
	if err != nil {
		writeError(w, err)
		return
	}

	h.relayModifiable(w, r, request, responseURL, func(newResponseURL string) *scpi.Request {
		modified := *request
		modified.Params = map[string]string{"response_url": newResponseURL}
		return &modified
	})
}
