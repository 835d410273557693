package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Smart-Charging/scn-node/scpi"
	"github.com/Smart-Charging/scn-node/store"
)

// VersionsHandler serves the node's version discovery endpoints, reachable
// with either a registration token or a full credentials token.
type VersionsHandler struct {
	store   store.Store
	nodeURL string
}

func NewVersionsHandler(st store.Store, nodeURL string) *VersionsHandler {
	return &VersionsHandler{store: st, nodeURL: nodeURL}
}

func (h *VersionsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/scpi/versions", h.getVersions)
	r.Get("/scpi/2.2", h.getVersionDetail)
}

func (h *VersionsHandler) getVersions(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context(), r.Header.Get("Authorization")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, []scpi.Version{{
		Version: "2.2",
		URL:     scpi.URLJoin(h.nodeURL, "/scpi/2.2"),
	}})
}

func (h *VersionsHandler) getVersionDetail(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context(), r.Header.Get("Authorization")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, scpi.VersionDetail{
		Version:   "2.2",
		Endpoints: NodeEndpoints(h.nodeURL),
	})
}

// authorize accepts either token A (mid-registration) or token C (fully
// registered).
func (h *VersionsHandler) authorize(ctx context.Context, authorization string) error {
	token := scpi.ExtractToken(authorization)

	if _, err := h.store.PlatformByTokenA(ctx, token); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if _, err := h.store.PlatformByTokenC(ctx, token); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return scpi.ErrInvalidParams("Invalid CREDENTIALS_TOKEN_A")
}

// NodeEndpoints is this node's advertised endpoint catalogue. Credentials
// only has the hub-side interface; every other module is served on both.
func NodeEndpoints(nodeURL string) []scpi.Endpoint {
	modules := []scpi.ModuleID{
		scpi.ModuleCdrs,
		scpi.ModuleChargingProfiles,
		scpi.ModuleCommands,
		scpi.ModuleCredentials,
		scpi.ModuleLocations,
		scpi.ModuleSessions,
		scpi.ModuleTariffs,
		scpi.ModuleTokens,
	}

	var endpoints []scpi.Endpoint
	for _, module := range modules {
		if module == scpi.ModuleCredentials {
			endpoints = append(endpoints, scpi.Endpoint{
				Identifier: module,
				Role:       scpi.InterfaceSender,
				URL:        scpi.URLJoin(nodeURL, "/scpi/2.2/"+string(module)),
			})
			continue
		}
		endpoints = append(endpoints,
			scpi.Endpoint{
				Identifier: module,
				Role:       scpi.InterfaceSender,
				URL:        scpi.URLJoin(nodeURL, "/scpi/sender/2.2/"+string(module)),
			},
			scpi.Endpoint{
				Identifier: module,
				Role:       scpi.InterfaceReceiver,
				URL:        scpi.URLJoin(nodeURL, "/scpi/receiver/2.2/"+string(module)),
			})
	}

	// access rules are a node-specific extension module
	endpoints = append(endpoints, scpi.Endpoint{
		Identifier: "scnrules",
		Role:       scpi.InterfaceReceiver,
		URL:        scpi.URLJoin(nodeURL, "/scpi/receiver/2.2/scnrules"),
	})

	return endpoints
}
