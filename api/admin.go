package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Smart-Charging/scn-node/scpi"
	"github.com/Smart-Charging/scn-node/store"
)

// AdminHandler provisions platform accounts ahead of the registration
// handshake. Guarded by the node operator's API key.
type AdminHandler struct {
	store   store.Store
	apiKey  string
	nodeURL string
}

func NewAdminHandler(st store.Store, apiKey, nodeURL string) *AdminHandler {
	return &AdminHandler{store: st, apiKey: apiKey, nodeURL: nodeURL}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/admin/generate-registration-token", h.generateRegistrationToken)
}

// registrationToken is what the operator hands to a platform out of band:
// the pre-shared token A and where to begin the handshake.
type registrationToken struct {
	Token    string `json:"token"`
	Versions string `json:"versions"`
}

func (h *AdminHandler) generateRegistrationToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if scpi.ExtractToken(r.Header.Get("Authorization")) != h.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var parties []scpi.BasicRole
	if err := json.NewDecoder(r.Body).Decode(&parties); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Expected a list of parties"})
		return
	}

	// refuse tokens for parties already connected through any platform
	for _, party := range parties {
		exists, err := h.store.RoleExists(ctx, party.Normalize())
		if err != nil {
			writeError(w, err)
			return
		}
		if exists {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Party " + party.Normalize().String() + " already registered on this node",
			})
			return
		}
	}

	platform := &store.Platform{
		Status:      scpi.StatusPlanned,
		LastUpdated: scpi.Timestamp(),
		Auth:        store.Auth{TokenA: uuid.NewString()},
	}
	if err := h.store.CreatePlatform(ctx, platform); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registrationToken{
		Token:    platform.Auth.TokenA,
		Versions: scpi.URLJoin(h.nodeURL, "/scpi/versions"),
	})
}
