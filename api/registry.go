package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Smart-Charging/scn-node/registry"
	"github.com/Smart-Charging/scn-node/wallet"
)

// RegistryHandler serves public information about this node and the
// network directory: no authentication required.
type RegistryHandler struct {
	registry registry.Client
	wallet   *wallet.Wallet
	nodeURL  string
}

func NewRegistryHandler(reg registry.Client, w *wallet.Wallet, nodeURL string) *RegistryHandler {
	return &RegistryHandler{registry: reg, wallet: w, nodeURL: nodeURL}
}

func (h *RegistryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/scn/registry/node-info", h.getNodeInfo)
	r.Get("/scn/registry/node/{countryCode}/{partyID}", h.getNodeOf)
}

func (h *RegistryHandler) getNodeInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"url":     h.nodeURL,
		"address": h.wallet.Address().Hex(),
	})
}

func (h *RegistryHandler) getNodeOf(w http.ResponseWriter, r *http.Request) {
	record, err := h.registry.NodeOf(r.Context(), chi.URLParam(r, "countryCode"), chi.URLParam(r, "partyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !record.Registered() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Party not registered on SCN"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":     record.Domain,
		"address": record.Operator.Hex(),
	})
}
