package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Smart-Charging/scn-node/rules"
	"github.com/Smart-Charging/scn-node/scpi"
)

// RulesHandler exposes a platform's access-rule controls on the receiver
// interface of the scnrules extension module.
type RulesHandler struct {
	service *rules.Service
}

func NewRulesHandler(service *rules.Service) *RulesHandler {
	return &RulesHandler{service: service}
}

func (h *RulesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/scpi/receiver/2.2/scnrules", h.getRules)
	r.Put("/scpi/receiver/2.2/scnrules/signatures", h.updateSignatures)
	r.Put("/scpi/receiver/2.2/scnrules/whitelist", h.updateWhitelist)
	r.Put("/scpi/receiver/2.2/scnrules/blacklist", h.updateBlacklist)
	r.Put("/scpi/receiver/2.2/scnrules/block-all", h.blockAll)
	r.Post("/scpi/receiver/2.2/scnrules/whitelist", h.appendToWhitelist)
	r.Post("/scpi/receiver/2.2/scnrules/blacklist", h.appendToBlacklist)
	r.Delete("/scpi/receiver/2.2/scnrules/whitelist/{countryCode}/{partyID}", h.deleteFromWhitelist)
	r.Delete("/scpi/receiver/2.2/scnrules/blacklist/{countryCode}/{partyID}", h.deleteFromBlacklist)
}

func (h *RulesHandler) getRules(w http.ResponseWriter, r *http.Request) {
	document, err := h.service.Rules(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, document)
}

func (h *RulesHandler) updateSignatures(w http.ResponseWriter, r *http.Request) {
	h.run(w, h.service.ToggleSignatures(r.Context(), r.Header.Get("Authorization")))
}

func (h *RulesHandler) blockAll(w http.ResponseWriter, r *http.Request) {
	h.run(w, h.service.BlockAll(r.Context(), r.Header.Get("Authorization")))
}

func (h *RulesHandler) updateWhitelist(w http.ResponseWriter, r *http.Request) {
	parties, err := decodeParties(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.run(w, h.service.UpdateWhitelist(r.Context(), r.Header.Get("Authorization"), parties))
}

func (h *RulesHandler) updateBlacklist(w http.ResponseWriter, r *http.Request) {
	parties, err := decodeParties(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.run(w, h.service.UpdateBlacklist(r.Context(), r.Header.Get("Authorization"), parties))
}

func (h *RulesHandler) appendToWhitelist(w http.ResponseWriter, r *http.Request) {
	party, err := decodeParty(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.run(w, h.service.AppendToWhitelist(r.Context(), r.Header.Get("Authorization"), party))
}

func (h *RulesHandler) appendToBlacklist(w http.ResponseWriter, r *http.Request) {
	party, err := decodeParty(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.run(w, h.service.AppendToBlacklist(r.Context(), r.Header.Get("Authorization"), party))
}

func (h *RulesHandler) deleteFromWhitelist(w http.ResponseWriter, r *http.Request) {
	h.run(w, h.service.DeleteFromWhitelist(r.Context(), r.Header.Get("Authorization"), pathParty(r)))
}

func (h *RulesHandler) deleteFromBlacklist(w http.ResponseWriter, r *http.Request) {
	h.run(w, h.service.DeleteFromBlacklist(r.Context(), r.Header.Get("Authorization"), pathParty(r)))
}

func (h *RulesHandler) run(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func decodeParty(r *http.Request) (rules.Party, error) {
	var party rules.Party
	if err := json.NewDecoder(r.Body).Decode(&party); err != nil {
		return rules.Party{}, scpi.ErrInvalidParams("Could not parse rules entry: %v", err)
	}
	return party, nil
}

func decodeParties(r *http.Request) ([]rules.Party, error) {
	var parties []rules.Party
	if err := json.NewDecoder(r.Body).Decode(&parties); err != nil {
		return nil, scpi.ErrInvalidParams("Could not parse rules entries: %v", err)
	}
	return parties, nil
}

func pathParty(r *http.Request) scpi.BasicRole {
	return scpi.BasicRole{
		ID:      chi.URLParam(r, "partyID"),
		Country: chi.URLParam(r, "countryCode"),
	}.Normalize()
}
