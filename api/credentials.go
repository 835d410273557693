package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Smart-Charging/scn-node/relay"
	"github.com/Smart-Charging/scn-node/routing"
	"github.com/Smart-Charging/scn-node/scpi"
	"github.com/Smart-Charging/scn-node/store"
)

// CredentialsHandler runs the registration handshake: it swaps the
// pre-shared token A for working credentials, fetches the platform's
// endpoint catalogue and persists its roles.
type CredentialsHandler struct {
	store      store.Store
	router     *routing.Router
	client     *relay.Client
	nodeURL    string
	signatures bool
}

func NewCredentialsHandler(st store.Store, router *routing.Router, client *relay.Client, nodeURL string, signatures bool) *CredentialsHandler {
	return &CredentialsHandler{
		store:      st,
		router:     router,
		client:     client,
		nodeURL:    nodeURL,
		signatures: signatures,
	}
}

func (h *CredentialsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/scpi/2.2/credentials", h.getCredentials)
	r.Post("/scpi/2.2/credentials", h.postCredentials)
	r.Put("/scpi/2.2/credentials", h.putCredentials)
	r.Delete("/scpi/2.2/credentials", h.deleteCredentials)
}

// myCredentials is the node's side of the handshake: the token the platform
// should present from now on, and where to find our versions endpoint.
func (h *CredentialsHandler) myCredentials(token string) scpi.Credentials {
	return scpi.Credentials{
		Token: token,
		URL:   scpi.URLJoin(h.nodeURL, "/scpi/versions"),
		Roles: []scpi.CredentialsRole{{
			Role:            scpi.RoleHub,
			BusinessDetails: scpi.BusinessDetails{Name: "Smart Charging Network Node"},
			PartyID:         "SCN",
			CountryCode:     "CH",
		}},
	}
}

func (h *CredentialsHandler) getCredentials(w http.ResponseWriter, r *http.Request) {
	platform, err := h.store.PlatformByTokenC(r.Context(), scpi.ExtractToken(r.Header.Get("Authorization")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = scpi.ErrInvalidParams("Invalid CREDENTIALS_TOKEN_C")
		}
		writeError(w, err)
		return
	}
	writeOK(w, h.myCredentials(platform.Auth.TokenC))
}

func (h *CredentialsHandler) postCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// the platform must have been provisioned by the admin beforehand
	platform, err := h.store.PlatformByTokenA(ctx, scpi.ExtractToken(r.Header.Get("Authorization")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = scpi.ErrInvalidParams("Invalid CREDENTIALS_TOKEN_A")
		}
		writeError(w, err)
		return
	}

	var body scpi.Credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, scpi.ErrInvalidParams("Could not parse credentials body: %v", err))
		return
	}

	versionDetail, err := h.fetchVersionDetail(r, body)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, role := range body.Roles {
		party := scpi.BasicRole{ID: role.PartyID, Country: role.CountryCode}.Normalize()

		mine, err := h.router.IsMyParty(ctx, party)
		if err != nil {
			writeError(w, err)
			return
		}
		if !mine {
			writeError(w, scpi.ErrInvalidParams(
				"Role with party_id=%s and country_code=%s not listed in SCN Registry with my node info!",
				party.ID, party.Country))
			return
		}

		connected, err := h.store.RoleExists(ctx, party)
		if err != nil {
			writeError(w, err)
			return
		}
		if connected {
			writeError(w, scpi.ErrInvalidParams(
				"Role with party_id=%s and country_code=%s already connected to this node!",
				party.ID, party.Country))
			return
		}
	}

	tokenC := uuid.NewString()

	platform.Auth = store.Auth{TokenB: body.Token, TokenC: tokenC}
	platform.VersionsURL = body.URL
	platform.Status = scpi.StatusConnected
	platform.LastUpdated = scpi.Timestamp()
	platform.Rules.Signatures = h.signatures

	if err := h.persistRegistration(r, platform, body.Roles, versionDetail.Endpoints); err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, h.myCredentials(tokenC))
}

func (h *CredentialsHandler) putCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// re-registration requires a completed handshake
	platform, err := h.store.PlatformByTokenC(ctx, scpi.ExtractToken(r.Header.Get("Authorization")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = scpi.ErrInvalidParams("Invalid CREDENTIALS_TOKEN_C")
		}
		writeError(w, err)
		return
	}

	var body scpi.Credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, scpi.ErrInvalidParams("Could not parse credentials body: %v", err))
		return
	}

	versionDetail, err := h.fetchVersionDetail(r, body)
	if err != nil {
		writeError(w, err)
		return
	}

	tokenC := uuid.NewString()

	platform.Auth = store.Auth{TokenB: body.Token, TokenC: tokenC}
	platform.VersionsURL = body.URL
	platform.Status = scpi.StatusConnected
	platform.LastUpdated = scpi.Timestamp()

	if err := h.persistRegistration(r, platform, body.Roles, versionDetail.Endpoints); err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, h.myCredentials(tokenC))
}

func (h *CredentialsHandler) deleteCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	platform, err := h.store.PlatformByTokenC(ctx, scpi.ExtractToken(r.Header.Get("Authorization")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = scpi.ErrInvalidParams("Invalid CREDENTIALS_TOKEN_C")
		}
		writeError(w, err)
		return
	}

	if err := h.store.DeletePlatform(ctx, platform.ID); err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, nil)
}

// fetchVersionDetail resolves the platform's version 2.2 endpoint catalogue
// using the token B it handed us.
func (h *CredentialsHandler) fetchVersionDetail(r *http.Request, body scpi.Credentials) (*scpi.VersionDetail, error) {
	ctx := r.Context()

	versions, err := h.client.GetVersions(ctx, body.URL, body.Token)
	if err != nil {
		return nil, err
	}

	var detailURL string
	for _, version := range versions {
		if version.Version == "2.2" {
			detailURL = version.URL
			break
		}
	}
	if detailURL == "" {
		return nil, scpi.ErrNoMatchingEndpoints("Expected version 2.2 from %s", body.URL)
	}

	return h.client.GetVersionDetail(ctx, detailURL, body.Token)
}

// persistRegistration replaces the platform's roles and endpoints wholesale
// and saves the updated connection state.
func (h *CredentialsHandler) persistRegistration(r *http.Request, platform *store.Platform, credRoles []scpi.CredentialsRole, endpoints []scpi.Endpoint) error {
	ctx := r.Context()

	if err := h.store.UpdatePlatform(ctx, platform); err != nil {
		return err
	}

	if err := h.store.DeleteRolesForPlatform(ctx, platform.ID); err != nil {
		return err
	}
	roles := make([]store.Role, 0, len(credRoles))
	for _, role := range credRoles {
		roles = append(roles, store.Role{
			PlatformID:      platform.ID,
			Role:            role.Role,
			BusinessDetails: role.BusinessDetails,
			PartyID:         role.PartyID,
			CountryCode:     role.CountryCode,
		})
	}
	if err := h.store.SaveRoles(ctx, roles); err != nil {
		return err
	}

	stored := make([]store.Endpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		stored = append(stored, store.Endpoint{
			PlatformID: platform.ID,
			Identifier: endpoint.Identifier,
			Role:       endpoint.Role,
			URL:        endpoint.URL,
		})
	}
	return h.store.ReplaceEndpoints(ctx, platform.ID, stored)
}
