package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Smart-Charging/scn-node/notary"
	"github.com/Smart-Charging/scn-node/registry"
	"github.com/Smart-Charging/scn-node/routing"
	"github.com/Smart-Charging/scn-node/scpi"
	"github.com/Smart-Charging/scn-node/store"
	"github.com/Smart-Charging/scn-node/wallet"
)

const relayNodeURL = "https://this-node.example.com"

var (
	cpo  = scpi.BasicRole{ID: "CPO", Country: "DE"}
	emsp = scpi.BasicRole{ID: "MSP", Country: "DE"}
)

type relayFixture struct {
	builder  *Builder
	router   *routing.Router
	store    *store.Memory
	registry *registry.MemoryClient
	wallet   *wallet.Wallet
	keyHex   string
}

func newRelayFixture(t *testing.T, signatures bool) *relayFixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))

	reg := registry.NewMemoryClient()
	w, err := wallet.New(keyHex, reg)
	require.NoError(t, err)

	st := store.NewMemory()
	router := routing.New(st, reg, w, relayNodeURL)
	client := NewClient(5*time.Second, zap.NewNop())
	builder := NewBuilder(router, client, w, Config{
		NodeURL:    relayNodeURL,
		PrivateKey: keyHex,
		Signatures: signatures,
	}, zap.NewNop())

	return &relayFixture{
		builder:  builder,
		router:   router,
		store:    st,
		registry: reg,
		wallet:   w,
		keyHex:   keyHex,
	}
}

// connectPlatform registers a local platform for role with endpoints for
// every module pointed at endpointURL.
func (f *relayFixture) connectPlatform(t *testing.T, role scpi.BasicRole, endpointURL string) int64 {
	t.Helper()
	ctx := context.Background()

	platform := &store.Platform{
		Status: scpi.StatusConnected,
		Auth:   store.Auth{TokenB: "token-b-" + role.ID, TokenC: "token-c-" + role.ID},
	}
	require.NoError(t, f.store.CreatePlatform(ctx, platform))

	require.NoError(t, f.store.SaveRoles(ctx, []store.Role{{
		PlatformID:  platform.ID,
		Role:        scpi.RoleCPO,
		PartyID:     role.ID,
		CountryCode: role.Country,
	}}))

	var endpoints []store.Endpoint
	for _, module := range []scpi.ModuleID{scpi.ModuleLocations, scpi.ModuleCdrs, scpi.ModuleCommands} {
		for _, ifaceRole := range []scpi.InterfaceRole{scpi.InterfaceSender, scpi.InterfaceReceiver} {
			endpoints = append(endpoints, store.Endpoint{
				Identifier: module,
				Role:       ifaceRole,
				URL:        fmt.Sprintf("%s/%s/%s", endpointURL, ifaceRole, module),
			})
		}
	}
	require.NoError(t, f.store.ReplaceEndpoints(ctx, platform.ID, endpoints))

	f.registry.SetParty(role.Country, role.ID, registry.NodeRecord{
		Operator: f.wallet.Address(),
		Domain:   relayNodeURL,
	}, registry.PartyDetails{Operator: f.wallet.Address()})

	return platform.ID
}

func (f *relayFixture) registerRemote(role scpi.BasicRole, domain string, operator common.Address) {
	f.registry.SetParty(role.Country, role.ID, registry.NodeRecord{
		Operator: operator,
		Domain:   domain,
	}, registry.PartyDetails{Operator: operator})
}

func relayRequest(sender, receiver scpi.BasicRole) *scpi.Request {
	return &scpi.Request{
		Module:        scpi.ModuleLocations,
		InterfaceRole: scpi.InterfaceSender,
		Method:        "GET",
		Headers: scpi.Headers{
			Authorization: "Token token-c-" + sender.ID,
			RequestID:     "req-1",
			CorrelationID: "corr-1",
			Sender:        sender,
			Receiver:      receiver,
		},
	}
}

func successBody(data string) scpi.Response {
	return scpi.Response{
		StatusCode: scpi.StatusSuccess,
		Data:       json.RawMessage(data),
		Timestamp:  scpi.Timestamp(),
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, body scpi.Response) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestForwardToLocalPlatform(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	var gotAuth, gotPath string
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		writeJSON(t, w, successBody(`[{"id":"LOC1"}]`))
	}))
	defer platform.Close()

	f.connectPlatform(t, cpo, platform.URL)
	f.connectPlatform(t, emsp, platform.URL)

	handler, err := f.builder.Receive(relayRequest(emsp, cpo)).ValidateSender(ctx)
	require.NoError(t, err)
	forwarded, err := handler.Forward(ctx, false)
	require.NoError(t, err)
	result, err := forwarded.Response(ctx)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, result.HTTPStatus)
	require.Equal(t, scpi.StatusSuccess, result.Body.StatusCode)
	require.JSONEq(t, `[{"id":"LOC1"}]`, string(result.Body.Data))
	// caller's token is swapped for the platform's own
	require.Equal(t, "Token token-b-CPO", gotAuth)
	require.Equal(t, "/SENDER/locations", gotPath)
}

func TestForwardRejectsUnknownSenderToken(t *testing.T) {
	f := newRelayFixture(t, false)

	request := relayRequest(emsp, cpo)
	request.Headers.Authorization = "Token nope"

	_, err := f.builder.Receive(request).ValidateSender(context.Background())
	require.Error(t, err)
	require.Equal(t, scpi.StatusClientInvalidParams, scpi.AsError(err).Status)
}

func TestForwardBlockedByWhitelist(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	platformID := f.connectPlatform(t, cpo, "http://unused.invalid")
	f.connectPlatform(t, emsp, "http://unused.invalid")

	platform, err := f.store.PlatformByID(ctx, platformID)
	require.NoError(t, err)
	platform.Rules.Whitelist = true
	require.NoError(t, f.store.UpdatePlatform(ctx, platform))

	handler, err := f.builder.Receive(relayRequest(emsp, cpo)).ValidateSender(ctx)
	require.NoError(t, err)
	_, err = handler.Forward(ctx, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "whitelist")
}

func TestForwardToRemoteNode(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	f.connectPlatform(t, cpo, "http://unused.invalid")

	var relayed scpi.Request
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scn/message", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		require.NoError(t, json.Unmarshal(raw, &relayed))

		// the envelope must verify against the sending node's wallet
		require.NoError(t, f.wallet.Verify(r.Context(), string(raw), r.Header.Get("SCN-Signature"), relayed.Headers.Sender))

		writeJSON(t, w, successBody(`{"result":"ACCEPTED"}`))
	}))
	defer node.Close()

	f.registerRemote(emsp, node.URL, f.wallet.Address())
	// sender's own registration, for signature verification on the far side
	f.registry.SetParty(cpo.Country, cpo.ID, registry.NodeRecord{
		Operator: f.wallet.Address(),
		Domain:   relayNodeURL,
	}, registry.PartyDetails{})

	handler, err := f.builder.Receive(relayRequest(cpo, emsp)).ValidateSender(ctx)
	require.NoError(t, err)
	forwarded, err := handler.Forward(ctx, false)
	require.NoError(t, err)
	result, err := forwarded.Response(ctx)
	require.NoError(t, err)

	require.Equal(t, scpi.StatusSuccess, result.Body.StatusCode)
	require.Empty(t, relayed.Headers.Authorization)
	require.Equal(t, "corr-1", relayed.Headers.CorrelationID)
}

func TestForwardToUnreachableNode(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	f.connectPlatform(t, cpo, "http://unused.invalid")
	f.registerRemote(emsp, "http://127.0.0.1:1", f.wallet.Address())

	handler, err := f.builder.Receive(relayRequest(cpo, emsp)).ValidateSender(ctx)
	require.NoError(t, err)
	_, err = handler.Forward(ctx, false)
	require.Error(t, err)
	require.Equal(t, scpi.StatusHubConnectionProblem, scpi.AsError(err).Status)
}

func TestValidateNodeMessage(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	f.connectPlatform(t, cpo, "http://unused.invalid")
	f.registerRemote(emsp, "https://other-node.example.com", f.wallet.Address())

	request := relayRequest(emsp, cpo)
	request.Headers.Authorization = ""
	raw, err := json.Marshal(request)
	require.NoError(t, err)

	signature, err := f.wallet.Sign(string(raw))
	require.NoError(t, err)

	received, err := f.builder.ReceiveNodeMessage(raw)
	require.NoError(t, err)
	validated, err := received.ValidateNodeMessage(ctx, signature)
	require.NoError(t, err)
	require.NotNil(t, validated)

	t.Run("rejects unregistered sender", func(t *testing.T) {
		bad := relayRequest(scpi.BasicRole{ID: "XXX", Country: "XX"}, cpo)
		badRaw, err := json.Marshal(bad)
		require.NoError(t, err)
		received, err := f.builder.ReceiveNodeMessage(badRaw)
		require.NoError(t, err)
		_, err = received.ValidateNodeMessage(ctx, signature)
		require.Error(t, err)
		require.Equal(t, scpi.StatusHubUnknownReceiver, scpi.AsError(err).Status)
	})

	t.Run("rejects receiver not connected here", func(t *testing.T) {
		other := scpi.BasicRole{ID: "ABC", Country: "FR"}
		f.registerRemote(other, "https://elsewhere.example.com", f.wallet.Address())
		bad := relayRequest(emsp, other)
		badRaw, err := json.Marshal(bad)
		require.NoError(t, err)
		received, err := f.builder.ReceiveNodeMessage(badRaw)
		require.NoError(t, err)
		_, err = received.ValidateNodeMessage(ctx, signature)
		require.Error(t, err)
		require.Contains(t, err.Error(), "Recipient unknown")
	})

	t.Run("rejects tampered envelope", func(t *testing.T) {
		tampered := append([]byte{}, raw...)
		tampered = append(tampered[:len(tampered)-1], ' ', '}')
		received, err := f.builder.ReceiveNodeMessage(tampered)
		require.NoError(t, err)
		_, err = received.ValidateNodeMessage(ctx, signature)
		require.Error(t, err)
		require.Equal(t, scpi.StatusHubConnectionProblem, scpi.AsError(err).Status)
	})
}

func TestResponseWithPaginationHeaders(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total-Count", "100")
		w.Header().Set("X-Limit", "25")
		w.Header().Set("Link", `<`+"http://"+r.Host+`/SENDER/locations?offset=25>; rel="next"`)
		writeJSON(t, w, successBody(`[]`))
	}))
	defer platform.Close()

	f.connectPlatform(t, cpo, platform.URL)
	f.connectPlatform(t, emsp, platform.URL)

	handler, err := f.builder.Receive(relayRequest(emsp, cpo)).ValidateSender(ctx)
	require.NoError(t, err)
	forwarded, err := handler.Forward(ctx, false)
	require.NoError(t, err)
	result, err := forwarded.ResponseWithPaginationHeaders(ctx)
	require.NoError(t, err)

	require.Equal(t, "100", result.Headers["X-Total-Count"])
	require.Equal(t, "25", result.Headers["X-Limit"])

	next := scpi.ExtractNextLink(result.Headers["Link"])
	require.Equal(t, relayNodeURL+"/scpi/sender/2.2/locations/page/1", next)

	// the stored page resource resolves to the platform's real next page
	resource, err := f.router.ProxyResource(ctx, "1", emsp, cpo)
	require.NoError(t, err)
	require.Contains(t, resource.Resource, "offset=25")
}

func TestPageProxyIsSingleUse(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, successBody(`[]`))
	}))
	defer platform.Close()

	f.connectPlatform(t, cpo, platform.URL)
	f.connectPlatform(t, emsp, platform.URL)

	uid, err := f.router.SaveProxyResource(ctx, platform.URL+"/page2", emsp, cpo, "")
	require.NoError(t, err)

	request := relayRequest(emsp, cpo)
	request.URLPath = uid

	handler, err := f.builder.Receive(request).ValidateSender(ctx)
	require.NoError(t, err)
	forwarded, err := handler.Forward(ctx, true)
	require.NoError(t, err)
	_, err = forwarded.ResponseWithPaginationHeaders(ctx)
	require.NoError(t, err)

	// consumed: a second dereference must fail
	_, err = f.router.ProxyResource(ctx, uid, emsp, cpo)
	require.Error(t, err)
}

func TestResponseWithLocationHeader(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/RECEIVER/chargingprofiles/ACTIVE_CHARGING_PROFILE/123")
		writeJSON(t, w, successBody(`{}`))
	}))
	defer platform.Close()

	f.connectPlatform(t, cpo, platform.URL)
	f.connectPlatform(t, emsp, platform.URL)

	request := relayRequest(emsp, cpo)
	request.Module = scpi.ModuleCdrs
	request.InterfaceRole = scpi.InterfaceReceiver
	request.Method = "POST"
	request.Body = json.RawMessage(`{"id":"cdr-1"}`)

	handler, err := f.builder.Receive(request).ValidateSender(ctx)
	require.NoError(t, err)
	forwarded, err := handler.Forward(ctx, false)
	require.NoError(t, err)
	result, err := forwarded.ResponseWithLocationHeader(ctx, "/scpi/receiver/2.2/cdrs")
	require.NoError(t, err)

	require.Equal(t, relayNodeURL+"/scpi/receiver/2.2/cdrs/1", result.Headers["Location"])

	resource, err := f.router.ProxyResource(ctx, "1", emsp, cpo)
	require.NoError(t, err)
	require.Contains(t, resource.Resource, "/RECEIVER/chargingprofiles/")
}

func TestForwardModifiableRewritesResponseURL(t *testing.T) {
	f := newRelayFixture(t, false)
	ctx := context.Background()

	type commandBody struct {
		ResponseURL string `json:"response_url"`
		Token       any    `json:"token,omitempty"`
	}

	var delivered commandBody
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&delivered))
		writeJSON(t, w, successBody(`{"result":"ACCEPTED"}`))
	}))
	defer platform.Close()

	f.connectPlatform(t, cpo, platform.URL)
	f.connectPlatform(t, emsp, platform.URL)

	originalURL := "https://emsp.example.com/commands/START_SESSION/callback-1"
	request := relayRequest(emsp, cpo)
	request.Module = scpi.ModuleCommands
	request.InterfaceRole = scpi.InterfaceReceiver
	request.Method = "POST"
	request.URLPath = "START_SESSION"
	request.Body = json.RawMessage(`{"response_url":"` + originalURL + `"}`)

	handler, err := f.builder.Receive(request).ValidateSender(ctx)
	require.NoError(t, err)
	forwarded, err := handler.ForwardModifiable(ctx, originalURL, func(newResponseURL string) *scpi.Request {
		modified := *request
		body, err := json.Marshal(commandBody{ResponseURL: newResponseURL})
		require.NoError(t, err)
		modified.Body = body
		return &modified
	})
	require.NoError(t, err)
	result, err := forwarded.Response(ctx)
	require.NoError(t, err)
	require.Equal(t, scpi.StatusSuccess, result.Body.StatusCode)

	// the platform saw a callback URL on this node
	require.Equal(t, relayNodeURL+"/scpi/sender/2.2/commands/START_SESSION/1", delivered.ResponseURL)

	// the async result leg (cpo -> emsp) can dereference the original
	resource, err := f.router.ProxyResource(ctx, "1", cpo, emsp)
	require.NoError(t, err)
	require.Equal(t, originalURL, resource.Resource)
}

// signTestRequest signs a request the way a sending party's client library
// would.
func signTestRequest(t *testing.T, request *scpi.Request, keyHex string) {
	t.Helper()
	sig := &notary.Signature{}
	require.NoError(t, sig.Sign(requestSignedValues(request), keyHex))
	serialized, err := sig.Serialize()
	require.NoError(t, err)
	request.Headers.Signature = serialized
}

func signTestResponse(t *testing.T, body *scpi.Response, headers map[string]string, keyHex string) {
	t.Helper()
	sig := &notary.Signature{}
	require.NoError(t, sig.Sign(responseSignedValues(*body, headers), keyHex))
	serialized, err := sig.Serialize()
	require.NoError(t, err)
	body.Signature = serialized
}

func TestSignaturesRequired(t *testing.T) {
	f := newRelayFixture(t, true)
	ctx := context.Background()

	partyKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	partyKeyHex := hex.EncodeToString(crypto.FromECDSA(partyKey))

	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := successBody(`[]`)
		signTestResponse(t, &body, nil, partyKeyHex)
		writeJSON(t, w, body)
	}))
	defer platform.Close()

	f.connectPlatform(t, cpo, platform.URL)
	f.connectPlatform(t, emsp, platform.URL)

	// both parties sign with the same test key; register it as their wallet
	for _, role := range []scpi.BasicRole{cpo, emsp} {
		f.registry.SetParty(role.Country, role.ID, registry.NodeRecord{
			Operator: f.wallet.Address(),
			Domain:   relayNodeURL,
		}, registry.PartyDetails{Address: crypto.PubkeyToAddress(partyKey.PublicKey)})
	}

	t.Run("missing request signature rejected", func(t *testing.T) {
		handler, err := f.builder.Receive(relayRequest(emsp, cpo)).ValidateSender(ctx)
		require.NoError(t, err)
		_, err = handler.Forward(ctx, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "Missing SCN Signature")
	})

	t.Run("valid signatures accepted end to end", func(t *testing.T) {
		request := relayRequest(emsp, cpo)
		signTestRequest(t, request, partyKeyHex)

		handler, err := f.builder.Receive(request).ValidateSender(ctx)
		require.NoError(t, err)
		forwarded, err := handler.Forward(ctx, false)
		require.NoError(t, err)
		result, err := forwarded.Response(ctx)
		require.NoError(t, err)
		require.Equal(t, scpi.StatusSuccess, result.Body.StatusCode)
	})

	t.Run("wrong signatory rejected", func(t *testing.T) {
		strangerKey, err := crypto.GenerateKey()
		require.NoError(t, err)

		request := relayRequest(emsp, cpo)
		signTestRequest(t, request, hex.EncodeToString(crypto.FromECDSA(strangerKey)))

		handler, err := f.builder.Receive(request).ValidateSender(ctx)
		require.NoError(t, err)
		_, err = handler.Forward(ctx, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "differs from expected signatory")
	})
}

func TestResponseSignatureFailureIsServerError(t *testing.T) {
	f := newRelayFixture(t, true)
	ctx := context.Background()

	partyKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	partyKeyHex := hex.EncodeToString(crypto.FromECDSA(partyKey))

	// the platform responds without any signature
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, successBody(`[]`))
	}))
	defer platform.Close()

	f.connectPlatform(t, cpo, platform.URL)
	f.connectPlatform(t, emsp, platform.URL)
	for _, role := range []scpi.BasicRole{cpo, emsp} {
		f.registry.SetParty(role.Country, role.ID, registry.NodeRecord{
			Operator: f.wallet.Address(),
			Domain:   relayNodeURL,
		}, registry.PartyDetails{Address: crypto.PubkeyToAddress(partyKey.PublicKey)})
	}

	request := relayRequest(emsp, cpo)
	signTestRequest(t, request, partyKeyHex)

	handler, err := f.builder.Receive(request).ValidateSender(ctx)
	require.NoError(t, err)
	forwarded, err := handler.Forward(ctx, false)
	require.NoError(t, err)
	_, err = forwarded.Response(ctx)
	require.Error(t, err)

	// the third party failed, but towards the caller this is our problem
	scErr := scpi.AsError(err)
	require.Equal(t, scpi.StatusServerError, scErr.Status)
	require.Contains(t, scErr.Message, "Unable to verify response signature")
}

func TestPaginationLinkRewriteSignsChain(t *testing.T) {
	f := newRelayFixture(t, true)
	ctx := context.Background()

	partyKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	partyKeyHex := hex.EncodeToString(crypto.FromECDSA(partyKey))

	originalLink := `<https://cpo-platform.example.com/locations?offset=25>; rel="next"`
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := map[string]string{"X-Total-Count": "50", "X-Limit": "25", "Link": originalLink}
		body := successBody(`[]`)
		signTestResponse(t, &body, headers, partyKeyHex)
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		writeJSON(t, w, body)
	}))
	defer platform.Close()

	f.connectPlatform(t, cpo, platform.URL)
	f.connectPlatform(t, emsp, platform.URL)
	for _, role := range []scpi.BasicRole{cpo, emsp} {
		f.registry.SetParty(role.Country, role.ID, registry.NodeRecord{
			Operator: f.wallet.Address(),
			Domain:   relayNodeURL,
		}, registry.PartyDetails{Address: crypto.PubkeyToAddress(partyKey.PublicKey)})
	}

	request := relayRequest(emsp, cpo)
	signTestRequest(t, request, partyKeyHex)

	handler, err := f.builder.Receive(request).ValidateSender(ctx)
	require.NoError(t, err)
	forwarded, err := handler.Forward(ctx, false)
	require.NoError(t, err)
	result, err := forwarded.ResponseWithPaginationHeaders(ctx)
	require.NoError(t, err)

	require.NotEmpty(t, result.Body.Signature)
	require.NotEqual(t, originalLink, result.Headers["Link"])

	// outermost level: signed by this node over the rewritten link
	sig, err := notary.Deserialize(result.Body.Signature)
	require.NoError(t, err)
	verification := sig.Verify(responseSignedValues(result.Body, result.Headers))
	require.NoError(t, verification.Err)
	require.True(t, verification.Valid)
	require.Equal(t, f.wallet.Address(), common.HexToAddress(verification.Signatory))

	// stashed level keeps the platform's signature over the original link
	require.Len(t, sig.Rewrites, 1)
	require.Equal(t, originalLink, sig.Rewrites[0].RewrittenFields["$['headers']['link']"])
}
