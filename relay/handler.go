package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Smart-Charging/scn-node/notary"
	"github.com/Smart-Charging/scn-node/routing"
	"github.com/Smart-Charging/scn-node/scpi"
	"github.com/Smart-Charging/scn-node/wallet"
)

// Config carries the node identity and signing policy the relay needs.
type Config struct {
	// NodeURL is this node's public base URL, used when rewriting proxied
	// links and callback URLs.
	NodeURL string
	// PrivateKey signs rewritten message signatures on the node's behalf.
	PrivateKey string
	// Signatures requires party-level signatures on every message this
	// node relays, regardless of per-platform rules.
	Signatures bool
}

// Builder creates relay handlers bound to the node's routing core and
// outbound client.
type Builder struct {
	router *routing.Router
	client *Client
	wallet *wallet.Wallet
	config Config
	logger *zap.Logger
}

// NewBuilder wires a Builder.
func NewBuilder(router *routing.Router, client *Client, w *wallet.Wallet, config Config, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{router: router, client: client, wallet: w, config: config, logger: logger}
}

// Receive starts handling a request that arrived on a module endpoint from
// a connected platform.
func (b *Builder) Receive(request *scpi.Request) *Received {
	return &Received{b: b, request: request}
}

// ReceiveNodeMessage starts handling an envelope posted by another node.
// The raw bytes are kept so the node-level signature can be verified over
// exactly what was signed.
func (b *Builder) ReceiveNodeMessage(body []byte) (*Received, error) {
	var request scpi.Request
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, scpi.ErrClientGeneric("Could not parse node message: %v", err)
	}
	return &Received{b: b, request: &request, raw: body}, nil
}

// Received is a request whose sender has not been authenticated yet.
type Received struct {
	b       *Builder
	request *scpi.Request
	raw     []byte
}

// ValidateSender authenticates a locally connected platform: the token must
// belong to a registered platform and the claimed sender role must live on
// it.
func (r *Received) ValidateSender(ctx context.Context) (*Validated, error) {
	err := r.b.router.ValidateSenderRole(ctx, r.request.Headers.Authorization, r.request.Headers.Sender)
	if err != nil {
		return nil, err
	}
	return &Validated{b: r.b, request: r.request, knownSender: true}, nil
}

// ValidateNodeMessage authenticates a message from another node: the sender
// must be registered in the directory, the receiver must be connected here,
// and the envelope must carry a valid signature from the sender's node
// operator.
func (r *Received) ValidateNodeMessage(ctx context.Context, signature string) (*Validated, error) {
	registered, err := r.b.router.IsRegisteredOnNetwork(ctx, r.request.Headers.Sender)
	if err != nil {
		return nil, scpi.ErrConnectionProblem("Registry lookup for %s failed: %v", r.request.Headers.Sender, err)
	}
	if !registered {
		return nil, scpi.ErrUnknownReceiver("Sending party not registered on Smart Charging Network")
	}

	known, err := r.b.router.IsRoleKnown(ctx, r.request.Headers.Receiver)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, scpi.ErrUnknownReceiver("Recipient unknown to SCN Node entered in Registry")
	}

	message := r.raw
	if message == nil {
		message, err = json.Marshal(r.request)
		if err != nil {
			return nil, fmt.Errorf("serializing node message: %w", err)
		}
	}
	if err := r.b.wallet.Verify(ctx, string(message), signature, r.request.Headers.Sender); err != nil {
		return nil, err
	}

	return &Validated{b: r.b, request: r.request, knownSender: false}, nil
}

// Validated is an authenticated request that has not been forwarded yet.
// knownSender distinguishes requests from directly connected platforms from
// those relayed by another node.
type Validated struct {
	b           *Builder
	request     *scpi.Request
	knownSender bool
}

// Forward delivers the request to its receiver, local or remote. proxied
// marks requests whose path holds a uid for a previously stored proxy
// resource.
func (v *Validated) Forward(ctx context.Context, proxied bool) (*Forwarded, error) {
	sender := v.request.Headers.Sender
	receiver := v.request.Headers.Receiver

	locality, err := v.b.router.ValidateReceiver(ctx, receiver)
	if err != nil {
		return nil, err
	}

	var (
		sig      *notary.Signature
		response *PlatformResponse
	)

	switch locality {
	case routing.Local:
		if err := v.b.router.ValidateWhitelisted(ctx, sender, receiver, v.request.Module); err != nil {
			return nil, err
		}
		sig, err = v.b.verifySignature(ctx, v.request, v.request.Headers.Signature,
			requestSignedValues(v.request), sender, &receiver)
		if err != nil {
			return nil, err
		}

		url, headers, err := v.b.router.PrepareLocalRequest(ctx, v.request, proxied)
		if err != nil {
			return nil, err
		}
		response, err = v.b.client.SendRequest(ctx, url, headers, v.request)
		if err != nil {
			return nil, err
		}

	case routing.Remote:
		sig, err = v.b.verifySignature(ctx, v.request, v.request.Headers.Signature,
			requestSignedValues(v.request), sender, nil)
		if err != nil {
			return nil, err
		}

		message, err := v.b.router.PrepareRemoteRequest(ctx, v.request, proxied, nil)
		if err != nil {
			return nil, err
		}
		response, err = v.b.client.PostNodeMessage(ctx, message)
		if err != nil {
			return nil, err
		}
	}

	return &Forwarded{b: v.b, request: v.request, knownSender: v.knownSender, notary: sig, response: response}, nil
}

// ForwardModifiable delivers a commands request whose response_url must be
// replaced with a callback this node can proxy. responseURL is the original
// value; modify rebuilds the request body around the substitute URL.
func (v *Validated) ForwardModifiable(ctx context.Context, responseURL string, modify func(newResponseURL string) *scpi.Request) (*Forwarded, error) {
	sender := v.request.Headers.Sender
	receiver := v.request.Headers.Receiver

	proxyPath := "/scpi/sender/2.2/commands/" + v.request.URLPath
	rewriteFields := map[string]any{"$['body']['response_url']": responseURL}

	locality, err := v.b.router.ValidateReceiver(ctx, receiver)
	if err != nil {
		return nil, err
	}

	var (
		sig      *notary.Signature
		response *PlatformResponse
	)

	switch locality {
	case routing.Local:
		if err := v.b.router.ValidateWhitelisted(ctx, sender, receiver, v.request.Module); err != nil {
			return nil, err
		}
		sig, err = v.b.verifySignature(ctx, v.request, v.request.Headers.Signature,
			requestSignedValues(v.request), sender, &receiver)
		if err != nil {
			return nil, err
		}

		// the callback flows from receiver back to sender, so the
		// stored resource is keyed in that direction
		resourceID, err := v.b.router.SaveProxyResource(ctx, responseURL, receiver, sender, "")
		if err != nil {
			return nil, err
		}

		modified := modify(scpi.URLJoin(v.b.config.NodeURL, proxyPath, resourceID))
		modified.Headers.Signature, err = v.b.rewriteAndSign(ctx, v.request, sig,
			requestSignedValues(modified), rewriteFields)
		if err != nil {
			return nil, err
		}

		url, headers, err := v.b.router.PrepareLocalRequest(ctx, v.request, false)
		if err != nil {
			return nil, err
		}
		response, err = v.b.client.SendRequest(ctx, url, headers, modified)
		if err != nil {
			return nil, err
		}

	case routing.Remote:
		sig, err = v.b.verifySignature(ctx, v.request, v.request.Headers.Signature,
			requestSignedValues(v.request), sender, nil)
		if err != nil {
			return nil, err
		}

		message, err := v.b.router.PrepareRemoteRequest(ctx, v.request, false, func(nodeURL string) (*scpi.Request, error) {
			// the uid lets the far node resolve the original
			// response_url we keep in the envelope
			proxyUID := uuid.NewString()
			modified := modify(scpi.URLJoin(nodeURL, proxyPath, proxyUID))

			signature, err := v.b.rewriteAndSign(ctx, v.request, sig,
				requestSignedValues(modified), rewriteFields)
			if err != nil {
				return nil, err
			}

			out := *modified
			out.Headers.Signature = signature
			out.ProxyUID = proxyUID
			out.ProxyResource = responseURL
			return &out, nil
		})
		if err != nil {
			return nil, err
		}
		response, err = v.b.client.PostNodeMessage(ctx, message)
		if err != nil {
			return nil, err
		}
	}

	return &Forwarded{b: v.b, request: v.request, knownSender: v.knownSender, notary: sig, response: response}, nil
}

// Forwarded holds the downstream response, ready to be shaped for the
// caller.
type Forwarded struct {
	b           *Builder
	request     *scpi.Request
	knownSender bool
	notary      *notary.Signature
	response    *PlatformResponse
}

// Result is what goes back to the caller: transport status, headers to set,
// and the protocol response body.
type Result struct {
	HTTPStatus int
	Headers    map[string]string
	Body       scpi.Response
}

// Response returns the downstream response with no headers of interest.
func (f *Forwarded) Response(ctx context.Context) (*Result, error) {
	if err := f.verifyResponse(ctx); err != nil {
		return nil, err
	}
	return f.plainResult(), nil
}

// ResponseWithPaginationHeaders returns the downstream response with its
// pagination headers, replacing any next-page link with a single-use proxy
// on this node. The proxy resource that served this page, if any, is
// consumed.
func (f *Forwarded) ResponseWithPaginationHeaders(ctx context.Context) (*Result, error) {
	if err := f.verifyResponse(ctx); err != nil {
		return nil, err
	}
	if !f.response.OK() {
		return f.plainResult(), nil
	}

	sender := f.request.Headers.Sender
	receiver := f.request.Headers.Receiver

	if f.request.URLPath != "" {
		// single use: the page uid that got us here is now spent
		if err := f.b.router.DeleteProxyResource(ctx, f.request.URLPath, sender, receiver); err != nil {
			f.b.logger.Warn("could not delete used page proxy",
				zap.String("uid", f.request.URLPath), zap.Error(err))
		}
	}

	headers := map[string]string{}
	copyHeader(headers, f.response.Headers, "X-Total-Count")
	copyHeader(headers, f.response.Headers, "X-Limit")
	copyHeader(headers, f.response.Headers, "SCN-Signature")

	if link := f.response.Headers.Get("Link"); link != "" {
		if next := scpi.ExtractNextLink(link); next != "" {
			id, err := f.b.router.SaveProxyResource(ctx, next, sender, receiver, "")
			if err != nil {
				return nil, err
			}

			pagePath := fmt.Sprintf("/scpi/%s/2.2/%s/page",
				strings.ToLower(string(f.request.InterfaceRole)), f.request.Module)
			headers["Link"] = fmt.Sprintf("<%s>; rel=\"next\"", scpi.URLJoin(f.b.config.NodeURL, pagePath, id))

			if err := f.rewriteResponseSignature(ctx, headers,
				map[string]any{"$['headers']['link']": link}); err != nil {
				return nil, err
			}
		}
	}

	return &Result{HTTPStatus: f.response.StatusCode, Headers: headers, Body: f.response.Body}, nil
}

// ResponseWithLocationHeader returns the downstream response, replacing a
// Location header pointing into the receiver's system with a proxy under
// proxyPath on this node.
func (f *Forwarded) ResponseWithLocationHeader(ctx context.Context, proxyPath string) (*Result, error) {
	if err := f.verifyResponse(ctx); err != nil {
		return nil, err
	}
	if !f.response.OK() {
		return f.plainResult(), nil
	}

	headers := map[string]string{}
	if location := f.response.Headers.Get("Location"); location != "" {
		id, err := f.b.router.SaveProxyResource(ctx, location,
			f.request.Headers.Sender, f.request.Headers.Receiver, "")
		if err != nil {
			return nil, err
		}
		headers["Location"] = scpi.URLJoin(f.b.config.NodeURL, proxyPath, id)

		if err := f.rewriteResponseSignature(ctx, headers,
			map[string]any{"$['headers']['location']": location}); err != nil {
			return nil, err
		}
	}

	return &Result{HTTPStatus: f.response.StatusCode, Headers: headers, Body: f.response.Body}, nil
}

// ResponseWithAllHeaders passes through every header another node may need
// to continue proxying. Used by the inter-node message endpoint.
func (f *Forwarded) ResponseWithAllHeaders(ctx context.Context) (*Result, error) {
	if err := f.verifyResponse(ctx); err != nil {
		return nil, err
	}
	if !f.response.OK() {
		return f.plainResult(), nil
	}

	headers := map[string]string{}
	copyHeader(headers, f.response.Headers, "Location")
	copyHeader(headers, f.response.Headers, "Link")
	copyHeader(headers, f.response.Headers, "X-Total-Count")
	copyHeader(headers, f.response.Headers, "X-Limit")

	return &Result{HTTPStatus: f.response.StatusCode, Headers: headers, Body: f.response.Body}, nil
}

func (f *Forwarded) plainResult() *Result {
	return &Result{HTTPStatus: f.response.StatusCode, Headers: map[string]string{}, Body: f.response.Body}
}

// verifyResponse checks the response's party-level signature against the
// receiver's registered addresses. A failed check is the node's problem to
// report, not the caller's, so it surfaces as a server-class error.
func (f *Forwarded) verifyResponse(ctx context.Context) error {
	var recipient *scpi.BasicRole
	if f.knownSender {
		s := f.request.Headers.Sender
		recipient = &s
	}

	values := responseSignedValues(f.response.Body, map[string]string{
		"X-Limit":       f.response.Headers.Get("X-Limit"),
		"X-Total-Count": f.response.Headers.Get("X-Total-Count"),
		"Link":          f.response.Headers.Get("Link"),
		"Location":      f.response.Headers.Get("Location"),
	})

	sig, err := f.b.verifySignature(ctx, f.request, f.response.Body.Signature,
		values, f.request.Headers.Receiver, recipient)
	if err != nil {
		if scErr := scpi.AsError(err); scErr.Status == scpi.StatusClientInvalidParams {
			return scpi.ErrServerGeneric("Unable to verify response signature: %s", scErr.Message)
		}
		return err
	}
	if sig != nil {
		f.notary = sig
	}
	return nil
}

// rewriteResponseSignature stashes the receiver's response signature and
// re-signs over the rewritten headers with the node key. No-op when signing
// is inactive for this exchange.
func (f *Forwarded) rewriteResponseSignature(ctx context.Context, headers map[string]string, rewriteFields map[string]any) error {
	sender := f.request.Headers.Sender
	active, err := f.b.signingActive(ctx, f.request, &sender)
	if err != nil || !active {
		return err
	}

	f.response.Body.Signature = ""
	signature, err := f.b.rewriteAndSign(ctx, f.request, f.notary,
		responseSignedValues(f.response.Body, headers), rewriteFields)
	if err != nil {
		return err
	}
	f.response.Body.Signature = signature
	return nil
}

// signingActive reports whether party-level signatures are required for
// this exchange: by node policy, by the presence of an inbound signature,
// or by the recipient platform's rules.
func (b *Builder) signingActive(ctx context.Context, request *scpi.Request, recipient *scpi.BasicRole) (bool, error) {
	active := b.config.Signatures || request.Headers.Signature != ""
	if !active && recipient != nil {
		rules, err := b.router.PlatformRules(ctx, *recipient)
		if err != nil {
			return false, err
		}
		active = rules.Signatures
	}
	return active, nil
}

// verifySignature validates a party-level signature chain when signing is
// active, returning the parsed signature for later rewriting. The recovered
// signatory must be the signer's registered wallet or its node operator.
func (b *Builder) verifySignature(ctx context.Context, request *scpi.Request, signature string, values notary.ValuesToSign, signer scpi.BasicRole, recipient *scpi.BasicRole) (*notary.Signature, error) {
	active, err := b.signingActive(ctx, request, recipient)
	if err != nil || !active {
		return nil, err
	}

	if signature == "" {
		return nil, scpi.ErrInvalidParams("Missing SCN Signature")
	}

	sig, err := notary.Deserialize(signature)
	if err != nil {
		return nil, scpi.ErrInvalidParams("Invalid signature: %v", err)
	}

	result := sig.Verify(values)
	if !result.Valid {
		return nil, scpi.ErrInvalidParams("Invalid signature: %v", result.Err)
	}

	party, err := b.router.PartyDetails(ctx, signer)
	if err != nil {
		return nil, scpi.ErrConnectionProblem("Registry lookup for %s failed: %v", signer, err)
	}

	signatory := common.HexToAddress(result.Signatory)
	if signatory != party.Address && signatory != party.Operator {
		return nil, scpi.ErrInvalidParams("Actual signatory %s differs from expected signatory %s (party) or %s (operator)",
			result.Signatory, party.Address.Hex(), party.Operator.Hex())
	}
	return sig, nil
}

// rewriteAndSign stashes the current signature level and re-signs the
// modified values with the node key. Returns an empty signature when
// signing is inactive.
func (b *Builder) rewriteAndSign(ctx context.Context, request *scpi.Request, sig *notary.Signature, values notary.ValuesToSign, rewriteFields map[string]any) (string, error) {
	active, err := b.signingActive(ctx, request, nil)
	if err != nil || !active {
		return "", err
	}
	if sig == nil {
		return "", scpi.ErrServerGeneric("No signature available to rewrite")
	}

	sig.Stash(rewriteFields)
	if err := sig.Sign(values, b.config.PrivateKey); err != nil {
		return "", scpi.ErrServerGeneric("Could not re-sign modified message: %v", err)
	}
	serialized, err := sig.Serialize()
	if err != nil {
		return "", scpi.ErrServerGeneric("Could not serialize rewritten signature: %v", err)
	}
	return serialized, nil
}

// requestSignedValues maps a request envelope onto the tuple its party-level
// signature covers.
func requestSignedValues(request *scpi.Request) notary.ValuesToSign {
	var body any
	if len(request.Body) > 0 {
		body = request.Body
	}
	return notary.ValuesToSign{
		Headers: notary.SignableHeaders{
			CorrelationID:   request.Headers.CorrelationID,
			FromCountryCode: request.Headers.Sender.Country,
			FromPartyID:     request.Headers.Sender.ID,
			ToCountryCode:   request.Headers.Receiver.Country,
			ToPartyID:       request.Headers.Receiver.ID,
		},
		Params: request.Params,
		Body:   body,
	}
}

// responseSignedValues maps a response and its outgoing headers onto the
// signed tuple. The signature field itself never participates.
func responseSignedValues(body scpi.Response, headers map[string]string) notary.ValuesToSign {
	body.Signature = ""
	return notary.ValuesToSign{
		Headers: notary.SignableHeaders{
			Limit:      headers["X-Limit"],
			TotalCount: headers["X-Total-Count"],
			Link:       headers["Link"],
			Location:   headers["Location"],
		},
		Body: body,
	}
}

func copyHeader(dst map[string]string, src http.Header, key string) {
	if value := src.Get(key); value != "" {
		dst[key] = value
	}
}
