package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Smart-Charging/scn-node/routing"
	"github.com/Smart-Charging/scn-node/scpi"
)

// PlatformResponse is the raw result of a forwarded call: the downstream
// transport status, its headers, and the decoded protocol response.
type PlatformResponse struct {
	StatusCode int
	Headers    http.Header
	Body       scpi.Response
}

// OK reports whether both the transport and the protocol accepted the
// request.
func (r *PlatformResponse) OK() bool {
	return r.StatusCode == http.StatusOK && r.Body.StatusCode == scpi.StatusSuccess
}

// Client makes outbound HTTP calls to connected platforms and remote nodes.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client with the given per-request timeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SendRequest delivers a request to a platform endpoint, using the method,
// query parameters and body of the given envelope.
func (c *Client) SendRequest(ctx context.Context, targetURL string, headers scpi.Headers, request *scpi.Request) (*PlatformResponse, error) {
	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}

	req, err := http.NewRequestWithContext(ctx, request.Method, targetURL, body)
	if err != nil {
		return nil, scpi.ErrClientGeneric("Could not build forwarded request: %v", err)
	}

	if len(request.Params) > 0 {
		query := url.Values{}
		for k, v := range request.Params {
			query.Set(k, v)
		}
		req.URL.RawQuery = query.Encode()
	}

	for k, v := range headers.Map() {
		req.Header.Set(k, v)
	}
	if len(request.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

// PostNodeMessage forwards a serialized envelope to another node's message
// endpoint.
func (c *Client) PostNodeMessage(ctx context.Context, message *routing.NodeMessage) (*PlatformResponse, error) {
	target := scpi.URLJoin(message.URL, "/scn/message")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(message.Body))
	if err != nil {
		return nil, scpi.ErrClientGeneric("Could not build node message: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", message.RequestID)
	req.Header.Set("SCN-Signature", message.Signature)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*PlatformResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(req.URL.String(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(req.URL.String(), err)
	}

	var body scpi.Response
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, scpi.ErrServerGeneric("Could not parse JSON response of forwarded SCPI request: %v", err)
	}

	return &PlatformResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// transportError classifies a failed outbound call: timeouts are reported
// distinctly from unreachable receivers.
func (c *Client) transportError(target string, err error) error {
	c.logger.Warn("forwarded request failed", zap.String("url", target), zap.Error(err))

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return scpi.ErrRequestTimeout("Request to %s timed out", target)
	}
	return scpi.ErrConnectionProblem("Could not connect to %s: %v", target, err)
}

// GetVersions fetches a platform's supported protocol versions during the
// registration handshake.
func (c *Client) GetVersions(ctx context.Context, versionsURL, token string) ([]scpi.Version, error) {
	var versions []scpi.Version
	if err := c.getJSON(ctx, versionsURL, token, &versions); err != nil {
		return nil, scpi.ErrUnusableAPI("Failed to request from %s: %v", versionsURL, err)
	}
	return versions, nil
}

// GetVersionDetail fetches the endpoint catalog behind one version entry.
func (c *Client) GetVersionDetail(ctx context.Context, detailURL, token string) (*scpi.VersionDetail, error) {
	var detail scpi.VersionDetail
	if err := c.getJSON(ctx, detailURL, token, &detail); err != nil {
		return nil, scpi.ErrUnusableAPI("Failed to request v2.2 details from %s: %v", detailURL, err)
	}
	return &detail, nil
}

func (c *Client) getJSON(ctx context.Context, target, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var body scpi.Response
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK || !body.OK() {
		return fmt.Errorf("returned HTTP status code %d; SCPI status code %d - %s",
			resp.StatusCode, body.StatusCode, body.StatusMessage)
	}
	return json.Unmarshal(body.Data, out)
}
