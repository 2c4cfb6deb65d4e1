package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/attrsync/internal/ir"
)

// Remote service defaults.
const (
	DefaultScheme   = "https"
	DefaultFQDN     = "qualysapi.qg3.apps.qualys.com"
	DefaultEndpoint = "/qps/rest/2.0/update/am/asset"
	DefaultClientID = "custom_attributes_connector_v1.0"

	// DefaultTimeout bounds one remote call.
	DefaultTimeout = 2 * time.Minute
)

// maxResponseBytes bounds how much of a response body is kept for the log.
const maxResponseBytes = 1 << 20

// Doer sends one HTTP request. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Target locates the remote update endpoint.
type Target struct {
	Scheme   string
	FQDN     string
	Endpoint string
}

// URL returns scheme://fqdn/endpoint, defaulting the scheme to https.
func (t Target) URL() string {
	scheme := t.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	return scheme + "://" + t.FQDN + t.Endpoint
}

// Credentials authenticate every call with HTTP basic auth.
type Credentials struct {
	Username string
	Password string
}

// BasicAuth returns the Authorization header value. It is a pure function
// of the two strings and is rebuilt for every call.
func (c Credentials) BasicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}

// String hides the password from logs.
func (c Credentials) String() string {
	return c.Username + ":***"
}

// NewHTTPClient returns the client used when no Doer is injected.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// UserAgent identifies the client and the batch being sent.
func UserAgent(clientID string, fn ir.APIFunction, batch ir.Batch) string {
	return fmt.Sprintf("%s function=%s group=%d batch=%d", clientID, fn, batch.GroupNumber, batch.BatchNumber)
}

// newRequest builds the POST for one batch.
func (e *Executor) newRequest(ctx context.Context, item Item) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Target.URL(), bytes.NewReader(item.Payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", e.cfg.Credentials.BasicAuth())
	req.Header.Set("X-Requested-With", e.cfg.ClientID)
	req.Header.Set("User-Agent", UserAgent(e.cfg.ClientID, e.cfg.APIFunction, item.Batch))
	return req, nil
}

// call performs one attempt and returns its outcome with the response text.
// The error is non-nil only when the request could not be built; nothing
// was sent and retrying cannot help.
func (e *Executor) call(ctx context.Context, item Item) (Outcome, string, error) {
	req, err := e.newRequest(ctx, item)
	if err != nil {
		return Outcome{}, "", err
	}

	start := e.now()
	resp, err := e.doer.Do(req)
	elapsed := e.now().Sub(start).Seconds()
	if err != nil {
		e.metrics.RecordCall(string(ir.StatusTransportError), elapsed)
		return Outcome{Err: err}, "", nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	e.metrics.RecordCall(string(ir.HTTPStatus(resp.StatusCode)), elapsed)
	if err != nil {
		return Outcome{StatusCode: resp.StatusCode}, fmt.Sprintf("read response body: %v", err), nil
	}
	return Outcome{StatusCode: resp.StatusCode}, string(body), nil
}
