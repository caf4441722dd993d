// Package module is the client SDK for invoking a marketplace module. It
// uploads an input stream with a payment claim attached and surfaces the
// per-request and cumulative charges the gateway reports.
package module

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dhali-org/dhalid/pkg/claim"
)

// DefaultBaseURL is the production gateway.
const DefaultBaseURL = "https://dhali-prod-run-dauenf0n.uc.gateway.dev"

// Response headers carrying the gateway's accounting.
const (
	HeaderPaymentClaim = "Payment-Claim"
	HeaderLatestCharge = "Dhali-Latest-Request-Charge"
	HeaderTotalCharge  = "Dhali-Total-Requests-Charge"
)

// Invocation errors.
var (
	// ErrPaymentRequired means the gateway rejected the payment claim.
	ErrPaymentRequired = errors.New("payment required")

	// ErrRateLimited means the channel has too many claims in flight.
	ErrRateLimited = errors.New("rate limited")
)

// RunResult is a successful module invocation.
type RunResult struct {
	// Output is the module's raw response body.
	Output []byte

	// LatestRequestCharge and TotalRequestsCharge echo the gateway's
	// accounting headers, verbatim decimal strings.
	LatestRequestCharge string
	TotalRequestsCharge string
}

// Module addresses one asset in the marketplace.
type Module struct {
	assetUUID string
	baseURL   string
	client    *http.Client
}

// Option customises a Module.
type Option func(*Module)

// WithBaseURL points the module at a different gateway.
func WithBaseURL(url string) Option {
	return func(m *Module) { m.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Module) { m.client = client }
}

// New builds a handle to the asset with the given uuid.
func New(assetUUID string, opts ...Option) *Module {
	m := &Module{
		assetUUID: assetUUID,
		baseURL:   DefaultBaseURL,
		client:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run sends input to the module, paying with the given claim. The claim
// travels in the Payment-Claim header in canonical form; the input is the
// multipart field "input".
func (m *Module) Run(ctx context.Context, input io.Reader, paymentClaim *claim.Claim) (*RunResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("input", "input")
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, input); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/run/", m.baseURL, m.assetUUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(HeaderPaymentClaim, paymentClaim.Canonical())

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke module %s: %w", m.assetUUID, err)
	}
	defer resp.Body.Close()

	output, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read module response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusPaymentRequired:
		return nil, fmt.Errorf("%w: %s", ErrPaymentRequired, strings.TrimSpace(string(output)))
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, strings.TrimSpace(string(output)))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("module %s returned status %s", m.assetUUID, resp.Status)
	}

	return &RunResult{
		Output:              output,
		LatestRequestCharge: resp.Header.Get(HeaderLatestCharge),
		TotalRequestsCharge: resp.Header.Get(HeaderTotalCharge),
	}, nil
}
