package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var (
	ErrInvalidPayment  = errors.New("payment reference unknown")
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// Confirmation is what the external payment service reports for a
// reference: whether the payment was approved and which buyer it belongs
// to. Raw keeps the provider's payload for audit trails.
type Confirmation struct {
	Reference string          `json:"reference"`
	Approved  bool            `json:"approved"`
	UserID    string          `json:"userId"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Verifier looks up a payment reference with the external payment service.
// ErrInvalidPayment when the reference is unknown there.
type Verifier interface {
	Verify(ctx context.Context, reference string) (Confirmation, error)
}

// Provider selects the verifier implementation. Providers are a closed set
// dispatched here rather than runtime-swappable strategy objects.
type Provider string

const (
	// ProviderGateway verifies against an external payment gateway over HTTP.
	ProviderGateway Provider = "gateway"
	// ProviderStatic verifies against an in-process table; for development
	// and tests.
	ProviderStatic Provider = "static"
)

// NewVerifier constructs the verifier for a provider.
func NewVerifier(provider Provider, gatewayURL string) (Verifier, error) {
	switch provider {
	case ProviderGateway:
		return NewGatewayVerifier(gatewayURL), nil
	case ProviderStatic:
		return NewStaticVerifier(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// GatewayVerifier asks an external payment gateway for the status of a
// reference: GET {base}/payments/{reference}.
type GatewayVerifier struct {
	baseURL string
	client  *http.Client
}

func NewGatewayVerifier(baseURL string) *GatewayVerifier {
	return &GatewayVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *GatewayVerifier) Verify(ctx context.Context, reference string) (Confirmation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/payments/"+reference, nil)
	if err != nil {
		return Confirmation{}, fmt.Errorf("build payment request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Confirmation{}, fmt.Errorf("query payment gateway: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Confirmation{}, fmt.Errorf("%w: %s", ErrInvalidPayment, reference)
	case resp.StatusCode != http.StatusOK:
		return Confirmation{}, fmt.Errorf("payment gateway returned %d", resp.StatusCode)
	}

	var body struct {
		Approved bool            `json:"approved"`
		UserID   string          `json:"userId"`
		Raw      json.RawMessage `json:"raw"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Confirmation{}, fmt.Errorf("decode payment response: %w", err)
	}

	return Confirmation{
		Reference: reference,
		Approved:  body.Approved,
		UserID:    body.UserID,
		Raw:       body.Raw,
	}, nil
}

// StaticVerifier holds confirmations in memory. Register payments up front;
// Verify answers from the table.
type StaticVerifier struct {
	mu    sync.RWMutex
	byRef map[string]Confirmation
}

func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{byRef: make(map[string]Confirmation)}
}

func (v *StaticVerifier) Register(c Confirmation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byRef[c.Reference] = c
}

func (v *StaticVerifier) Verify(_ context.Context, reference string) (Confirmation, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.byRef[reference]
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrInvalidPayment, reference)
	}
	return c, nil
}
