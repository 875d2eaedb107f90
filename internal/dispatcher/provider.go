package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Thetimii/dashboard-sub001/internal/model"
)

// Provider is one capability-equivalent email sender in the chain.
type Provider interface {
	Name() string
	// Configured is false when a credential is missing; such providers are skipped.
	Configured() bool
	Ready() bool
	Acquire() bool
	SendEmail(ctx context.Context, msg model.EmailMessage) (externalID string, err error)
}

var ErrCircuitOpen = errors.New("circuit open")

// HTTPOptions configures the shared HTTP plumbing of API based providers.
type HTTPOptions struct {
	Name          string
	BaseURL       string
	APIKey        string
	From          string
	TimeoutMs     int
	FailThreshold int
	OpenForMs     int
	Transport     http.RoundTripper // defaults to an otelhttp-instrumented transport
}

type httpSender struct {
	name    string
	baseURL string
	apiKey  string
	from    string
	client  *http.Client
	br      *MicroBreaker
}

func newHTTPSender(o HTTPOptions) httpSender {
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 5000
	}

	if o.FailThreshold <= 0 {
		o.FailThreshold = 3
	}

	if o.OpenForMs <= 0 {
		o.OpenForMs = 30000
	}

	tr := o.Transport
	if tr == nil {
		tr = otelhttp.NewTransport(http.DefaultTransport)
	}

	return httpSender{
		name:    o.Name,
		baseURL: strings.TrimRight(o.BaseURL, "/"),
		apiKey:  o.APIKey,
		from:    o.From,
		client:  &http.Client{Timeout: time.Duration(o.TimeoutMs) * time.Millisecond, Transport: tr},
		br:      NewMicroBreaker(o.FailThreshold, time.Duration(o.OpenForMs)*time.Millisecond),
	}
}

func (s *httpSender) Name() string     { return s.name }
func (s *httpSender) Configured() bool { return s.apiKey != "" && s.baseURL != "" }
func (s *httpSender) Ready() bool      { return s.br.Ready() }
func (s *httpSender) Acquire() bool    { return s.br.TryAcquire() }
func (s *httpSender) State() string    { return s.br.State() }

// record feeds the breaker and wraps failures as provider errors.
func (s *httpSender) record(err error) error {
	if err == nil {
		s.br.OnSuccess()
		return nil
	}
	s.br.OnFailure()

	var pe *model.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &model.ProviderError{Provider: s.name, Err: err}
}

// post sends a JSON body and returns the response headers and body for 2xx responses.
func (s *httpSender) post(ctx context.Context, path string, payload any, headers map[string]string) (http.Header, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}

	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if res.StatusCode/100 != 2 {
		return nil, nil, &model.ProviderError{
			Provider:   s.name,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("path=%s body=%s", path, truncate(string(body), 256)),
		}
	}

	return res.Header, body, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
