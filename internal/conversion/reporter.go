package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thetimii/dashboard-sub001/internal/metrics"
	"github.com/Thetimii/dashboard-sub001/internal/model"
)

const providerName = "meta_capi"

type ReporterOptions struct {
	BaseURL     string
	APIVersion  string
	PixelID     string
	AccessToken string
	TimeoutMs   int
	RatePerSec  float64 // <= 0 disables pacing
	Burst       int
	Transport   http.RoundTripper
	Logger      *zap.Logger
}

// Reporter submits conversion events to the ad platform's server-side endpoint.
// One Report is exactly one outbound call: no retries and no local dedupe.
type Reporter struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	log      *zap.Logger
}

func NewReporter(o ReporterOptions) *Reporter {
	if o.BaseURL == "" {
		o.BaseURL = "https://graph.facebook.com"
	}

	if o.APIVersion == "" {
		o.APIVersion = "v19.0"
	}

	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 5000
	}

	tr := o.Transport
	if tr == nil {
		tr = otelhttp.NewTransport(http.DefaultTransport)
	}

	limit := rate.Inf
	if o.RatePerSec > 0 {
		limit = rate.Limit(o.RatePerSec)
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}

	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Reporter{
		token:   strings.TrimSpace(o.AccessToken),
		client:  &http.Client{Timeout: time.Duration(o.TimeoutMs) * time.Millisecond, Transport: tr},
		limiter: rate.NewLimiter(limit, o.Burst),
		log:     log.With(zap.String("component", "conversion_reporter")),
	}
	if pixel := strings.TrimSpace(o.PixelID); pixel != "" {
		r.endpoint = fmt.Sprintf("%s/%s/%s/events", strings.TrimRight(o.BaseURL, "/"), o.APIVersion, url.PathEscape(pixel))
	}
	return r
}

func (r *Reporter) Configured() bool { return r.endpoint != "" && r.token != "" }

type capiEvent struct {
	EventName      string               `json:"event_name"`
	EventTime      int64                `json:"event_time"`
	EventID        string               `json:"event_id"`
	ActionSource   string               `json:"action_source"`
	EventSourceURL string               `json:"event_source_url,omitempty"`
	UserData       model.HashedUserData `json:"user_data"`
	CustomData     map[string]any       `json:"custom_data,omitempty"`
}

type capiRequest struct {
	Data          []capiEvent `json:"data"`
	TestEventCode string      `json:"test_event_code,omitempty"`
}

type capiResponse struct {
	EventsReceived int    `json:"events_received"`
	FBTraceID      string `json:"fbtrace_id"`
	Error          *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// Report never returns an error: failures are reported in the result.
func (r *Reporter) Report(ctx context.Context, ev model.ConversionEvent) model.ProviderResult {
	res := r.report(ctx, ev)

	status := "sent"
	if !res.Succeeded {
		status = "failed"
		r.log.Warn("conversion report failed",
			zap.String("event", ev.EventName),
			zap.String("event_id", ev.EventID),
			zap.Bool("test", ev.TestEventCode != ""),
			zap.String("error", res.ErrorDetail),
		)
	}
	metrics.ConversionReports.WithLabelValues(ev.EventName, status).Inc()

	return res
}

func (r *Reporter) report(ctx context.Context, ev model.ConversionEvent) model.ProviderResult {
	if !r.Configured() {
		return model.Failed(providerName, &model.ConfigurationError{Component: "conversion", Reason: "pixel id or access token missing"})
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return model.Failed(providerName, &model.ProviderError{Provider: providerName, Err: err})
	}

	body, err := json.Marshal(capiRequest{
		Data: []capiEvent{{
			EventName:      ev.EventName,
			EventTime:      ev.EventTime.Unix(),
			EventID:        ev.EventID,
			ActionSource:   ev.ActionSource,
			EventSourceURL: ev.EventSourceURL,
			UserData:       ev.UserData,
			CustomData:     ev.CustomData,
		}},
		// presence is the only branch; the code's content is the platform's concern
		TestEventCode: ev.TestEventCode,
	})
	if err != nil {
		return model.Failed(providerName, fmt.Errorf("marshal conversion event: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"?access_token="+url.QueryEscape(r.token), bytes.NewReader(body))
	if err != nil {
		return model.Failed(providerName, &model.ProviderError{Provider: providerName, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Failed(providerName, &model.ProviderError{Provider: providerName, Err: redact(err, r.token)})
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out capiResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(raw))
		if out.Error != nil {
			msg = fmt.Sprintf("%s (type=%s code=%d)", out.Error.Message, out.Error.Type, out.Error.Code)
		}
		return model.Failed(providerName, &model.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("rejected: %s", msg),
		})
	}

	return model.Succeeded(providerName, out.FBTraceID)
}

// redact keeps the access token out of transport errors, which embed the URL.
func redact(err error, token string) error {
	msg := err.Error()
	if token == "" {
		return err
	}
	msg = strings.ReplaceAll(msg, url.QueryEscape(token), "REDACTED")
	msg = strings.ReplaceAll(msg, token, "REDACTED")
	return errors.New(msg)
}
