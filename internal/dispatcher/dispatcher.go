package dispatcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Thetimii/dashboard-sub001/internal/metrics"
	"github.com/Thetimii/dashboard-sub001/internal/model"
)

const chainName = "email"

// ErrDuplicateInFlight reports a send skipped because the same email is still
// being delivered by another attempt. It is a failure so the caller retries.
var ErrDuplicateInFlight = errors.New("duplicate email in flight")

type Options struct {
	OpsInbox       string        // recipient of internal notifications
	AttemptTimeout time.Duration // per provider attempt, default 5s
	Dedup          DedupGuard    // optional
	DedupTTL       time.Duration // how long a delivered key is remembered, default 24h
	PendingTTL     time.Duration // how long an unfinished claim blocks others, default 5m
	Logger         *zap.Logger
}

// Dispatcher sends one message through an ordered provider chain, stopping at the
// first success. Providers are never called concurrently for the same message.
type Dispatcher struct {
	providers []Provider
	opts      Options
	log       *zap.Logger
}

func NewDispatcher(provs []Provider, opts Options) *Dispatcher {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}

	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 24 * time.Hour
	}

	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 5 * time.Minute
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Dispatcher{providers: provs, opts: opts, log: log.With(zap.String("component", "email_dispatcher"))}
}

// Send never returns an error: every failure is reported in the result.
func (d *Dispatcher) Send(ctx context.Context, msg model.EmailMessage, audience model.Audience) model.ProviderResult {
	switch audience {
	case model.AudienceCustomer:
		if strings.TrimSpace(msg.Recipient) == "" {
			return model.Failed(chainName, &model.ValidationError{Field: "recipient", Reason: "customer-facing message without recipient"})
		}
	default:
		if d.opts.OpsInbox == "" {
			return model.Failed(chainName, &model.ConfigurationError{Component: "email", Reason: "operational inbox not set"})
		}
		msg.Recipient = d.opts.OpsInbox
	}

	if !d.anyConfigured() {
		return model.Failed(chainName, &model.ConfigurationError{Component: "email", Reason: "no providers configured"})
	}

	dedupKey := ""
	if d.opts.Dedup != nil && msg.DedupKey != "" {
		dedupKey = "email:" + audience.String() + ":" + msg.DedupKey
		state, err := d.opts.Dedup.Claim(ctx, dedupKey, d.opts.PendingTTL)
		switch {
		case err != nil:
			d.log.Warn("dedup claim failed, sending anyway", zap.String("key", dedupKey), zap.Error(err))
			dedupKey = ""
		case state == DedupSent:
			d.log.Info("duplicate email suppressed", zap.String("key", dedupKey))
			return model.Succeeded("dedup", "")
		case state == DedupInFlight:
			d.log.Info("duplicate email in flight", zap.String("key", dedupKey))
			return model.Failed("dedup", &model.ProviderError{Provider: "dedup", Err: ErrDuplicateInFlight})
		}
	}

	res := d.sendChain(ctx, msg)
	if dedupKey == "" {
		return res
	}

	guardCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if res.Succeeded {
		if err := d.opts.Dedup.Confirm(guardCtx, dedupKey, d.opts.DedupTTL); err != nil {
			d.log.Warn("dedup confirm failed", zap.String("key", dedupKey), zap.Error(err))
		}
		return res
	}

	// let a later retry of the same business event deliver
	if err := d.opts.Dedup.Release(guardCtx, dedupKey); err != nil {
		d.log.Warn("dedup release failed", zap.String("key", dedupKey), zap.Error(err))
	}
	return res
}

func (d *Dispatcher) sendChain(ctx context.Context, msg model.EmailMessage) model.ProviderResult {
	var (
		last     error
		lastName = chainName
	)

	for _, p := range d.providers {
		if !p.Configured() {
			metrics.EmailAttempts.WithLabelValues(p.Name(), "skipped").Inc()
			continue
		}

		if err := ctx.Err(); err != nil {
			last, lastName = &model.ProviderError{Provider: p.Name(), Err: err}, p.Name()
			break
		}

		if !p.Acquire() {
			metrics.EmailAttempts.WithLabelValues(p.Name(), "circuit_open").Inc()
			last, lastName = &model.ProviderError{Provider: p.Name(), Err: ErrCircuitOpen}, p.Name()
			continue
		}

		id, err := d.attempt(ctx, p, msg)
		if err == nil {
			metrics.EmailAttempts.WithLabelValues(p.Name(), "sent").Inc()
			return model.Succeeded(p.Name(), id)
		}

		metrics.EmailAttempts.WithLabelValues(p.Name(), "failed").Inc()
		d.log.Warn("email provider failed", zap.String("provider", p.Name()), zap.Error(err))
		last, lastName = err, p.Name()
	}

	if last == nil {
		last = errors.New("send email failed")
	}

	return model.Failed(lastName, last)
}

func (d *Dispatcher) attempt(ctx context.Context, p Provider, msg model.EmailMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
	defer cancel()

	id, err := p.SendEmail(ctx, msg)
	if err == nil {
		return id, nil
	}

	var pe *model.ProviderError
	if !errors.As(err, &pe) {
		err = &model.ProviderError{Provider: p.Name(), Err: err}
	}
	return "", err
}

func (d *Dispatcher) anyConfigured() bool {
	for _, p := range d.providers {
		if p.Configured() {
			return true
		}
	}
	return false
}

type ProviderStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Ready      bool   `json:"ready"`
}

// Status reports the configuration and breaker readiness of each provider, in chain order.
func (d *Dispatcher) Status() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(d.providers))
	for _, p := range d.providers {
		out = append(out, ProviderStatus{Name: p.Name(), Configured: p.Configured(), Ready: p.Ready()})
	}
	return out
}
