package router

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thetimii/dashboard-sub001/internal/metrics"
	"github.com/Thetimii/dashboard-sub001/internal/model"
	"github.com/Thetimii/dashboard-sub001/internal/util"
)

const (
	pathEmail      = "email"
	pathConversion = "conversion"
)

var ErrDeadlineExceeded = errors.New("dispatch deadline exceeded")

type Renderer interface {
	Render(ev model.LifecycleEvent) (model.EmailMessage, model.Audience, bool, error)
}

type EmailSender interface {
	Send(ctx context.Context, msg model.EmailMessage, audience model.Audience) model.ProviderResult
}

type ConversionBuilder interface {
	Build(ev model.LifecycleEvent) (model.ConversionEvent, bool, error)
}

type ConversionReporter interface {
	Report(ctx context.Context, ev model.ConversionEvent) model.ProviderResult
}

type Deps struct {
	Renderer Renderer
	Email    EmailSender
	Builder  ConversionBuilder
	Reporter ConversionReporter // nil disables conversion reporting
	Logger   *zap.Logger
}

type Options struct {
	DispatchTimeout time.Duration // default 15s
	Parallel        bool
}

// Router turns one lifecycle event into an email and a conversion report.
// The two paths never influence each other.
type Router struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

func New(deps Deps, opts Options) *Router {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 15 * time.Second
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Router{deps: deps, opts: opts, log: log.With(zap.String("component", "router"))}
}

// Dispatch validates ev and runs both sub-dispatches. The only returned error is a
// *model.ValidationError, in which case nothing was sent. Provider failures are
// reported in the outcome.
func (r *Router) Dispatch(ctx context.Context, ev model.LifecycleEvent) (model.DispatchOutcome, error) {
	out := model.DispatchOutcome{DispatchID: util.NewID(), Kind: ev.Kind}

	if err := ev.Validate(); err != nil {
		metrics.ValidationFailures.WithLabelValues(ev.Kind.String()).Inc()
		r.log.Info("event rejected", zap.String("dispatch_id", out.DispatchID), zap.String("kind", ev.Kind.String()), zap.Error(err))
		return out, err
	}

	start := time.Now()

	ctx, cancel := context.WithTimeoutCause(ctx, r.opts.DispatchTimeout, ErrDeadlineExceeded)
	defer cancel()

	if r.opts.Parallel {
		var g errgroup.Group
		g.Go(func() error {
			out.EmailResult = r.bounded(ctx, func(ctx context.Context) *model.ProviderResult { return r.email(ctx, ev) })
			return nil
		})
		g.Go(func() error {
			out.ConversionResult = r.bounded(ctx, func(ctx context.Context) *model.ProviderResult { return r.conversion(ctx, ev) })
			return nil
		})
		_ = g.Wait()
	} else {
		out.EmailResult = r.bounded(ctx, func(ctx context.Context) *model.ProviderResult { return r.email(ctx, ev) })
		out.ConversionResult = r.bounded(ctx, func(ctx context.Context) *model.ProviderResult { return r.conversion(ctx, ev) })
	}

	out.Aggregate()

	metrics.DispatchDuration.WithLabelValues(ev.Kind.String()).Observe(time.Since(start).Seconds())
	r.record(ev.Kind, pathEmail, out.EmailResult)
	r.record(ev.Kind, pathConversion, out.ConversionResult)

	fields := []zap.Field{
		zap.String("dispatch_id", out.DispatchID),
		zap.String("kind", ev.Kind.String()),
		zap.Bool("email_attempted", out.EmailResult != nil),
		zap.Bool("conversion_attempted", out.ConversionResult != nil),
		zap.Duration("took", time.Since(start)),
	}
	if out.OverallSucceeded {
		r.log.Info("event dispatched", fields...)
	} else {
		for _, res := range []*model.ProviderResult{out.EmailResult, out.ConversionResult} {
			if res != nil && !res.Succeeded {
				fields = append(fields, zap.String(res.ProviderName+"_error", res.ErrorDetail))
			}
		}
		r.log.Warn("event dispatched with failures", fields...)
	}

	return out, nil
}

// bounded runs fn and gives up when the dispatch deadline passes, so a provider
// that ignores its context cannot hold the caller.
func (r *Router) bounded(ctx context.Context, fn func(context.Context) *model.ProviderResult) *model.ProviderResult {
	done := make(chan *model.ProviderResult, 1)
	go func() { done <- fn(ctx) }()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		// prefer a result that raced the deadline
		select {
		case res := <-done:
			return res
		default:
		}
		res := model.Failed("router", context.Cause(ctx))
		return &res
	}
}

func (r *Router) email(ctx context.Context, ev model.LifecycleEvent) *model.ProviderResult {
	if r.deps.Renderer == nil || r.deps.Email == nil {
		return nil
	}

	msg, aud, ok, err := r.deps.Renderer.Render(ev)
	if !ok {
		return nil
	}
	if err != nil {
		res := model.Failed(pathEmail, err)
		return &res
	}

	res := r.deps.Email.Send(ctx, msg, aud)
	return &res
}

func (r *Router) conversion(ctx context.Context, ev model.LifecycleEvent) *model.ProviderResult {
	if r.deps.Reporter == nil || r.deps.Builder == nil {
		return nil
	}

	cev, ok, err := r.deps.Builder.Build(ev)
	if !ok {
		return nil
	}
	if err != nil {
		res := model.Failed(pathConversion, err)
		return &res
	}

	res := r.deps.Reporter.Report(ctx, cev)
	return &res
}

func (r *Router) record(kind model.EventKind, path string, res *model.ProviderResult) {
	status := "skipped"
	switch {
	case res == nil:
	case res.Succeeded:
		status = "sent"
	default:
		status = "failed"
	}
	metrics.DispatchTotal.WithLabelValues(kind.String(), path, status).Inc()
}
