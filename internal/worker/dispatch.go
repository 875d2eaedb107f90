package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thetimii/dashboard-sub001/internal/kafka"
	"github.com/Thetimii/dashboard-sub001/internal/model"
)

type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev model.LifecycleEvent) (model.DispatchOutcome, error)
}

// LifecycleWorker:
// - fetches envelopes from Kafka,
// - dispatches each event through the router,
// - commits every message once handled (at-least-once; duplicates collapse
//   through the deterministic event id and the email dedup guard).
type LifecycleWorker struct {
	Source   Source
	Dispatch Dispatcher
	Log      *zap.Logger

	Workers    int           // processors
	FetchDelay time.Duration // backoff after a fetch error
}

func NewLifecycleWorker(src Source, d Dispatcher, log *zap.Logger) *LifecycleWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &LifecycleWorker{
		Source:     src,
		Dispatch:   d,
		Log:        log.With(zap.String("component", "worker")),
		Workers:    8,
		FetchDelay: 200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled and every in-flight message is handled.
func (w *LifecycleWorker) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 8
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Warn("kafka fetch failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.FetchDelay):
				}
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range msgCh {
				w.processOne(ctx, m)
			}
		}()
	}

	wg.Wait()
	return nil
}

func (w *LifecycleWorker) processOne(ctx context.Context, m kafka.Message) {
	if ctx.Err() != nil {
		return // left uncommitted for redelivery
	}

	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.ID == "" {
		w.commit(ctx, m) // poison: commit, skip
		if err != nil {
			w.Log.Warn("bad envelope json", zap.Int64("offset", m.Offset), zap.Error(err))
		} else {
			w.Log.Warn("envelope missing id", zap.Int64("offset", m.Offset))
		}
		return
	}

	ev := model.NewLifecycleEvent(env.Event.Kind, env.Event.OccurredAt, env.Event.Subject, env.Event.Payload).
		WithTestEventCode(env.Event.TestEventCode)

	// an in-flight dispatch finishes on shutdown; the router bounds its duration
	out, err := w.Dispatch.Dispatch(context.WithoutCancel(ctx), ev)
	switch {
	case err != nil:
		// invalid events never become valid on redelivery
		w.Log.Warn("envelope rejected", zap.String("envelope_id", env.ID), zap.Error(err))
	case !out.OverallSucceeded:
		w.Log.Warn("envelope dispatched with failures", zap.String("envelope_id", env.ID), zap.String("dispatch_id", out.DispatchID))
	}

	w.commit(ctx, m)
}

func (w *LifecycleWorker) commit(ctx context.Context, m kafka.Message) {
	// a shutdown must not lose the commit of a handled message
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.Source.Commit(ctx, m); err != nil {
		w.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}
