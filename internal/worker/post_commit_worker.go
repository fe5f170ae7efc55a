package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/service"
)

const (
	PostCommitQueueSize = 256
	PostCommitTimeout   = 2 * time.Minute
)

// PostCommitWorker runs submit side effects off the request path.
// It implements service.HookRunner.
type PostCommitWorker struct {
	hooks service.HookRunner
	queue chan service.SubmitOutcome
	log   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewPostCommitWorker wraps hooks with a bounded queue of size buffer.
func NewPostCommitWorker(hooks service.HookRunner, buffer int, log zerolog.Logger) *PostCommitWorker {
	if buffer <= 0 {
		buffer = PostCommitQueueSize
	}
	return &PostCommitWorker{
		hooks: hooks,
		queue: make(chan service.SubmitOutcome, buffer),
		log:   log.With().Str("component", "post_commit_worker").Logger(),
		done:  make(chan struct{}),
	}
}

// RunAfterSubmit queues out. When the queue is full or the worker is stopping,
// the hooks run inline on the caller's goroutine.
func (w *PostCommitWorker) RunAfterSubmit(ctx context.Context, out service.SubmitOutcome) {
	w.mu.RLock()
	if !w.closed {
		select {
		case w.queue <- out:
			w.mu.RUnlock()
			return
		default:
		}
	}
	w.mu.RUnlock()

	w.log.Warn().Str("session_id", out.SessionID.String()).Msg("queue unavailable, running hooks inline")
	w.hooks.RunAfterSubmit(context.WithoutCancel(ctx), out)
}

// Start processes the queue until ctx is cancelled, then drains what is left.
func (w *PostCommitWorker) Start(ctx context.Context) {
	defer close(w.done)
	w.log.Info().Msg("PostCommitWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Draining post-commit queue...")
			w.stop()
			for out := range w.queue {
				w.run(context.Background(), out)
			}
			w.log.Info().Msg("PostCommitWorker stopped")
			return
		case out := <-w.queue:
			w.run(ctx, out)
		}
	}
}

// Wait blocks until Start has drained the queue and returned.
func (w *PostCommitWorker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *PostCommitWorker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
}

func (w *PostCommitWorker) run(parent context.Context, out service.SubmitOutcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), PostCommitTimeout)
	defer cancel()
	w.hooks.RunAfterSubmit(ctx, out)
}
