package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/service"
)

type recordingRunner struct {
	mu   sync.Mutex
	seen []uuid.UUID
}

func (r *recordingRunner) RunAfterSubmit(_ context.Context, out service.SubmitOutcome) {
	r.mu.Lock()
	r.seen = append(r.seen, out.SessionID)
	r.mu.Unlock()
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestPostCommitWorker_DrainsOnShutdown(t *testing.T) {
	runner := &recordingRunner{}
	w := NewPostCommitWorker(runner, 8, zerolog.Nop())

	for i := 0; i < 5; i++ {
		w.RunAfterSubmit(context.Background(), service.SubmitOutcome{SessionID: uuid.New()})
	}
	if runner.count() != 0 {
		t.Fatal("hooks ran before the worker started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go w.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := w.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := runner.count(); got != 5 {
		t.Errorf("ran %d outcomes, want 5", got)
	}
}

func TestPostCommitWorker_InlineWhenFull(t *testing.T) {
	runner := &recordingRunner{}
	w := NewPostCommitWorker(runner, 1, zerolog.Nop())

	w.RunAfterSubmit(context.Background(), service.SubmitOutcome{SessionID: uuid.New()})
	if runner.count() != 0 {
		t.Fatal("first outcome should be queued")
	}
	w.RunAfterSubmit(context.Background(), service.SubmitOutcome{SessionID: uuid.New()})
	if runner.count() != 1 {
		t.Fatalf("ran %d, want the overflow outcome inline", runner.count())
	}
}

func TestPostCommitWorker_InlineAfterStop(t *testing.T) {
	runner := &recordingRunner{}
	w := NewPostCommitWorker(runner, 4, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Start(ctx)

	w.RunAfterSubmit(context.Background(), service.SubmitOutcome{SessionID: uuid.New()})
	if runner.count() != 1 {
		t.Errorf("ran %d, want 1 inline after stop", runner.count())
	}
}

func TestPostCommitWorker_ProcessesWhileRunning(t *testing.T) {
	runner := &recordingRunner{}
	w := NewPostCommitWorker(runner, 4, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	w.RunAfterSubmit(context.Background(), service.SubmitOutcome{SessionID: uuid.New()})

	deadline := time.Now().Add(2 * time.Second)
	for runner.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("queued outcome was not processed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
