package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// PostCommitHook is one side effect of a finalized session.
type PostCommitHook struct {
	Name string
	Run  func(ctx context.Context, out SubmitOutcome) error
}

// PostCommitHooks runs hooks sequentially. A failing or panicking hook is
// logged and never affects the others or the finalized session.
type PostCommitHooks struct {
	hooks []PostCommitHook
	log   zerolog.Logger
}

// NewPostCommitHooks creates a runner for hooks, executed in the given order.
func NewPostCommitHooks(log zerolog.Logger, hooks ...PostCommitHook) *PostCommitHooks {
	return &PostCommitHooks{
		hooks: hooks,
		log:   log.With().Str("component", "post_commit_hooks").Logger(),
	}
}

// RunAfterSubmit implements HookRunner.
func (h *PostCommitHooks) RunAfterSubmit(ctx context.Context, out SubmitOutcome) {
	for _, hook := range h.hooks {
		if err := h.runOne(ctx, hook, out); err != nil {
			h.log.Error().Err(err).
				Str("hook", hook.Name).
				Str("session_id", out.SessionID.String()).
				Str("user_id", out.UserID.String()).
				Msg("post-commit hook failed")
		}
	}
}

func (h *PostCommitHooks) runOne(ctx context.Context, hook PostCommitHook, out SubmitOutcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook.Run(ctx, out)
}

// CertificateHook raises the user's certification to the highest level earned so far.
func CertificateHook(certs *CertificationService) PostCommitHook {
	return PostCommitHook{
		Name: "certificate",
		Run: func(ctx context.Context, out SubmitOutcome) error {
			if out.HighestLevel == "" {
				return nil
			}
			_, err := certs.RaiseTo(ctx, out.UserID, out.HighestLevel)
			return err
		},
	}
}

// VideoAssemblyHook concatenates the session's recording chunks.
func VideoAssemblyHook(videos *VideoService) PostCommitHook {
	return PostCommitHook{
		Name: "video_assembly",
		Run: func(ctx context.Context, out SubmitOutcome) error {
			_, err := videos.Assemble(ctx, out.SessionID, out.VideoMime)
			return err
		},
	}
}
