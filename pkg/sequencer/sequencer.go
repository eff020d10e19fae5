package sequencer

import (
	"context"
	"errors"
	"fmt"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/internal/service/status"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

// ErrEmptySession is returned for calls without a session id.
var ErrEmptySession = errors.New("session id is required")

// Token identifies one run: the generation that was live when it was submitted.
type Token struct {
	SessionID  string `json:"sessionId"`
	Generation uint64 `json:"generation"`
}

// FoldFunc derives the next projection from the stored one.
type FoldFunc func(status.Projection) status.Projection

// Store keeps the generation counter and the projected status of each session.
type Store interface {
	// Advance increments the counter, resets the projection and returns the new generation.
	Advance(ctx context.Context, sessionID string) (uint64, error)
	// Current returns the live generation, zero for unknown sessions.
	Current(ctx context.Context, sessionID string) (uint64, error)
	// Commit applies fn only if token.Generation is still live. Check and
	// write happen atomically with respect to Advance.
	Commit(ctx context.Context, token Token, fn FoldFunc) (bool, error)
	// Load returns the projection of the live generation.
	Load(ctx context.Context, sessionID string) (status.Projection, error)
}

// Guard makes sure only the most recently initiated run of a session can
// change what the session shows.
type Guard struct {
	store  Store
	logger logger.Logger
}

func NewGuard(store Store, log logger.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: log.Named("sequencer"),
	}
}

// Begin bumps the generation for a new submission and returns its token.
func (g *Guard) Begin(ctx context.Context, sessionID string) (Token, error) {
	if sessionID == "" {
		return Token{}, ErrEmptySession
	}
	gen, err := g.store.Advance(ctx, sessionID)
	if err != nil {
		return Token{}, fmt.Errorf("failed to advance generation: %w", err)
	}
	g.logger.Debug("Run started",
		logger.String("sessionId", sessionID),
		logger.Uint64("generation", gen),
	)
	return Token{SessionID: sessionID, Generation: gen}, nil
}

// Invalidate bumps the generation without starting a run, e.g. when a file is
// selected or cleared. Runs in flight become inert.
func (g *Guard) Invalidate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	gen, err := g.store.Advance(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to advance generation: %w", err)
	}
	g.logger.Debug("Session invalidated",
		logger.String("sessionId", sessionID),
		logger.Uint64("generation", gen),
	)
	return nil
}

// IsCurrent reports whether token still owns its session.
func (g *Guard) IsCurrent(ctx context.Context, token Token) (bool, error) {
	gen, err := g.store.Current(ctx, token.SessionID)
	if err != nil {
		return false, fmt.Errorf("failed to read generation: %w", err)
	}
	return gen == token.Generation, nil
}

// Apply folds update into the session's projection if token is live.
func (g *Guard) Apply(ctx context.Context, token Token, update models.WorkflowUpdate) (bool, error) {
	applied, err := g.store.Commit(ctx, token, func(p status.Projection) status.Projection {
		return status.Apply(p, update)
	})
	if err != nil {
		return false, fmt.Errorf("failed to commit update: %w", err)
	}
	return applied, nil
}

// Consume applies updates in order until the first stale one. Everything after
// that is drained without being applied so the producer can finish.
func (g *Guard) Consume(ctx context.Context, token Token, updates <-chan models.WorkflowUpdate) (int, error) {
	applied := 0
	stopped := false
	var firstErr error

	for update := range updates {
		if stopped {
			continue
		}

		ok, err := g.Apply(ctx, token, update)
		if err != nil {
			g.logger.Error("Failed to apply workflow update",
				logger.String("sessionId", token.SessionID),
				logger.Uint64("generation", token.Generation),
				logger.Error(err),
			)
			firstErr = err
			stopped = true
			continue
		}
		if !ok {
			g.logger.Info("Dropping updates of superseded run",
				logger.String("sessionId", token.SessionID),
				logger.Uint64("generation", token.Generation),
				logger.String("step", string(update.CurrentStep.Name)),
			)
			stopped = true
			continue
		}
		applied++
	}

	return applied, firstErr
}

// Status returns the projection visible for the session.
func (g *Guard) Status(ctx context.Context, sessionID string) (status.Projection, error) {
	if sessionID == "" {
		return status.Projection{}, ErrEmptySession
	}
	p, err := g.store.Load(ctx, sessionID)
	if err != nil {
		return status.Projection{}, fmt.Errorf("failed to load status: %w", err)
	}
	return p, nil
}
