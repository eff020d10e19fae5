package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/internal/service/status"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

// stores runs every test against both backends.
func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(time.Hour),
		"redis":  rs,
	}
}

func successUpdates() []models.WorkflowUpdate {
	last := models.CompletedUpdate(models.StepGenerateAas)
	last.Result = &models.WorkflowResult{RedirectURL: "/viewer/abc123"}
	return []models.WorkflowUpdate{
		models.ProcessingUpdate(models.StepUpload),
		models.CompletedUpdate(models.StepUpload),
		models.ProcessingUpdate(models.StepProcess),
		models.CompletedUpdate(models.StepProcess),
		models.ProcessingUpdate(models.StepGenerateAas),
		last,
	}
}

func feed(updates []models.WorkflowUpdate) <-chan models.WorkflowUpdate {
	ch := make(chan models.WorkflowUpdate, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	return ch
}

func TestGuardBeginAndApply(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGuard(store, logger.NewNopLogger())

			token, err := g.Begin(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, uint64(1), token.Generation)

			applied, err := g.Consume(ctx, token, feed(successUpdates()))
			require.NoError(t, err)
			assert.Equal(t, 6, applied)

			p, err := g.Status(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, p.Complete)
			assert.Equal(t, "/viewer/abc123", p.RedirectURL)
			assert.Equal(t, uint64(1), p.Generation)
			assert.Equal(t, "s1", p.SessionID)
		})
	}
}

func TestGuardStaleTokenIsInert(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGuard(store, logger.NewNopLogger())

			first, err := g.Begin(ctx, "s1")
			require.NoError(t, err)
			ok, err := g.Apply(ctx, first, models.ProcessingUpdate(models.StepUpload))
			require.NoError(t, err)
			require.True(t, ok)

			second, err := g.Begin(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, uint64(2), second.Generation)

			// a new generation starts from a clean projection
			p, err := g.Status(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, p.Started())

			ok, err = g.Apply(ctx, first, models.CompletedUpdate(models.StepUpload))
			require.NoError(t, err)
			assert.False(t, ok)

			current, err := g.IsCurrent(ctx, first)
			require.NoError(t, err)
			assert.False(t, current)

			p, err = g.Status(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, status.StepIdle, p.Steps.Get(models.StepUpload))
		})
	}
}

func TestGuardInvalidateOnFileChange(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGuard(store, logger.NewNopLogger())

			token, err := g.Begin(ctx, "s1")
			require.NoError(t, err)
			require.NoError(t, g.Invalidate(ctx, "s1"))

			applied, err := g.Consume(ctx, token, feed(successUpdates()))
			require.NoError(t, err)
			assert.Zero(t, applied)

			p, err := g.Status(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, status.New().Steps, p.Steps)
			assert.Empty(t, p.RedirectURL)
		})
	}
}

func TestConsumeStopsAtFirstStaleUpdateAndDrains(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(NewMemoryStore(time.Hour), logger.NewNopLogger())

	token, err := g.Begin(ctx, "s1")
	require.NoError(t, err)

	updates := make(chan models.WorkflowUpdate)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(updates)
		for i, u := range successUpdates() {
			if i == 2 {
				waitForUpdates(t, g, "s1", 2)
				// the user submits again mid-run
				_, _ = g.Begin(ctx, "s1")
			}
			updates <- u
		}
	}()

	applied, err := g.Consume(ctx, token, updates)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer blocked")
	}

	p, err := g.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.Generation)
	assert.False(t, p.Started())
}

func waitForUpdates(t *testing.T, g *Guard, sessionID string, n int) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p, err := g.Status(context.Background(), sessionID)
		if err == nil && p.Updates >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Errorf("session %s never reached %d updates", sessionID, n)
}

func TestOnlyLastOfManySubmissionsIsApplied(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGuard(store, logger.NewNopLogger())

			const n = 5
			tokens := make([]Token, n)
			for i := range tokens {
				tok, err := g.Begin(ctx, "s1")
				require.NoError(t, err)
				tokens[i] = tok
			}

			var wg sync.WaitGroup
			results := make([]int, n)
			for i, tok := range tokens {
				i, tok := i, tok
				wg.Add(1)
				go func() {
					defer wg.Done()
					applied, err := g.Consume(ctx, tok, feed(successUpdates()))
					assert.NoError(t, err)
					results[i] = applied
				}()
			}
			wg.Wait()

			for i := 0; i < n-1; i++ {
				assert.Zero(t, results[i], "run %d", i)
			}
			assert.Equal(t, 6, results[n-1])

			p, err := g.Status(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, uint64(n), p.Generation)
			assert.True(t, p.Complete)
			assert.Equal(t, 6, p.Updates)
		})
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGuard(store, logger.NewNopLogger())

			a, err := g.Begin(ctx, "a")
			require.NoError(t, err)
			_, err = g.Begin(ctx, "b")
			require.NoError(t, err)

			ok, err := g.Apply(ctx, a, models.ProcessingUpdate(models.StepUpload))
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestEmptySessionRejected(t *testing.T) {
	g := NewGuard(NewMemoryStore(time.Hour), logger.NewNopLogger())
	ctx := context.Background()

	_, err := g.Begin(ctx, "")
	assert.ErrorIs(t, err, ErrEmptySession)
	assert.ErrorIs(t, g.Invalidate(ctx, ""), ErrEmptySession)
	_, err = g.Status(ctx, "")
	assert.ErrorIs(t, err, ErrEmptySession)
}

func TestUnknownSessionStatus(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p, err := store.Load(context.Background(), "nobody")
			require.NoError(t, err)
			assert.Equal(t, uint64(0), p.Generation)
			assert.False(t, p.Started())

			ok, err := store.Commit(context.Background(), Token{SessionID: "nobody", Generation: 0}, func(p status.Projection) status.Projection {
				return p
			})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisStoreKeysExpire(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	g := NewGuard(store, logger.NewNopLogger())

	token, err := g.Begin(ctx, "s1")
	require.NoError(t, err)
	_, err = g.Apply(ctx, token, models.ProcessingUpdate(models.StepUpload))
	require.NoError(t, err)

	assert.True(t, mr.Exists(generationKey("s1")))
	assert.True(t, mr.Exists(statusKey("s1")))
	assert.Equal(t, time.Hour, mr.TTL(statusKey("s1")))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(generationKey("s1")))

	p, err := g.Status(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, p.Started())
}

func TestMemoryStoreSessionsExpire(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()
	g := NewGuard(store, logger.NewNopLogger())

	stale, err := g.Begin(ctx, "s1")
	require.NoError(t, err)
	_, err = g.Begin(ctx, "s2")
	require.NoError(t, err)

	// applying keeps s1 alive
	clock = clock.Add(40 * time.Second)
	ok, err := g.Apply(ctx, stale, models.ProcessingUpdate(models.StepUpload))
	require.NoError(t, err)
	require.True(t, ok)

	clock = clock.Add(30 * time.Second)
	p, err := g.Status(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, p.InProgress)
	assert.Equal(t, 1, store.Len(), "s2 is swept")

	clock = clock.Add(time.Minute)
	p, err = g.Status(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, p.Started())
	assert.Equal(t, uint64(0), p.Generation)
	assert.Zero(t, store.Len())

	ok, err = g.Apply(ctx, stale, models.CompletedUpdate(models.StepUpload))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreWithoutTTLKeepsSessions(t *testing.T) {
	store := NewMemoryStore(0)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := store.Advance(ctx, "s1")
	require.NoError(t, err)

	clock = clock.Add(365 * 24 * time.Hour)
	gen, err := store.Current(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
}
