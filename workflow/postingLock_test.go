package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLocker struct {
	name string
	log  *[]string
	err  error
}

func (l recordingLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	*l.log = append(*l.log, "acquire "+l.name)
	return func() { *l.log = append(*l.log, "release "+l.name) }, nil
}

func TestChainLockersReleasesInReverse(t *testing.T) {
	var log []string
	chain := ChainLockers(recordingLocker{name: "redis", log: &log}, nil, recordingLocker{name: "db", log: &log})

	release, err := chain.Acquire(context.Background(), financeLockKey)
	require.NoError(t, err)
	release()
	assert.Equal(t, []string{"acquire redis", "acquire db", "release db", "release redis"}, log)
}

func TestChainLockersUnwindsOnFailure(t *testing.T) {
	var log []string
	boom := errors.New("lock timeout")
	chain := ChainLockers(recordingLocker{name: "redis", log: &log}, recordingLocker{name: "db", log: &log, err: boom})

	_, err := chain.Acquire(context.Background(), financeLockKey)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"acquire redis", "release redis"}, log)
}

func TestRedisLockerWithoutClientProceeds(t *testing.T) {
	l := NewRedisLocker(nil, 0, config.NewDiscardLogger())
	assert.Equal(t, 30*time.Second, l.ttl)
	release, err := l.Acquire(context.Background(), financeLockKey)
	require.NoError(t, err)
	release()

	var nilLocker *RedisLocker
	release, err = nilLocker.Acquire(context.Background(), financeLockKey)
	require.NoError(t, err)
	release()
}

func TestFinalizeMonthFailsWhenLockUnavailable(t *testing.T) {
	st := store.NewMemoryStore()
	busy := LockFunc(func(ctx context.Context, key string) (func(), error) {
		return nil, context.DeadlineExceeded
	})
	w := NewFinanceWorkflow(st, config.NewDiscardLogger(), WithLocker(busy))

	_, err := w.FinalizeMonth(context.Background(), "2025-02")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	all, err := st.ListFinalizations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStoreLockSerializesFinalize(t *testing.T) {
	f := newFixture(t)
	release, err := f.st.Lock(f.ctx, financeLockKey)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(f.ctx, 20*time.Millisecond)
	defer cancel()
	_, err = f.finance.FinalizeMonth(ctx, "2025-02")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	_, err = f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)
}
