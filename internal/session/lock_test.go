package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter = map[string]*int{"a": new(int), "b": new(int)}
	)
	for i := range 100 {
		key := []string{"a", "b"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock, err := k.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			// racy without the lock; the race detector catches it
			*counter[key]++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, *counter["a"])
	assert.Equal(t, 50, *counter["b"])
	assert.Empty(t, k.locks, "should drop unused entries")
}

func TestKeyedMutex_ContextDone(t *testing.T) {
	k := newKeyedMutex()

	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	unlockB, err := k.Lock(context.Background(), "b")
	require.NoError(t, err, "other keys are unaffected")
	unlockB()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = k.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "should give up when the context is done")

	unlock()
	assert.Empty(t, k.locks, "should drop entries of abandoned waiters")

	unlock, err = k.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		code, err := generateCode()
		assert.NoError(t, err)
		assert.True(t, domain.ValidSessionCode(code), code)
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		seen[code] = true
	}

	assert.Greater(t, len(seen), 90)
}
