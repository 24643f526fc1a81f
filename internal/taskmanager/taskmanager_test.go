package taskmanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeRunsAllTasksAndReturnsNil(t *testing.T) {
	scope, _ := NewScope(context.Background(), 4)
	var count atomic.Int32
	for i := 0; i < 10; i++ {
		scope.Go(func() error {
			count.Add(1)
			return nil
		})
	}
	require.NoError(t, scope.Wait())
	require.Equal(t, int32(10), count.Load())
}

func TestScopeReturnsFirstError(t *testing.T) {
	scope, _ := NewScope(context.Background(), 2)
	boom := errors.New("boom")
	scope.Go(func() error { return boom })
	scope.Go(func() error { return nil })
	err := scope.Wait()
	require.ErrorIs(t, err, boom)
}

func TestScopeCancelsSiblingsOnFirstError(t *testing.T) {
	scope, ctx := NewScope(context.Background(), 4)
	boom := errors.New("boom")
	scope.Go(func() error { return boom })
	scope.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	err := scope.Wait()
	require.Error(t, err)
}

func TestScopeRespectsConcurrencyLimit(t *testing.T) {
	scope, _ := NewScope(context.Background(), 1)
	var running, maxObserved atomic.Int32
	for i := 0; i < 5; i++ {
		scope.Go(func() error {
			n := running.Add(1)
			for {
				cur := maxObserved.Load()
				if n <= cur || maxObserved.CompareAndSwap(cur, n) {
					break
				}
			}
			running.Add(-1)
			return nil
		})
	}
	require.NoError(t, scope.Wait())
	require.LessOrEqual(t, maxObserved.Load(), int32(1))
}
