package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllPreservesOrderAndFailsFast(t *testing.T) {
	t.Parallel()
	tasks := []Task[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 2, nil },
		func(ctx context.Context) (int, error) { return 3, nil },
	}
	results, err := All(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, results)

	boom := errors.New("boom")
	failing := []Task[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 0, boom },
	}
	_, err = All(context.Background(), failing)
	assert.ErrorIs(t, err, boom)
}

func TestRaceResolvesWithFirstSettlement(t *testing.T) {
	t.Parallel()
	slow := func(ctx context.Context) (string, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return "slow", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	fast := func(ctx context.Context) (string, error) {
		return "fast", nil
	}
	v, err := Race(context.Background(), []Task[string]{slow, fast})
	require.NoError(t, err)
	assert.Equal(t, "fast", v)
}

func TestAnyResolvesWithFirstSuccess(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	failing := func(ctx context.Context) (int, error) { return 0, boom }
	succeeding := func(ctx context.Context) (int, error) {
		time.Sleep(5 * time.Millisecond)
		return 42, nil
	}
	v, errs, err := Any(context.Background(), []Task[int]{failing, succeeding})
	require.NoError(t, err)
	assert.Nil(t, errs)
	assert.Equal(t, 42, v)
}

func TestAnyReturnsAllErrorsWhenEveryTaskFails(t *testing.T) {
	t.Parallel()
	err1 := errors.New("err1")
	err2 := errors.New("err2")
	tasks := []Task[int]{
		func(ctx context.Context) (int, error) { return 0, err1 },
		func(ctx context.Context) (int, error) { return 0, err2 },
	}
	_, errs, err := Any(context.Background(), tasks)
	require.ErrorIs(t, err, errAllFailed)
	require.Len(t, errs, 2)
	assert.Contains(t, errs, err1)
	assert.Contains(t, errs, err2)
}

func TestSequenceSeesPriorResults(t *testing.T) {
	t.Parallel()
	factories := []func(ctx context.Context, prior []int) (int, error){
		func(ctx context.Context, prior []int) (int, error) {
			assert.Empty(t, prior)
			return 1, nil
		},
		func(ctx context.Context, prior []int) (int, error) {
			assert.Equal(t, []int{1}, prior)
			return prior[0] + 1, nil
		},
		func(ctx context.Context, prior []int) (int, error) {
			assert.Equal(t, []int{1, 2}, prior)
			return prior[0] + prior[1], nil
		},
	}
	results, err := Sequence(context.Background(), factories)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, results)
}

func TestSequenceStopsOnFirstError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	calls := 0
	factories := []func(ctx context.Context, prior []int) (int, error){
		func(ctx context.Context, prior []int) (int, error) { calls++; return 1, nil },
		func(ctx context.Context, prior []int) (int, error) { calls++; return 0, boom },
		func(ctx context.Context, prior []int) (int, error) { calls++; return 0, nil },
	}
	results, err := Sequence(context.Background(), factories)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1}, results)
	assert.Equal(t, 2, calls)
}

func TestMapPreservesOrderWithBoundedConcurrency(t *testing.T) {
	t.Parallel()
	var inFlight atomic.Int32
	var maxInFlight atomic.Int32

	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	results, err := Map(context.Background(), items, 3, func(ctx context.Context, item int, index int) (int, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return item * 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}, results)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(3))
}

func TestMapPropagatesFirstError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	items := []int{1, 2, 3}
	_, err := Map(context.Background(), items, 2, func(ctx context.Context, item int, index int) (int, error) {
		if item == 2 {
			return 0, boom
		}
		return item, nil
	})
	assert.ErrorIs(t, err, boom)
}
