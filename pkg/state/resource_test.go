package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceRefresh(t *testing.T) {
	data := []string{"a", "b"}
	fail := false
	r := NewResource[string]("test", func(ctx context.Context) ([]string, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return data, nil
	})

	assert.Equal(t, Idle, r.State())

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, Loaded, r.State())
	assert.Equal(t, []string{"a", "b"}, r.Items())

	fail = true
	assert.Error(t, r.Refresh(context.Background()))
	assert.Equal(t, Failed, r.State())
	assert.EqualError(t, r.Err(), "boom")
	// 失败时保留上次的列表
	assert.Equal(t, []string{"a", "b"}, r.Items())

	r.Ack()
	assert.Equal(t, Idle, r.State())
	assert.NoError(t, r.Err())

	fail = false
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, Loaded, r.State())
}

func TestResourceDropsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex

	r := NewResource[int]("test", func(ctx context.Context) ([]int, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return []int{1}, nil
		}
		return []int{2}, nil
	})

	done := make(chan error)
	go func() { done <- r.Refresh(context.Background()) }()
	<-started

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []int{2}, r.Items())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []int{2}, r.Items())
	assert.Equal(t, Loaded, r.State())
}

func TestResourceClosedDiscards(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	r := NewResource[int]("test", func(ctx context.Context) ([]int, error) {
		close(started)
		<-release
		return []int{1}, nil
	})

	done := make(chan error)
	go func() { done <- r.Refresh(context.Background()) }()
	<-started
	r.Close()
	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, r.Items())
	assert.ErrorIs(t, r.Refresh(context.Background()), ErrClosed)
	assert.ErrorIs(t, r.Mutate(context.Background(), func(context.Context) error { return nil }), ErrClosed)
}

func TestResourceMutate(t *testing.T) {
	var (
		mu     sync.Mutex
		server = []int{1}
		events []string
	)
	r := NewResource[int]("test", func(ctx context.Context) ([]int, error) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "fetch")
		return append([]int(nil), server...), nil
	})
	require.NoError(t, r.Refresh(context.Background()))

	err := r.Mutate(context.Background(), func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "mutate")
		server = append(server, 2)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, r.Items())
	assert.Equal(t, []string{"fetch", "mutate", "fetch"}, events)

	// 失败的变更不触发拉取，列表保持原值
	err = r.Mutate(context.Background(), func(ctx context.Context) error {
		return errors.New("rejected")
	})
	assert.EqualError(t, err, "rejected")
	assert.Equal(t, []int{1, 2}, r.Items())
	assert.Len(t, events, 3)
}

func TestResourceMutateRefreshFailure(t *testing.T) {
	fail := false
	r := NewResource[int]("test", func(ctx context.Context) ([]int, error) {
		if fail {
			return nil, errors.New("backend unavailable")
		}
		return []int{1}, nil
	})
	require.NoError(t, r.Refresh(context.Background()))

	applied := false
	err := r.Mutate(context.Background(), func(ctx context.Context) error {
		applied = true
		fail = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, applied)
	assert.True(t, Applied(err))
	assert.Contains(t, err.Error(), "backend unavailable")
	assert.Equal(t, Failed, r.State())

	err = r.Mutate(context.Background(), func(ctx context.Context) error {
		return errors.New("rejected")
	})
	assert.False(t, Applied(err))
}

func TestResourceMutationsSerialized(t *testing.T) {
	r := NewResource[int]("test", func(ctx context.Context) ([]int, error) { return nil, nil })

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Mutate(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestResourceOnChange(t *testing.T) {
	r := NewResource[int]("test", func(ctx context.Context) ([]int, error) { return []int{1}, nil })
	var seen []LoadState
	r.OnChange(func(s LoadState) { seen = append(seen, s) })

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []LoadState{Loading, Loaded}, seen)
}
