package suspend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const notHappened = 50 * time.Millisecond

func TestSetClear(t *testing.T) {
	t.Parallel()

	s := NewSlot()
	_, ok := s.Get()
	require.False(t, ok)

	require.True(t, s.Set(42))
	id, ok := s.Get()
	require.True(t, ok)
	require.Equal(t, uint64(42), id)

	s.Clear()
	_, ok = s.Get()
	require.False(t, ok)

	// Clearing an empty slot is harmless.
	require.NotPanics(t, s.Clear)
}

func TestSecondSetWaitsForClear(t *testing.T) {
	t.Parallel()

	s := NewSlot()
	require.True(t, s.Set(1))

	secondSet := make(chan bool)
	go func() {
		secondSet <- s.Set(2)
	}()

	select {
	case <-secondSet:
		require.Fail(t, "second Set succeeded while the slot was occupied")
	case <-time.After(notHappened):
	}
	id, _ := s.Get()
	require.Equal(t, uint64(1), id)

	s.Clear()
	require.True(t, <-secondSet)
	id, ok := s.Get()
	require.True(t, ok)
	require.Equal(t, uint64(2), id)
}

func TestManySettersAreSerialized(t *testing.T) {
	t.Parallel()

	s := NewSlot()
	const n = 8
	holders := make(chan uint64, n)
	for i := 1; i <= n; i++ {
		go func(id uint64) {
			s.Set(id)
			holders <- id
		}(uint64(i))
	}

	seen := map[uint64]bool{}
	for i := 0; i < n; i++ {
		id := <-holders
		// Nobody else can get in until this holder clears.
		select {
		case other := <-holders:
			require.Failf(t, "overlapping episodes", "%d entered while %d held the slot", other, id)
		case <-time.After(5 * time.Millisecond):
		}
		got, ok := s.Get()
		require.True(t, ok)
		require.Equal(t, id, got)
		seen[id] = true
		s.Clear()
	}
	require.Len(t, seen, n)
}

func TestSetTwiceBySameThreadPanics(t *testing.T) {
	t.Parallel()

	s := NewSlot()
	require.True(t, s.Set(7))
	require.Panics(t, func() { s.Set(7) })
	require.Panics(t, func() { s.Set(0) })
}

func TestWaitBlocksUntilClear(t *testing.T) {
	t.Parallel()

	s := NewSlot()
	require.NoError(t, s.Wait(context.Background()))

	require.True(t, s.Set(3))
	done := make(chan error)
	go func() {
		done <- s.Wait(context.Background())
	}()

	select {
	case <-done:
		require.Fail(t, "Wait returned while the slot was occupied")
	case <-time.After(notHappened):
	}

	s.Clear()
	require.NoError(t, <-done)
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	s := NewSlot()
	require.True(t, s.Set(3))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestCloseReleasesEveryone(t *testing.T) {
	t.Parallel()

	s := NewSlot()
	require.True(t, s.Set(1))

	setDone := make(chan bool)
	go func() { setDone <- s.Set(2) }()
	waitDone := make(chan error)
	go func() { waitDone <- s.Wait(context.Background()) }()

	s.Close()
	require.False(t, <-setDone)
	require.ErrorIs(t, <-waitDone, ErrClosed)

	s.Clear()
	require.False(t, s.Set(3))
}
