package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PutGet(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(time.Hour, clock)

	op := NewOperation(clock, DirectionFileToStore, "a", "b")
	reg.Put(op)

	rec, err := reg.Get(op.ID())
	require.NoError(t, err)
	assert.Equal(t, op.ID(), rec.OperationID)

	op.RecordBatch(5)
	rec, err = reg.Get(op.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.RecordsProcessed)
}

func TestRegistry_UnknownID(t *testing.T) {
	reg := NewRegistry(time.Hour, newFakeClock())

	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestRegistry_ErrorRecordIsNotNotFound(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(time.Hour, clock)

	op := NewOperation(clock, DirectionFileToStore, "a", "b")
	op.RecordBatch(3)
	op.Finish(false, "failed to import data: boom")
	reg.Put(op)

	rec, err := reg.Get(op.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, int64(3), rec.RecordsProcessed)
}

func TestRegistry_Expiry(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(time.Hour, clock)

	old := NewOperation(clock, DirectionFileToStore, "a", "b")
	reg.Put(old)
	clock.Advance(10 * time.Second)
	old.Finish(true, "done")

	running := NewOperation(clock, DirectionFileToStore, "a", "b")
	reg.Put(running)

	// Younger than the window: still there.
	clock.Advance(59 * time.Minute)
	_, err := reg.Get(old.ID())
	require.NoError(t, err)

	// Older than the window: gone. Running operations never expire.
	clock.Advance(2 * time.Minute)
	_, err = reg.Get(old.ID())
	assert.ErrorIs(t, err, ErrOperationNotFound)

	_, err = reg.Get(running.ID())
	assert.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_SweepOnRegistration(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(time.Minute, clock)

	old := NewOperation(clock, DirectionFileToStore, "a", "b")
	old.Finish(true, "done")
	reg.Put(old)
	require.Equal(t, 1, reg.Len())

	clock.Advance(2 * time.Minute)
	reg.Put(NewOperation(clock, DirectionFileToStore, "a", "b"))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(time.Hour, clock)

	first := NewOperation(clock, DirectionFileToStore, "a", "b")
	reg.Put(first)
	clock.Advance(time.Second)
	second := NewOperation(clock, DirectionStoreToFile, "b", "a")
	reg.Put(second)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID(), list[0].OperationID)
	assert.Equal(t, first.ID(), list[1].OperationID)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(time.Hour, clock)

	var wg sync.WaitGroup
	ids := make(chan string, 100)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				op := NewOperation(clock, DirectionFileToStore, fmt.Sprint(i), "t")
				reg.Put(op)
				op.RecordBatch(j)
				reg.Put(op)
				ids <- op.ID()
			}
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = reg.List()
			}
		}()
	}
	wg.Wait()
	close(ids)

	for id := range ids {
		_, err := reg.Get(id)
		assert.NoError(t, err)
	}
	assert.Equal(t, 100, reg.Len())
}
