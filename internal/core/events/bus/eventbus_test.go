package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()

	var got []Event
	sub, err := b.Subscribe("entity_created", func(e Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.True(t, sub.IsActive())

	require.NoError(t, b.Publish(NewEvent("entity_created", "world-1", uint32(7))))
	require.Len(t, got, 1)
	assert.Equal(t, "entity_created", got[0].Type)
	assert.Equal(t, "world-1", got[0].Source)
	assert.Equal(t, []any{uint32(7)}, got[0].Args)

	// Events of other types do not reach the handler.
	require.NoError(t, b.Publish(NewEvent("entity_deleted", "world-1")))
	assert.Len(t, got, 1)
}

func TestPublishErrorsJoined(t *testing.T) {
	b := New()

	errBoom := errors.New("boom")
	calls := 0
	_, err := b.Subscribe("tick", func(Event) error {
		calls++
		return errBoom
	})
	require.NoError(t, err)
	_, err = b.Subscribe("tick", func(Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	// A failing handler does not stop delivery; its error is joined into
	// the result.
	err = b.Publish(NewEvent("tick", "w"))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, calls)
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	calls := 0
	sub, err := b.Subscribe("tick", func(Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Unsubscribe(sub))
	assert.False(t, sub.IsActive())

	require.NoError(t, b.Publish(NewEvent("tick", "w")))
	assert.Zero(t, calls)
}

func TestPublishAsync(t *testing.T) {
	b := New()

	done := make(chan struct{})
	_, err := b.Subscribe("tick", func(Event) error {
		close(done)
		return nil
	})
	require.NoError(t, err)

	errCh := b.PublishAsync(NewEvent("tick", "w"))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("async publish never completed")
	}
	select {
	case <-done:
	default:
		t.Fatal("handler not invoked")
	}
}

func TestClear(t *testing.T) {
	b := New()

	calls := 0
	_, err := b.Subscribe("tick", func(Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	b.Clear()
	require.NoError(t, b.Publish(NewEvent("tick", "w")))
	assert.Zero(t, calls)
}
