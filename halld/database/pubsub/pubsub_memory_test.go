package pubsub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall/halld/database/pubsub"
)

func TestMemoryPubsub(t *testing.T) {
	t.Parallel()

	t.Run("Publish", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ps := pubsub.NewInMemory()
		messageChannel := make(chan []byte)
		unsub, err := ps.Subscribe("room-ABC123", func(_ context.Context, message []byte) {
			messageChannel <- message
		})
		require.NoError(t, err)
		defer unsub()

		go func() {
			err := ps.Publish("room-ABC123", []byte("hello"))
			assert.NoError(t, err)
		}()
		select {
		case <-ctx.Done():
			t.Fatal("timed out waiting for message")
		case message := <-messageChannel:
			require.Equal(t, []byte("hello"), message)
		}
	})

	t.Run("NoListeners", func(t *testing.T) {
		t.Parallel()

		ps := pubsub.NewInMemory()
		require.NoError(t, ps.Publish("room-NOBODY", []byte("anyone?")))
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		t.Parallel()

		ps := pubsub.NewInMemory()
		received := make(chan []byte, 1)
		unsub, err := ps.Subscribe("room-ABC123", func(_ context.Context, message []byte) {
			received <- message
		})
		require.NoError(t, err)
		unsub()

		require.NoError(t, ps.Publish("room-ABC123", []byte("dropped")))
		select {
		case <-received:
			t.Fatal("received message after unsubscribe")
		case <-time.After(50 * time.Millisecond):
		}
	})
}
