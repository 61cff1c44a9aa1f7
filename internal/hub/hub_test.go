package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castrelay/castrelay/internal/config"
)

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 65536,
	}
}

func TestSendToClientUnknownRecipient(t *testing.T) {
	h := NewHub(testConfig())
	assert.NoError(t, h.SendToClient("nobody", map[string]string{"event": "ping"}))
}

func TestSendToClientDelivers(t *testing.T) {
	h := NewHub(testConfig())
	client := &Client{ID: "conn-1", Hub: h, Send: make(chan []byte, 4)}
	h.Register(client)

	require.NoError(t, h.SendToClient("conn-1", map[string]string{"event": "pong"}))

	select {
	case data := <-client.Send:
		assert.Contains(t, string(data), "pong")
	default:
		t.Fatal("no message queued for client")
	}
}

// Fanout from room events can race a client's disconnect. Sends must never
// hit the channel after Unregister has closed it.
func TestSendToClientRacingUnregister(t *testing.T) {
	h := NewHub(testConfig())

	for i := 0; i < 100; i++ {
		client := &Client{
			ID:   fmt.Sprintf("conn-%d", i),
			Hub:  h,
			Send: make(chan []byte, 1024),
		}
		h.Register(client)

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 25; n++ {
					_ = h.SendToClient(client.ID, map[string]string{"event": "viewer-joined"})
				}
			}()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Unregister(client)
		}()

		wg.Wait()
	}
}
