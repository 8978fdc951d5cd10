package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

type sent struct {
	topic   string
	qos     byte
	payload []byte
}

func recording(e *MQTTEmitter, fail error) *[]sent {
	var out []sent
	e.publish = func(topic string, qos byte, payload []byte) error {
		if fail != nil {
			return fail
		}
		out = append(out, sent{topic, qos, payload})
		return nil
	}
	return &out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("caja-01")
	assert.Equal(t, "tickets/caja-01/captured", cfg.TicketsTopic)
	assert.Equal(t, "tickets/caja-01/health", cfg.HealthTopic)
	assert.Equal(t, "ticketcap-caja-01", cfg.ClientID)
}

func TestTicketSaved(t *testing.T) {
	e := New(DefaultConfig("caja-01"))
	out := recording(e, nil)

	saved := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)
	err := e.TicketSaved(context.Background(), storage.Receipt{
		CaptureID: "c0ffee",
		Code:      "7501234567890",
		Dir:       "2025-01-15",
		Back:      "2025-01-15/reverso_7501234567890_20250115_143000.jpg",
		Metadata:  "2025-01-15/metadata_7501234567890_20250115_143000.json",
		SavedAt:   saved,
	})
	require.NoError(t, err)
	require.Len(t, *out, 1)

	msg := (*out)[0]
	assert.Equal(t, "tickets/caja-01/captured", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var ev TicketEvent
	require.NoError(t, json.Unmarshal(msg.payload, &ev))
	assert.Equal(t, "ticket_captured", ev.Type)
	assert.Equal(t, "caja-01", ev.StationID)
	assert.Equal(t, "7501234567890", ev.Code)
	assert.True(t, ev.SavedAt.Equal(saved))
	assert.Empty(t, ev.ROI)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Published["tickets/caja-01/captured"])
	assert.Zero(t, stats.Errors)
}

func TestPublishFailuresAreCounted(t *testing.T) {
	e := New(DefaultConfig("caja-01"))
	recording(e, errors.New("broker gone"))

	assert.Error(t, e.TicketSaved(context.Background(), storage.Receipt{Code: "12345678"}))
	assert.Error(t, e.PublishHealth(map[string]string{"state": "ready"}))
	assert.Equal(t, uint64(2), e.Stats().Errors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.TicketSaved(ctx, storage.Receipt{}), context.Canceled)
}

func TestNotConnected(t *testing.T) {
	e := New(DefaultConfig("caja-01"))
	err := e.PublishHealth(map[string]int{"tickets": 3})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, e.Stats().Connected)

	e.Disconnect()
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", brokerURL("localhost:1883"))
	assert.Equal(t, "ssl://broker:8883", brokerURL("ssl://broker:8883"))
}
