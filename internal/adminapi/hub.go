package adminapi

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/mqttclient"
)

// wireEvent is one message observed on a watched topic, as relayed to
// an operator websocket client.
type wireEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans out envelopes published on watched topics to connected
// operator websocket clients (GET /api/v1/events). It is a debugging
// tap, not a control path — a slow or absent subscriber never blocks
// the MQTT dispatch loop that feeds it.
type Hub struct {
	mu   sync.Mutex
	subs map[chan wireEvent]struct{}
	log  zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{subs: make(map[chan wireEvent]struct{}), log: log}
}

// Watch subscribes to each filter on client, relaying every message
// received to connected websocket clients. Call once at startup after
// client.Connect succeeds.
func (h *Hub) Watch(client *mqttclient.Client, filters ...string) error {
	for _, filter := range filters {
		if err := client.Subscribe(filter, 0, h.broadcast); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) broadcast(topic string, payload []byte) {
	evt := wireEvent{Topic: topic, Payload: json.RawMessage(payload)}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.log.Warn().Str("topic", topic).Msg("admin event stream subscriber too slow, dropping message")
		}
	}
}

func (h *Hub) subscribe() (chan wireEvent, func()) {
	ch := make(chan wireEvent, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// SubscriberCount reports the number of connected websocket clients,
// for the tars_stream_subscribers_active gauge.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
