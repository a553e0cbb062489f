package mqttclient

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/envelope"
)

// startBroker spins up an in-process mochi-mqtt broker on a free port
// for the lifetime of the test, so reconnect/dedup/wildcard behavior
// can be exercised without an external broker dependency.
func startBroker(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	server := mqttbroker.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("add allow hook: %v", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "test-" + addr, Address: addr})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("add listener: %v", err)
	}
	go func() {
		_ = server.Serve()
	}()

	t.Cleanup(func() {
		_ = server.Close()
	})

	// Give the listener a moment to accept connections.
	time.Sleep(50 * time.Millisecond)
	return "tcp://" + addr
}

func newTestClient(t *testing.T, broker, clientID string) *Client {
	t.Helper()
	c := New(Options{
		BrokerURL:       broker,
		ClientID:        clientID,
		DedupTTL:        time.Minute,
		DedupMaxEntries: 64,
		Log:             zerolog.Nop(),
	})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect %s: %v", clientID, err)
	}
	t.Cleanup(c.Shutdown)
	return c
}

func TestClientPublishSubscribeRoundTrip(t *testing.T) {
	broker := startBroker(t)
	sub := newTestClient(t, broker, "sub-1")
	pub := newTestClient(t, broker, "pub-1")

	received := make(chan []byte, 1)
	if err := sub.Subscribe("stt/final", 1, func(_ string, payload []byte) {
		received <- payload
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // allow SUBACK to land

	if err := pub.PublishEvent("stt/final", "stt.final", map[string]string{"text": "hello"}, "", 1, false); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-received:
		e, err := envelope.Decode(payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if e.Type != "stt.final" {
			t.Fatalf("type = %q, want stt.final", e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestClientWildcardSubscriptionEndToEnd(t *testing.T) {
	broker := startBroker(t)
	sub := newTestClient(t, broker, "sub-wild")
	pub := newTestClient(t, broker, "pub-wild")

	var mu sync.Mutex
	var gotTopics []string
	if err := sub.Subscribe("llm/+", 0, func(topic string, _ []byte) {
		mu.Lock()
		gotTopics = append(gotTopics, topic)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	for _, topic := range []string{"llm/request", "llm/response"} {
		if err := pub.PublishEvent(topic, "", map[string]string{}, "", 0, false); err != nil {
			t.Fatalf("publish %s: %v", topic, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(gotTopics)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d matched messages, want 2", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientDeduplicatesRepeatedEnvelopeID(t *testing.T) {
	broker := startBroker(t)
	sub := newTestClient(t, broker, "sub-dedup")
	pub := newTestClient(t, broker, "pub-dedup")

	var mu sync.Mutex
	count := 0
	if err := sub.Subscribe("stt/final", 0, func(_ string, _ []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	e, err := envelope.New("stt.final", "pub-dedup", map[string]string{"text": "hi"}, "")
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	payload, err := envelope.Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for i := 0; i < 3; i++ {
		token := pub.conn.Publish("stt/final", 0, false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			t.Fatalf("raw publish #%d: %v", i, err)
		}
	}

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	got := count
	mu.Unlock()
	if got != 1 {
		t.Fatalf("handler invoked %d times for duplicated envelope id, want 1", got)
	}
}

func TestClientResubscribesAfterForcedReconnect(t *testing.T) {
	broker := startBroker(t)
	sub := newTestClient(t, broker, "sub-recover")
	pub := newTestClient(t, broker, "pub-recover")

	received := make(chan struct{}, 4)
	if err := sub.Subscribe("wake/event", 1, func(_ string, _ []byte) {
		received <- struct{}{}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	publish := func() {
		if err := pub.PublishEvent("wake/event", "wake.event", map[string]string{}, "", 1, false); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	publish()
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive message before forced reconnect")
	}

	sub.forceReconnect()
	time.Sleep(200 * time.Millisecond) // allow onConnect to replay subscriptions

	publish()
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not recovered after forced reconnect")
	}
}

func TestNextBackoffSchedule(t *testing.T) {
	min := 500 * time.Millisecond
	max := 5 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // would be 8s uncapped, clamped to max
		{10, 5 * time.Second},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("attempt=%d", tc.attempt), func(t *testing.T) {
			got := nextBackoff(tc.attempt, min, max)
			if got != tc.want {
				t.Errorf("nextBackoff(%d) = %v, want %v", tc.attempt, got, tc.want)
			}
		})
	}
}
