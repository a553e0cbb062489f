package adminapi

import (
	"strings"
	"sync"
	"time"

	"github.com/tars-project/tars/internal/mqttclient"
)

// FleetTracker counts distinct TARS processes currently announcing
// themselves on the retained system/health/<client_id> topics (spec
// §4.1), so the admin API can report fleet size without a hardcoded
// worker list.
type FleetTracker struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	staleAfter time.Duration
}

// NewFleetTracker builds a tracker. A worker is considered connected
// if its last health message arrived within staleAfter.
func NewFleetTracker(staleAfter time.Duration) *FleetTracker {
	return &FleetTracker{seen: make(map[string]time.Time), staleAfter: staleAfter}
}

// Watch subscribes to system/health/+ and records the last time each
// worker announced itself.
func (f *FleetTracker) Watch(client *mqttclient.Client) error {
	return client.Subscribe("system/health/+", 1, func(topic string, _ []byte) {
		id := strings.TrimPrefix(topic, "system/health/")
		f.mu.Lock()
		f.seen[id] = time.Now()
		f.mu.Unlock()
	})
}

// ConnectedWorkers reports the number of workers heard from within the
// staleness window.
func (f *FleetTracker) ConnectedWorkers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-f.staleAfter)
	n := 0
	for _, t := range f.seen {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
