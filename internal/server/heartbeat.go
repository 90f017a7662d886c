package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// heartbeat sends keep-alive probes on a fixed interval and tracks the
// client's acknowledgements.
type heartbeat struct {
	interval time.Duration

	mu     sync.Mutex // held while an id is assigned and sent
	lastID int64
	sentAt time.Time

	lastAck atomic.Int64 // unix nanos
	rtt     atomic.Int64 // nanos
}

func newHeartbeat(interval time.Duration) *heartbeat {
	h := &heartbeat{interval: interval}
	h.lastAck.Store(time.Now().UnixNano())
	return h
}

// run probes until ctx is cancelled or send fails.
func (h *heartbeat) run(ctx context.Context, send func(id int64) error) error {
	h.lastAck.Store(time.Now().UnixNano())

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.probe(send); err != nil {
				return err
			}
		}
	}
}

func (h *heartbeat) probe(send func(id int64) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.lastID = now.UnixMilli()
	h.sentAt = now
	return send(h.lastID)
}

// ack matches a client echo against the last probe. It returns the round
// trip and false for a stale or unknown id.
func (h *heartbeat) ack(id int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lastID == 0 || id != h.lastID {
		return 0, false
	}
	now := time.Now()
	rtt := now.Sub(h.sentAt)
	h.lastAck.Store(now.UnixNano())
	h.rtt.Store(int64(rtt))
	return rtt, true
}

// LastAck returns when the client last answered a probe, or when the
// heartbeat started if it never has.
func (h *heartbeat) LastAck() time.Time {
	return time.Unix(0, h.lastAck.Load())
}

// RTT returns the most recent round trip.
func (h *heartbeat) RTT() time.Duration {
	return time.Duration(h.rtt.Load())
}
