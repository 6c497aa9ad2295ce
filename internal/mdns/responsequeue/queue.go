// Package responsequeue implements the per-interface, randomized-delay
// response queue of RFC 6762 §6: hold outgoing responses briefly so
// compatible ones can be coalesced into a single packet before they hit the
// wire.
package responsequeue

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mdnsgo/mdns/internal/mdns/common/log"
	"github.com/mdnsgo/mdns/internal/mdns/transport"
	"github.com/mdnsgo/mdns/internal/mdns/wire"
)

// minDelay and delaySpread bound the uniform(20, 120) ms randomized delay
// assigned to every newly enqueued response (§4.4).
const (
	minDelay    = 20 * time.Millisecond
	delaySpread = 100 * time.Millisecond

	// maxDelay is MAX_DELAY: the longest a merged packet may wait past its
	// earliest constituent's creation time.
	maxDelay = 500 * time.Millisecond
)

// entry is one pending response awaiting transmission on one interface.
type entry struct {
	packet      *wire.Packet
	ifaceID     transport.InterfaceID
	dest        transport.Destination
	createdAt   time.Time
	scheduledAt time.Time
	timer       *clock.Timer
	cancelled   bool
}

// Queue holds pending responses per interface and dispatches each through
// transport once its randomized delay elapses, unless it was cancelled by a
// merge in the meantime.
type Queue struct {
	mu        sync.Mutex
	clock     clock.Clock
	random    func() float64
	transport transport.Transport
	capBytes  int
	logger    log.Logger

	pending map[transport.InterfaceID][]*entry
}

// New returns a Queue. random must return a uniform float64 in [0, 1); clk
// drives every delay so tests can control timing deterministically.
func New(t transport.Transport, clk clock.Clock, random func() float64, capBytes int, logger log.Logger) *Queue {
	return &Queue{
		clock:     clk,
		random:    random,
		transport: t,
		capBytes:  capBytes,
		logger:    logger,
		pending:   make(map[transport.InterfaceID][]*entry),
	}
}

// Enqueue schedules packet for transmission on ifaceID/dest after a
// uniform(20,120)ms delay. If the most recently pending entry on the same
// interface is combine-compatible and merging would not push its earliest
// constituent's creation time more than MAX_DELAY in the past, the two are
// merged into one packet and the earlier entry's timer is cancelled.
func (q *Queue) Enqueue(ctx context.Context, ifaceID transport.InterfaceID, dest transport.Destination, packet *wire.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	delay := minDelay + time.Duration(q.random()*float64(delaySpread))
	next := &entry{
		packet:      packet,
		ifaceID:     ifaceID,
		dest:        dest,
		createdAt:   now,
		scheduledAt: now.Add(delay),
	}

	entries := q.pending[ifaceID]
	if n := len(entries); n > 0 {
		last := entries[n-1]
		if !last.cancelled {
			if merged, ok := q.tryMerge(last, next); ok {
				entries[n-1] = merged
				q.pending[ifaceID] = entries
				q.arm(ctx, merged)
				return
			}
		}
	}
	q.pending[ifaceID] = append(entries, next)
	q.arm(ctx, next)
}

// tryMerge attempts to combine last's packet with next's. On success it
// cancels last's timer and returns a new entry carrying the merged packet,
// the earlier of the two creation times, and next's scheduled send time.
func (q *Queue) tryMerge(last, next *entry) (*entry, bool) {
	if last.dest != next.dest {
		return nil, false
	}
	if !wire.CombineCompatible(last.packet, next.packet) {
		return nil, false
	}
	earliest := last.createdAt
	if next.createdAt.Before(earliest) {
		earliest = next.createdAt
	}
	if next.scheduledAt.Sub(earliest) > maxDelay {
		return nil, false
	}
	merged, err := wire.Combine(last.packet, next.packet, q.capBytes)
	if err != nil {
		q.logger.Debug(map[string]any{"error": err.Error()}, "response merge rejected, sending separately")
		return nil, false
	}
	last.timer.Stop()
	last.cancelled = true
	return &entry{
		packet:      merged,
		ifaceID:     next.ifaceID,
		dest:        next.dest,
		createdAt:   earliest,
		scheduledAt: next.scheduledAt,
	}, true
}

func (q *Queue) arm(ctx context.Context, e *entry) {
	delay := e.scheduledAt.Sub(q.clock.Now())
	if delay < 0 {
		delay = 0
	}
	e.timer = q.clock.Timer(delay)
	go q.waitAndDispatch(ctx, e)
}

func (q *Queue) waitAndDispatch(ctx context.Context, e *entry) {
	select {
	case <-e.timer.C:
	case <-ctx.Done():
		e.timer.Stop()
		return
	}

	q.mu.Lock()
	cancelled := e.cancelled
	q.mu.Unlock()
	if cancelled {
		return
	}

	if err := e.packet.ValidateSections(); err != nil {
		q.logger.Error(map[string]any{"error": err.Error()}, "queued response failed section validation, dropping")
		return
	}

	buf, err := e.packet.EncodeBytes()
	if err != nil {
		q.logger.Error(map[string]any{"error": err.Error()}, "failed to encode queued response")
		return
	}
	if err := q.transport.Send(ctx, e.ifaceID, e.dest, buf); err != nil {
		q.logger.Error(map[string]any{"error": err.Error(), "interface": string(e.ifaceID)}, "failed to send queued response")
	}
}

// Shutdown cancels every pending timer and discards the queue. No further
// transmissions occur for entries already enqueued.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entries := range q.pending {
		for _, e := range entries {
			if e.timer != nil {
				e.timer.Stop()
			}
			e.cancelled = true
		}
	}
	q.pending = make(map[transport.InterfaceID][]*entry)
}

// Pending returns the number of not-yet-cancelled entries awaiting
// dispatch on ifaceID, for tests and diagnostics.
func (q *Queue) Pending(ifaceID transport.InterfaceID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.pending[ifaceID] {
		if !e.cancelled {
			n++
		}
	}
	return n
}
