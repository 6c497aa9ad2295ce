// Package prober implements the three-probe uniqueness check of RFC 6762
// §8.1 and the simultaneous-probe tiebreaking of §8.2: an explicit state
// machine driven by timer callbacks, since Go has no native coroutine-style
// suspension to model the source's probe loop directly (§9).
package prober

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mdnsgo/mdns/internal/mdns/common/log"
	"github.com/mdnsgo/mdns/internal/mdns/domain"
	"github.com/mdnsgo/mdns/internal/mdns/transport"
	"github.com/mdnsgo/mdns/internal/mdns/wire"
)

// State is a node in the probe state machine (§4.5).
type State int

const (
	StateIdle State = iota
	StateWaitInitial
	StateSending1
	StateSending2
	StateSending3
	StateDone
	StateTimeout
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitInitial:
		return "WAIT_INITIAL"
	case StateSending1:
		return "SENDING(1)"
	case StateSending2:
		return "SENDING(2)"
	case StateSending3:
		return "SENDING(3)"
	case StateDone:
		return "DONE"
	case StateTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

const (
	probeInterval    = 250 * time.Millisecond
	initialWaitMax   = 250 * time.Millisecond
	tiebreakBackoff  = 1 * time.Second
	probeTimeout     = 60 * time.Second
	probesBeforeDone = 3
)

// Prober drives one service's probing lifecycle over a single interface
// set. Its exported methods and its timer callbacks all serialize through an
// internal mutex, so timer and inbound-packet events may originate from
// different goroutines without corrupting state; this stands in for the
// single-threaded cooperative event-loop model the core engine assumes (§5).
type Prober struct {
	mu sync.Mutex

	service   domain.Service
	transport transport.Transport
	ifaceID   transport.InterfaceID
	clock     clock.Clock
	random    func() float64
	capBytes  int
	logger    log.Logger

	state        State
	probesSent   int
	timer        *clock.Timer
	timeoutTimer *clock.Timer
	ignoreInbound bool

	onResolved func(err error)
}

// New returns a Prober for service, ready to Start.
func New(service domain.Service, t transport.Transport, ifaceID transport.InterfaceID, clk clock.Clock, random func() float64, capBytes int, logger log.Logger) *Prober {
	return &Prober{
		service:   service,
		transport: t,
		ifaceID:   ifaceID,
		clock:     clk,
		random:    random,
		capBytes:  capBytes,
		logger:    logger,
		state:     StateIdle,
	}
}

// Start begins probing and calls onResolved exactly once: with nil on
// success (after the third probe with no disqualifying answer) or
// domain.ErrProbeTimeout after 60 s without resolving.
func (p *Prober) Start(ctx context.Context, onResolved func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return
	}
	p.onResolved = onResolved
	p.ignoreInbound = true
	p.state = StateWaitInitial
	p.probesSent = 0

	p.timeoutTimer = p.clock.Timer(probeTimeout)
	go p.waitForTimeout(ctx)

	wait := time.Duration(p.random() * float64(initialWaitMax))
	p.timer = p.clock.Timer(wait)
	go p.waitAndSend(ctx)
}

// State reports the prober's current state, for diagnostics and tests.
func (p *Prober) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Prober) waitForTimeout(ctx context.Context) {
	select {
	case <-p.timeoutTimer.C:
	case <-ctx.Done():
		p.timeoutTimer.Stop()
		return
	}
	p.mu.Lock()
	if p.state == StateDone || p.state == StateTimeout {
		p.mu.Unlock()
		return
	}
	p.state = StateTimeout
	if p.timer != nil {
		p.timer.Stop()
	}
	cb := p.onResolved
	p.mu.Unlock()
	if cb != nil {
		cb(domain.ErrProbeTimeout)
	}
}

func (p *Prober) waitAndSend(ctx context.Context) {
	select {
	case <-p.timer.C:
	case <-ctx.Done():
		p.timer.Stop()
		return
	}
	p.mu.Lock()
	if p.state == StateDone || p.state == StateTimeout {
		p.mu.Unlock()
		return
	}
	p.sendProbeLocked(ctx)
	p.mu.Unlock()
}

// sendProbeLocked must be called with p.mu held. It builds and sends one
// probe packet, advances the state machine, and arms the next timer.
func (p *Prober) sendProbeLocked(ctx context.Context) {
	switch p.state {
	case StateWaitInitial:
		p.state = StateSending1
	case StateSending1:
		p.state = StateSending2
	case StateSending2:
		p.state = StateSending3
	}

	records := p.service.Records()
	if err := records.Validate(); err != nil {
		probeErr := domain.NewProbeError(p.service.GetFQDN().String(), err)
		p.logger.Error(map[string]any{"error": probeErr.Error()}, "service record bundle failed validation")
		return
	}

	questions := []domain.Question{
		{Name: p.service.GetFQDN(), Type: domain.RRTypeANY, Class: domain.RRClassIN, UnicastResponse: true},
		{Name: p.service.GetHostname(), Type: domain.RRTypeANY, Class: domain.RRClassIN, UnicastResponse: true},
	}
	authorities := records.AllRecords()
	packet, err := wire.BuildProbe(0, questions, authorities, p.capBytes)
	if err != nil {
		p.logger.Error(map[string]any{"error": err.Error()}, "failed to build probe packet")
		return
	}
	buf, err := packet.EncodeBytes()
	if err != nil {
		p.logger.Error(map[string]any{"error": err.Error()}, "failed to encode probe packet")
		return
	}
	if err := p.transport.Send(ctx, p.ifaceID, transport.Destination{Multicast: true}, buf); err != nil {
		p.logger.Error(map[string]any{"error": err.Error()}, "failed to send probe packet")
	}

	p.probesSent++
	p.ignoreInbound = false

	if p.probesSent >= probesBeforeDone {
		p.finishLocked(nil)
		return
	}
	p.timer = p.clock.Timer(probeInterval)
	go p.waitAndSend(ctx)
}

func (p *Prober) finishLocked(err error) {
	p.state = StateDone
	if err != nil {
		p.state = StateTimeout
	}
	if p.timeoutTimer != nil {
		p.timeoutTimer.Stop()
	}
	cb := p.onResolved
	go func() {
		if cb != nil {
			cb(err)
		}
	}()
}

// restartLocked resets the probe counters and begins sending immediately
// (no initial random wait), per the conflict-restart rule of §4.5.
func (p *Prober) restartLocked(ctx context.Context) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.probesSent = 0
	p.state = StateWaitInitial
	p.ignoreInbound = true
	p.timer = p.clock.Timer(0)
	go p.waitAndSend(ctx)
}

// backoffLocked cancels the current probe cycle, waits 1s, then restarts
// from probe 1 with the same name (§4.5's LOST_TIEBREAK transition).
func (p *Prober) backoffLocked(ctx context.Context) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.probesSent = 0
	p.state = StateWaitInitial
	p.ignoreInbound = true
	p.timer = p.clock.Timer(tiebreakBackoff)
	go p.waitAndSend(ctx)
}

// HandleInbound processes one inbound packet arriving while this prober is
// active: conflict detection against responses, and simultaneous-probe
// tiebreaking against queries. It is a no-op before the first probe has
// been sent and after the prober has resolved.
func (p *Prober) HandleInbound(ctx context.Context, pkt *wire.Packet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDone || p.state == StateTimeout || p.state == StateIdle {
		return
	}
	if p.ignoreInbound {
		return
	}

	if pkt.IsResponse {
		p.handleResponseLocked(ctx, pkt)
		return
	}
	p.handleQueryLocked(ctx, pkt)
}

func (p *Prober) handleResponseLocked(ctx context.Context, pkt *wire.Packet) {
	fqdn := p.service.GetFQDN()
	hostname := p.service.GetHostname()
	all := append(append([]domain.ResourceRecord{}, pkt.Answers...), pkt.Additionals...)
	for _, rr := range all {
		if rr.Name.EqualFold(fqdn) || rr.Name.EqualFold(hostname) {
			p.service.IncrementName()
			p.logger.Info(map[string]any{"name": p.service.GetFQDN().String()}, "probe conflict detected, renaming and restarting")
			p.restartLocked(ctx)
			return
		}
	}
}

func (p *Prober) handleQueryLocked(ctx context.Context, pkt *wire.Packet) {
	fqdn := p.service.GetFQDN()
	hostname := p.service.GetHostname()

	matches := false
	for _, q := range pkt.Questions {
		if q.Name.EqualFold(fqdn) || q.Name.EqualFold(hostname) {
			matches = true
			break
		}
	}
	if !matches {
		return
	}

	if len(pkt.Authorities) == 0 {
		// Defensive: a matching probe query with no authority section is
		// itself treated as a conflict.
		p.service.IncrementName()
		p.restartLocked(ctx)
		return
	}

	ours := wire.SortRecordsCanonical(p.service.Records().AllRecords())
	theirs := wire.SortRecordsCanonical(pkt.Authorities)
	switch wire.Tiebreak(ours, theirs) {
	case wire.NoConflict:
		// Same host, no real conflict; keep probing.
	case wire.HostWins:
		// Ignore the opponent.
	case wire.OpponentWins:
		p.backoffLocked(ctx)
	}
}

// DefaultRandom returns a [0,1) uniform source backed by math/rand, for
// callers that don't need to inject a deterministic one.
func DefaultRandom() func() float64 {
	return rand.Float64
}
