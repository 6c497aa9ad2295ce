package responsequeue

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdnsgo/mdns/internal/mdns/common/log"
	"github.com/mdnsgo/mdns/internal/mdns/domain"
	"github.com/mdnsgo/mdns/internal/mdns/transport"
	"github.com/mdnsgo/mdns/internal/mdns/wire"
)

type fakeTransport struct {
	mu    sync.Mutex
	sent  []transport.InterfaceID
	dests []transport.Destination
	bufs  [][]byte
}

func (f *fakeTransport) Send(_ context.Context, ifaceID transport.InterfaceID, dest transport.Destination, packet []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ifaceID)
	f.dests = append(f.dests, dest)
	f.bufs = append(f.bufs, packet)
	return nil
}

func (f *fakeTransport) Inbound(ctx context.Context) <-chan transport.Inbound {
	ch := make(chan transport.Inbound)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func sequentialRandom(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func answerPacket(t *testing.T, ip string) *wire.Packet {
	t.Helper()
	p := &wire.Packet{IsResponse: true, AA: true}
	name, err := domain.NewName("host.local")
	require.NoError(t, err)
	p.AddAnswer(domain.ResourceRecord{
		Name:  name,
		Type:  domain.RRTypeA,
		Class: domain.RRClassIN,
		TTL:   120,
		Rdata: domain.ARdata{IP: net.ParseIP(ip)},
	})
	return p
}

func TestQueue_DispatchesAfterDelay(t *testing.T) {
	mockClock := clock.NewMock()
	ft := &fakeTransport{}
	q := New(ft, mockClock, sequentialRandom(0.5), 1440, log.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Enqueue(ctx, "eth0", transport.Destination{Multicast: true}, answerPacket(t, "10.0.0.1"))
	assert.Equal(t, 1, q.Pending("eth0"))

	mockClock.Add(200 * time.Millisecond)
	waitForCondition(t, func() bool { return ft.count() == 1 })
}

func TestQueue_MergesCompatibleResponsesWithinCap(t *testing.T) {
	mockClock := clock.NewMock()
	ft := &fakeTransport{}
	q := New(ft, mockClock, sequentialRandom(0.0, 0.0), 1440, log.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Enqueue(ctx, "eth0", transport.Destination{Multicast: true}, answerPacket(t, "10.0.0.1"))
	q.Enqueue(ctx, "eth0", transport.Destination{Multicast: true}, answerPacket(t, "10.0.0.2"))

	assert.Equal(t, 1, q.Pending("eth0"), "the second enqueue should merge into the first, not add a new entry")

	mockClock.Add(200 * time.Millisecond)
	waitForCondition(t, func() bool { return ft.count() == 1 })
}

func TestQueue_DoesNotMergeAcrossDifferentDestinations(t *testing.T) {
	mockClock := clock.NewMock()
	ft := &fakeTransport{}
	q := New(ft, mockClock, sequentialRandom(0.0, 0.0), 1440, log.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Enqueue(ctx, "eth0", transport.Destination{Multicast: true}, answerPacket(t, "10.0.0.1"))
	q.Enqueue(ctx, "eth0", transport.Destination{UnicastAddr: "10.0.0.9:5353"}, answerPacket(t, "10.0.0.2"))

	assert.Equal(t, 2, q.Pending("eth0"), "responses bound for different destinations must not merge")

	mockClock.Add(200 * time.Millisecond)
	waitForCondition(t, func() bool { return ft.count() == 2 })

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Len(t, ft.dests, 2)
	assert.ElementsMatch(t, []transport.Destination{
		{Multicast: true},
		{UnicastAddr: "10.0.0.9:5353"},
	}, ft.dests, "each response must reach its own destination, not be dropped by a cross-destination merge")
}

func TestQueue_Shutdown_CancelsPendingTimers(t *testing.T) {
	mockClock := clock.NewMock()
	ft := &fakeTransport{}
	q := New(ft, mockClock, sequentialRandom(0.5), 1440, log.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Enqueue(ctx, "eth0", transport.Destination{Multicast: true}, answerPacket(t, "10.0.0.1"))
	q.Shutdown()
	mockClock.Add(time.Second)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, ft.count(), "a cancelled entry must never be transmitted")
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
