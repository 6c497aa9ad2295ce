package wire

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdnsgo/mdns/internal/mdns/domain"
)

func txtRecord(t *testing.T, name string, payloadLen int) domain.ResourceRecord {
	t.Helper()
	// A TXT string holds at most 255 bytes, so a larger payload is split
	// across several strings.
	var strs [][]byte
	for payloadLen > 255 {
		strs = append(strs, make([]byte, 255))
		payloadLen -= 255
	}
	strs = append(strs, make([]byte, payloadLen))
	return domain.ResourceRecord{
		Name:  mustName(t, name),
		Type:  domain.RRTypeTXT,
		Class: domain.RRClassIN,
		TTL:   4500,
		Rdata: domain.TXTRdata{Strings: strs},
	}
}

func TestPacket_EncodeDecodeRoundTrip(t *testing.T) {
	p := &Packet{ID: 0, IsResponse: true, AA: true}
	p.AddAnswer(aRecord(t, "host.local", "192.168.1.5", 120, true))
	p.AddAnswer(txtRecord(t, "_svc._tcp.local", 10))

	buf, err := p.EncodeBytes()
	require.NoError(t, err)

	decoded, err := ParsePacket(buf)
	require.NoError(t, err)
	assert.True(t, decoded.IsResponse)
	assert.True(t, decoded.AA)
	assert.Len(t, decoded.Answers, 2)
	assert.Empty(t, decoded.Questions)
}

func TestPacket_LengthCacheInvalidatesOnMutation(t *testing.T) {
	p := &Packet{ID: 1}
	p.AddQuestion(domain.Question{Name: mustName(t, "host.local"), Type: domain.RRTypeA, Class: domain.RRClassIN})
	n1, err := p.RealLength()
	require.NoError(t, err)

	p.AddAnswer(aRecord(t, "host.local", "10.0.0.1", 120, false))
	assert.True(t, p.dirty, "adding a record must invalidate the cached length")
	n2, err := p.RealLength()
	require.NoError(t, err)
	assert.Greater(t, n2, n1)
}

func TestBuildQuery_KnownAnswerSplitting(t *testing.T) {
	question := domain.Question{Name: mustName(t, "_svc._tcp.local"), Type: domain.RRTypePTR, Class: domain.RRClassIN}

	var knownAnswers []domain.ResourceRecord
	for i := 0; i < 300; i++ {
		name := fmt.Sprintf("rec%03d.local", i)
		// 55 bytes uncompressed, 50 on the wire once "local" is compressed.
		knownAnswers = append(knownAnswers, txtRecord(t, name, 30))
	}

	packets, err := BuildQuery(0, []domain.Question{question}, knownAnswers, 1440)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(packets), 11)

	totalAnswers := 0
	for i, pkt := range packets {
		n, err := pkt.RealLength()
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 1440)
		if i < len(packets)-1 {
			assert.True(t, pkt.TC, "non-final packet %d must have TC set", i)
		} else {
			assert.False(t, pkt.TC, "final packet must not have TC set")
		}
		totalAnswers += len(pkt.Answers)
	}
	assert.Equal(t, 300, totalAnswers)
}

func TestBuildQuery_OversizeKnownAnswerAsLastDoesNotLeaveTrailingEmptyPacket(t *testing.T) {
	// A continuation-only known-answer packet carries no questions of its
	// own (§17), so a solo oversize record lands directly on the primary
	// packet's empty question section and exercises the carve-out branch
	// as the sole, final item in sorted.
	huge := txtRecord(t, "huge.local", 2000)

	packets, err := BuildQuery(0, nil, []domain.ResourceRecord{huge}, 512)
	require.NoError(t, err)

	require.Len(t, packets, 1, "the oversize carve-out must not leave a trailing empty continuation packet")
	last := packets[len(packets)-1]
	assert.NotZero(t, len(last.Questions)+len(last.Answers), "final packet must not be empty")
	assert.False(t, last.TC, "final packet must not have TC set")
}

func TestBuildQuery_QuerySectionTooLarge(t *testing.T) {
	var questions []domain.Question
	for i := 0; i < 200; i++ {
		questions = append(questions, domain.Question{
			Name:  mustName(t, fmt.Sprintf("q%03d.local", i)),
			Type:  domain.RRTypeANY,
			Class: domain.RRClassIN,
		})
	}
	_, err := BuildQuery(0, questions, nil, 512)
	assert.ErrorIs(t, err, domain.ErrQuerySectionTooLarge)
}

func TestBuildProbe_SortsAuthoritiesCanonically(t *testing.T) {
	questions := []domain.Question{
		{Name: mustName(t, "My Printer._ipp._tcp.local"), Type: domain.RRTypeANY, Class: domain.RRClassIN, UnicastResponse: true},
		{Name: mustName(t, "myprinter.local"), Type: domain.RRTypeANY, Class: domain.RRClassIN, UnicastResponse: true},
	}
	high := aRecord(t, "myprinter.local", "10.0.0.9", 120, false)
	low := aRecord(t, "myprinter.local", "10.0.0.1", 120, false)

	p, err := BuildProbe(0, questions, []domain.ResourceRecord{high, low}, 1440)
	require.NoError(t, err)
	require.Len(t, p.Authorities, 2)
	firstIP := p.Authorities[0].Rdata.(domain.ARdata).IP
	secondIP := p.Authorities[1].Rdata.(domain.ARdata).IP
	assert.True(t, firstIP.Equal(low.Rdata.(domain.ARdata).IP))
	assert.True(t, secondIP.Equal(high.Rdata.(domain.ARdata).IP))
}

func TestBuildProbe_TooLargeFails(t *testing.T) {
	var authorities []domain.ResourceRecord
	for i := 0; i < 50; i++ {
		authorities = append(authorities, txtRecord(t, fmt.Sprintf("rec%03d.local", i), 200))
	}
	_, err := BuildProbe(0, nil, authorities, 1440)
	assert.ErrorIs(t, err, domain.ErrProbeTooLarge)
}

func TestBuildResponse_SetsAAAndFailsWhenOversize(t *testing.T) {
	small := aRecord(t, "host.local", "10.0.0.1", 120, true)
	p, err := BuildResponse(0, []domain.ResourceRecord{small}, false, 1440)
	require.NoError(t, err)
	assert.True(t, p.AA)

	huge := txtRecord(t, "host.local", 2000)
	_, err = BuildResponse(0, []domain.ResourceRecord{huge}, false, 1440)
	assert.ErrorIs(t, err, domain.ErrResponseTooLarge)
}

func TestCombine_MergesCompatiblePacketsAndOrsLegacyFlag(t *testing.T) {
	a := &Packet{ID: 5, IsResponse: true, AA: true}
	a.AddAnswer(aRecord(t, "host.local", "10.0.0.1", 120, true))
	b := &Packet{ID: 5, IsResponse: true, AA: true, LegacyUnicast: true}
	b.AddAnswer(aRecord(t, "host2.local", "10.0.0.2", 120, true))

	merged, err := Combine(a, b, 1440)
	require.NoError(t, err)
	assert.Len(t, merged.Answers, 2)
	assert.True(t, merged.LegacyUnicast)
}

func TestCombine_RejectsIncompatibleHeaders(t *testing.T) {
	a := &Packet{ID: 5, IsResponse: true, AA: true}
	b := &Packet{ID: 6, IsResponse: true, AA: true}
	_, err := Combine(a, b, 1440)
	assert.Error(t, err)
}

func TestCombine_FailsWhenResultExceedsCap(t *testing.T) {
	a := &Packet{ID: 1, IsResponse: true, AA: true}
	a.AddAnswer(txtRecord(t, "host.local", 1000))
	b := &Packet{ID: 1, IsResponse: true, AA: true}
	b.AddAnswer(txtRecord(t, "host2.local", 1000))

	_, err := Combine(a, b, 1440)
	assert.ErrorIs(t, err, domain.ErrResponseTooLarge)
}
