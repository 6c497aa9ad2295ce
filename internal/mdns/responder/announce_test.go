package responder

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdnsgo/mdns/internal/mdns/domain"
	"github.com/mdnsgo/mdns/internal/mdns/wire"
)

func mustName(t *testing.T, s string) domain.Name {
	t.Helper()
	n, err := domain.NewName(s)
	require.NoError(t, err)
	return n
}

func TestBuildNegativeNSEC_NextNameIsSelfAndBitmapMatchesExistingTypes(t *testing.T) {
	name := mustName(t, "myprinter.local.")
	rr := BuildNegativeNSEC(name, []domain.RRType{domain.RRTypeA, domain.RRTypeSRV}, 120)

	assert.Equal(t, domain.RRTypeNSEC, rr.Type)
	assert.True(t, rr.CacheFlush)
	assert.Equal(t, uint32(120), rr.TTL)

	nsec, ok := rr.Rdata.(domain.NSECRdata)
	require.True(t, ok)
	assert.True(t, nsec.NextName.EqualFold(name))
	assert.ElementsMatch(t, []domain.RRType{domain.RRTypeA, domain.RRTypeSRV}, nsec.Types)
}

func aRecord(t *testing.T, name domain.Name, ip string, ttl uint32) domain.ResourceRecord {
	t.Helper()
	return domain.ResourceRecord{
		Name:  name,
		Type:  domain.RRTypeA,
		Class: domain.RRClassIN,
		TTL:   ttl,
		Rdata: domain.ARdata{IP: net.ParseIP(ip)},
	}
}

func TestSuppressKnownAnswers_DropsFreshlyKnownRecord(t *testing.T) {
	name := mustName(t, "myprinter.local.")
	candidate := aRecord(t, name, "10.0.0.5", 120)
	known := aRecord(t, name, "10.0.0.5", 100) // > half of 120

	out := SuppressKnownAnswers([]domain.ResourceRecord{candidate}, []domain.ResourceRecord{known})
	assert.Empty(t, out)
}

func TestSuppressKnownAnswers_KeepsStaleKnownRecord(t *testing.T) {
	name := mustName(t, "myprinter.local.")
	candidate := aRecord(t, name, "10.0.0.5", 120)
	known := aRecord(t, name, "10.0.0.5", 50) // < half of 120

	out := SuppressKnownAnswers([]domain.ResourceRecord{candidate}, []domain.ResourceRecord{known})
	require.Len(t, out, 1)
	assert.Equal(t, candidate, out[0])
}

func TestSuppressKnownAnswers_KeepsRecordWithDifferentRdata(t *testing.T) {
	name := mustName(t, "myprinter.local.")
	candidate := aRecord(t, name, "10.0.0.5", 120)
	known := aRecord(t, name, "10.0.0.9", 119) // same name/type/class, different address

	out := SuppressKnownAnswers([]domain.ResourceRecord{candidate}, []domain.ResourceRecord{known})
	require.Len(t, out, 1)
	assert.Equal(t, candidate, out[0])
}

func TestSuppressKnownAnswers_IgnoresUnrelatedName(t *testing.T) {
	candidate := aRecord(t, mustName(t, "myprinter.local."), "10.0.0.5", 120)
	known := aRecord(t, mustName(t, "otherhost.local."), "10.0.0.5", 120)

	out := SuppressKnownAnswers([]domain.ResourceRecord{candidate}, []domain.ResourceRecord{known})
	require.Len(t, out, 1)
}

func TestGoodbyePacket_ZerosTTLOnEveryRecord(t *testing.T) {
	name := mustName(t, "myprinter.local.")
	records := []domain.ResourceRecord{
		aRecord(t, name, "10.0.0.5", 120),
		aRecord(t, name, "10.0.0.6", 4500),
	}

	pkt, err := GoodbyePacket(0, records, false, 1440)
	require.NoError(t, err)
	require.Len(t, pkt.Answers, 2)
	for _, a := range pkt.Answers {
		assert.Equal(t, uint32(0), a.TTL)
	}
	assert.True(t, pkt.AA)
	assert.True(t, pkt.IsResponse)

	// Original records passed in must be untouched.
	assert.Equal(t, uint32(120), records[0].TTL)
	assert.Equal(t, uint32(4500), records[1].TTL)
}

func TestGoodbyePacket_FailsWhenOversize(t *testing.T) {
	name := mustName(t, "huge.local.")
	big := domain.ResourceRecord{
		Name:  name,
		Type:  domain.RRTypeTXT,
		Class: domain.RRClassIN,
		TTL:   0,
		Rdata: domain.TXTRdata{Strings: [][]byte{make([]byte, 255), make([]byte, 255), make([]byte, 255)}},
	}
	_, err := GoodbyePacket(0, []domain.ResourceRecord{big}, false, 512)
	assert.ErrorIs(t, err, domain.ErrResponseTooLarge)
}

func TestCompareCanonicalUsageInSuppression_DoesNotPanicOnOPT(t *testing.T) {
	// Guard: CanonicalRdataBytes must handle every Rdata variant reachable
	// from a responder's candidate set without panicking, including OPT.
	rr := domain.ResourceRecord{
		Name:  mustName(t, "local."),
		Type:  domain.RRTypeOPT,
		Class: domain.RRClassIN,
		Rdata: domain.OPTRdata{ExtendedRCode: 0, Version: 0},
	}
	assert.NotPanics(t, func() { wire.CanonicalRdataBytes(rr) })
}
