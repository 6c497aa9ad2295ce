// Package responder holds the response-side helpers the distilled protocol
// engine spec names but leaves unspecified: synthesizing negative-existence
// NSEC records, suppressing answers the querier already knows about, and
// announcing a service's departure (§10.6). These sit above C2/C3 and are
// exercised by a responder built on top of the Prober and Response Queue,
// not by the codec itself.
package responder

import (
	"github.com/mdnsgo/mdns/internal/mdns/domain"
	"github.com/mdnsgo/mdns/internal/mdns/wire"
)

// BuildNegativeNSEC synthesizes the mDNS "this name exists, but not with
// this type" NSEC record (RFC 6762 §6.1): next-name equal to the owner
// itself (mDNS never forms a real DNSSEC chain) and a bitmap of the record
// types that *do* exist at name.
func BuildNegativeNSEC(name domain.Name, existingTypes []domain.RRType, ttl uint32) domain.ResourceRecord {
	types := make([]domain.RRType, len(existingTypes))
	copy(types, existingTypes)
	return domain.ResourceRecord{
		Name:       name,
		Type:       domain.RRTypeNSEC,
		Class:      domain.RRClassIN,
		CacheFlush: true,
		TTL:        ttl,
		Rdata:      domain.NSECRdata{NextName: name, Types: types},
	}
}

// SuppressKnownAnswers drops any candidate answer the querier has already
// told us it holds with more than half its TTL remaining (RFC 6762 §7.1's
// known-answer suppression, applied symmetrically on the responder side).
// A candidate survives unless some known answer represents the same data
// and is data-equal to it (identical rdata bytes).
func SuppressKnownAnswers(candidates, knownAnswers []domain.ResourceRecord) []domain.ResourceRecord {
	out := make([]domain.ResourceRecord, 0, len(candidates))
	for _, c := range candidates {
		if !isKnown(c, knownAnswers) {
			out = append(out, c)
		}
	}
	return out
}

func isKnown(candidate domain.ResourceRecord, knownAnswers []domain.ResourceRecord) bool {
	for _, k := range knownAnswers {
		if !k.SameData(candidate) {
			continue
		}
		if !sameRdataBytes(candidate, k) {
			continue
		}
		if uint64(k.TTL)*2 > uint64(candidate.TTL) {
			return true
		}
	}
	return false
}

func sameRdataBytes(a, b domain.ResourceRecord) bool {
	ca := wire.CanonicalRdataBytes(a)
	cb := wire.CanonicalRdataBytes(b)
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}

// GoodbyePacket builds the TTL=0 departure announcement a responder sends
// once before shutting down (RFC 6762 §10.1), so peers can evict the
// records from cache immediately rather than waiting out the original TTL.
func GoodbyePacket(id uint16, records []domain.ResourceRecord, legacyUnicast bool, capBytes int) (*wire.Packet, error) {
	goodbye := make([]domain.ResourceRecord, len(records))
	for i, r := range records {
		r.TTL = 0
		goodbye[i] = r
	}
	return wire.BuildResponse(id, goodbye, legacyUnicast, capBytes)
}
