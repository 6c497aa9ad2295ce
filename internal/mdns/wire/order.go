package wire

import (
	"bytes"
	"sort"
	"strings"

	"github.com/mdnsgo/mdns/internal/mdns/domain"
)

// CanonicalRdataBytes renders a record's rdata in canonical form: names
// lowercased, never compressed (§4.5). Used both to sort authority records
// before a probe and to compare two hosts' authority sections during
// simultaneous-probe tiebreaking.
func CanonicalRdataBytes(rr domain.ResourceRecord) []byte {
	var buf []byte
	switch d := rr.Rdata.(type) {
	case domain.ARdata:
		buf = append(buf, d.IP.To4()...)
	case domain.AAAARdata:
		buf = append(buf, d.IP.To16()...)
	case domain.PTRRdata:
		buf, _ = EncodeNonCompressed(buf, lowercaseName(d.Target))
	case domain.CNAMERdata:
		buf, _ = EncodeNonCompressed(buf, lowercaseName(d.Target))
	case domain.SRVRdata:
		buf = appendUint16(buf, d.Priority)
		buf = appendUint16(buf, d.Weight)
		buf = appendUint16(buf, d.Port)
		buf, _ = EncodeNonCompressed(buf, lowercaseName(d.Target))
	case domain.TXTRdata:
		if len(d.Strings) == 0 {
			buf = append(buf, 0)
			break
		}
		for _, s := range d.Strings {
			buf = append(buf, byte(len(s)))
			buf = append(buf, s...)
		}
	case domain.NSECRdata:
		buf, _ = EncodeNonCompressed(buf, lowercaseName(d.NextName))
		buf = encodeNSECBitmap(buf, d.Types)
	case domain.OPTRdata:
		for _, o := range d.Options {
			buf = appendUint16(buf, o.Code)
			buf = appendUint16(buf, uint16(len(o.Data)))
			buf = append(buf, o.Data...)
		}
	case domain.RawRdata:
		buf = append(buf, d.Bytes...)
	}
	return buf
}

func lowercaseName(n domain.Name) domain.Name {
	labels := n.Labels()
	lower := make([]string, len(labels))
	for i, l := range labels {
		lower[i] = strings.ToLower(l)
	}
	out, err := domain.NewNameFromLabels(lower)
	if err != nil {
		return n
	}
	return out
}

// CompareCanonical orders two records by class, then type, then canonical
// rdata bytes (§4.5).
func CompareCanonical(a, b domain.ResourceRecord) int {
	if a.Class != b.Class {
		if a.Class < b.Class {
			return -1
		}
		return 1
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	return bytes.Compare(CanonicalRdataBytes(a), CanonicalRdataBytes(b))
}

// SortRecordsCanonical returns a stably-sorted copy of records in canonical
// order, ready for probe authority attachment or tiebreak comparison.
func SortRecordsCanonical(records []domain.ResourceRecord) []domain.ResourceRecord {
	out := make([]domain.ResourceRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return CompareCanonical(out[i], out[j]) < 0
	})
	return out
}

// CompareRecordSets lexicographically compares two already-sorted record
// sequences, record by record, falling back to length once one sequence is
// a prefix of the other.
func CompareRecordSets(ours, theirs []domain.ResourceRecord) int {
	n := len(ours)
	if len(theirs) < n {
		n = len(theirs)
	}
	for i := 0; i < n; i++ {
		if c := CompareCanonical(ours[i], theirs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(ours) < len(theirs):
		return -1
	case len(ours) > len(theirs):
		return 1
	default:
		return 0
	}
}

// TiebreakOutcome is the result of comparing our probe's authority records
// against a simultaneous prober's (§4.5).
type TiebreakOutcome int

const (
	NoConflict TiebreakOutcome = iota
	HostWins
	OpponentWins
)

// Tiebreak compares our sorted authority records against an opponent's and
// reports who wins the simultaneous-probe conflict. A first differing byte
// that is smaller on our side means we win.
func Tiebreak(ours, theirs []domain.ResourceRecord) TiebreakOutcome {
	switch c := CompareRecordSets(ours, theirs); {
	case c == 0:
		return NoConflict
	case c < 0:
		return HostWins
	default:
		return OpponentWins
	}
}
