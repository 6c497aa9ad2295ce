package domain

// RRClass represents a DNS class. mDNS only ever speaks IN, but ANY is a
// legal qclass value on the wire (questions only) and must round-trip.
type RRClass uint16

const (
	RRClassIN  RRClass = 1
	RRClassANY RRClass = 255
)

// classCacheFlushBit is the top bit of the class field in a resource
// record. RFC 6762 §10.2 repurposes it to mean "flush stale cache entries
// for this name/type/class" when set in a response.
const classCacheFlushBit RRClass = 0x8000

// classUnicastResponseBit is the same bit position in a question's qclass,
// repurposed by RFC 6762 §5.4 to request a unicast rather than multicast
// reply.
const classUnicastResponseBit RRClass = 0x8000

// IsValid returns true if the RRClass is one of the supported classes.
func (c RRClass) IsValid() bool {
	switch c.withoutFlag() {
	case RRClassIN, RRClassANY:
		return true
	default:
		return false
	}
}

func (c RRClass) withoutFlag() RRClass {
	return c &^ classCacheFlushBit
}

// String returns the textual representation of the RRClass, ignoring any
// cache-flush/unicast-response bit.
func (c RRClass) String() string {
	switch c.withoutFlag() {
	case RRClassIN:
		return "IN"
	case RRClassANY:
		return "ANY"
	default:
		return "UNKNOWN"
	}
}

// SplitRecordClass extracts the wire class field of a resource record into
// its class value and cache-flush bit (§4.2).
func SplitRecordClass(wire uint16) (class RRClass, cacheFlush bool) {
	raw := RRClass(wire)
	return raw.withoutFlag(), raw&classCacheFlushBit != 0
}

// EncodeRecordClass reassembles a resource record's wire class field from
// its class value and cache-flush bit.
func EncodeRecordClass(class RRClass, cacheFlush bool) uint16 {
	raw := class.withoutFlag()
	if cacheFlush {
		raw |= classCacheFlushBit
	}
	return uint16(raw)
}

// SplitQuestionClass extracts a question's wire qclass field into its class
// value and unicast-response-requested bit (§6).
func SplitQuestionClass(wire uint16) (class RRClass, unicastResponse bool) {
	raw := RRClass(wire)
	return raw.withoutFlag(), raw&classUnicastResponseBit != 0
}

// EncodeQuestionClass reassembles a question's wire qclass field from its
// class value and unicast-response-requested bit.
func EncodeQuestionClass(class RRClass, unicastResponse bool) uint16 {
	raw := class.withoutFlag()
	if unicastResponse {
		raw |= classUnicastResponseBit
	}
	return uint16(raw)
}
