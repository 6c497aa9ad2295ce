package domain

import "net"

// Rdata is a sealed marker interface: the only implementations are the
// concrete rdata variants in this file. Encoders and decoders switch on the
// enclosing ResourceRecord's Type field (a plain tagged union, per §9's
// design note) rather than calling virtual methods on Rdata.
type Rdata interface {
	rrType() RRType
}

// ARdata is the rdata of an A record: a 4-byte IPv4 address.
type ARdata struct {
	IP net.IP
}

func (ARdata) rrType() RRType { return RRTypeA }

// AAAARdata is the rdata of an AAAA record: a 16-byte IPv6 address.
type AAAARdata struct {
	IP net.IP
}

func (AAAARdata) rrType() RRType { return RRTypeAAAA }

// PTRRdata is the rdata of a PTR record: a single target Name.
type PTRRdata struct {
	Target Name
}

func (PTRRdata) rrType() RRType { return RRTypePTR }

// CNAMERdata is the rdata of a CNAME record: a single target Name.
type CNAMERdata struct {
	Target Name
}

func (CNAMERdata) rrType() RRType { return RRTypeCNAME }

// SRVRdata is the rdata of an SRV record (RFC 2782).
type SRVRdata struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   Name
}

func (SRVRdata) rrType() RRType { return RRTypeSRV }

// TXTRdata is the rdata of a TXT record: an ordered list of opaque byte
// strings, each at most 255 bytes (§4.2).
type TXTRdata struct {
	Strings [][]byte
}

func (TXTRdata) rrType() RRType { return RRTypeTXT }

// NSECRdata is the rdata of an NSEC record as mDNS uses it: a same-name
// "next name" (mDNS never forms a real DNSSEC chain, RFC 6762 §6.1) and the
// set of types that *do* exist for this name, encoded as window blocks on
// the wire (RFC 4034 §4.1.2).
type NSECRdata struct {
	NextName Name
	Types    []RRType
}

func (NSECRdata) rrType() RRType { return RRTypeNSEC }

// OPTOption is a single EDNS0 option within an OPT pseudo-record.
type OPTOption struct {
	Code uint16
	Data []byte
}

// OPTRdata is the rdata of an OPT pseudo-record (EDNS0, RFC 6891). The
// record's ordinary TTL field on the wire instead carries extended-rcode,
// version, and flag bits, captured here rather than in ResourceRecord.TTL.
type OPTRdata struct {
	ExtendedRCode uint8
	Version       uint8
	DNSSECOK      bool
	Options       []OPTOption
}

func (OPTRdata) rrType() RRType { return RRTypeOPT }

// RawRdata carries the rdata of a record type this engine doesn't model
// explicitly. Decoding never fails solely because of an unrecognized type;
// the bytes are preserved verbatim so a responder can still forward or
// re-encode the record unchanged.
type RawRdata struct {
	WireType RRType
	Bytes    []byte
}

func (r RawRdata) rrType() RRType { return r.WireType }

// ResourceRecord is a single answer/authority/additional record (§3).
type ResourceRecord struct {
	Name       Name
	Type       RRType
	Class      RRClass
	CacheFlush bool
	TTL        uint32
	Rdata      Rdata
}

// SameData reports whether two records "represent the same data": equal
// name (case-insensitive), type, and class, ignoring the cache-flush bit
// and TTL (§4.2's "represent the same data" relation).
func (r ResourceRecord) SameData(other ResourceRecord) bool {
	return r.Type == other.Type && r.Class == other.Class && r.Name.EqualFold(other.Name)
}

// Validate checks structural validity: a non-zero owner name and rdata.
// An unrecognized Type is only an error outside of RawRdata, since decoding
// deliberately preserves unknown types as RawRdata rather than failing. The
// class field is not checked on OPT records, which repurpose it to carry
// the advertised UDP payload size rather than a DNS class.
func (r ResourceRecord) Validate() error {
	if r.Name.IsZero() {
		return NewCodecErr("ResourceRecord.Validate", ErrMalformedRecord)
	}
	if r.Rdata == nil {
		return NewCodecErr("ResourceRecord.Validate", ErrMalformedRecord)
	}
	if _, raw := r.Rdata.(RawRdata); !raw && !r.Type.IsValid() {
		return NewCodecErr("ResourceRecord.Validate", ErrMalformedRecord)
	}
	if r.Type != RRTypeOPT && !r.Class.IsValid() {
		return NewCodecErr("ResourceRecord.Validate", ErrMalformedRecord)
	}
	return nil
}
