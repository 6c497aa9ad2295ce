package wire

import (
	"encoding/binary"
	"sort"

	"go.uber.org/multierr"

	"github.com/mdnsgo/mdns/internal/mdns/domain"
)

// headerLen is the fixed 12-byte DNS message header (§4.3).
const headerLen = 12

// Packet is a mutable, single-owner DNS message builder: the four record
// sections plus the header bits, with a length cache invalidated on every
// mutation (§9's "interior, single-owner cache" note). The cache only ever
// stores a byte count; every call that actually needs the wire bytes runs a
// fresh label coder, so cached lengths never depend on encode order beyond
// the order records were added in.
type Packet struct {
	ID            uint16
	IsResponse    bool
	Opcode        uint8
	RCode         uint8
	AA            bool
	TC            bool
	RD            bool
	RA            bool
	Z             bool
	AD            bool
	CD            bool
	LegacyUnicast bool

	Questions   []domain.Question
	Answers     []domain.ResourceRecord
	Authorities []domain.ResourceRecord
	Additionals []domain.ResourceRecord

	estimateLen int
	realLen     int
	dirty       bool
}

// AddQuestion appends a question and invalidates the length cache.
func (p *Packet) AddQuestion(q domain.Question) {
	p.Questions = append(p.Questions, q)
	p.estimateLen += UncompressedQuestionLen(q)
	p.dirty = true
}

// AddAnswer appends an answer record and invalidates the length cache.
func (p *Packet) AddAnswer(rr domain.ResourceRecord) {
	p.Answers = append(p.Answers, rr)
	p.estimateLen += UncompressedRecordLen(rr)
	p.dirty = true
}

// AddAuthority appends an authority record and invalidates the length cache.
func (p *Packet) AddAuthority(rr domain.ResourceRecord) {
	p.Authorities = append(p.Authorities, rr)
	p.estimateLen += UncompressedRecordLen(rr)
	p.dirty = true
}

// AddAdditional appends an additional record and invalidates the length cache.
func (p *Packet) AddAdditional(rr domain.ResourceRecord) {
	p.Additionals = append(p.Additionals, rr)
	p.estimateLen += UncompressedRecordLen(rr)
	p.dirty = true
}

func (p *Packet) removeLastAnswer() domain.ResourceRecord {
	n := len(p.Answers)
	last := p.Answers[n-1]
	p.Answers = p.Answers[:n-1]
	p.estimateLen -= UncompressedRecordLen(last)
	p.dirty = true
	return last
}

// EstimateUpperBound returns the cheap, always-available uncompressed
// size estimate: the header plus every section's uncompressed length.
func (p *Packet) EstimateUpperBound() int {
	return headerLen + p.estimateLen
}

// RealLength returns the packet's true compressed encoded length, computed
// with a fresh label coder and cached until the next mutation.
func (p *Packet) RealLength() (int, error) {
	if !p.dirty {
		return p.realLen, nil
	}
	buf, err := p.encode()
	if err != nil {
		return 0, err
	}
	p.realLen = len(buf)
	p.dirty = false
	return p.realLen, nil
}

// EncodeBytes renders the packet to wire bytes with a fresh label coder.
func (p *Packet) EncodeBytes() ([]byte, error) {
	buf, err := p.encode()
	if err != nil {
		return nil, err
	}
	p.realLen = len(buf)
	p.dirty = false
	return buf, nil
}

// ValidateSections checks every question and record across all four
// sections, collecting every violation with multierr.Append instead of
// stopping at the first malformed entry, so a caller about to discard a
// bad packet can log the whole story at once.
func (p *Packet) ValidateSections() error {
	var errs error
	for _, q := range p.Questions {
		errs = multierr.Append(errs, q.Validate())
	}
	for _, rr := range p.Answers {
		errs = multierr.Append(errs, rr.Validate())
	}
	for _, rr := range p.Authorities {
		errs = multierr.Append(errs, rr.Validate())
	}
	for _, rr := range p.Additionals {
		errs = multierr.Append(errs, rr.Validate())
	}
	return errs
}

func (p *Packet) packFlags() uint16 {
	var f uint16
	if p.IsResponse {
		f |= 1 << 15
	}
	f |= uint16(p.Opcode&0xF) << 11
	if p.AA {
		f |= 1 << 10
	}
	if p.TC {
		f |= 1 << 9
	}
	if p.RD {
		f |= 1 << 8
	}
	if p.RA {
		f |= 1 << 7
	}
	if p.Z {
		f |= 1 << 6
	}
	if p.AD {
		f |= 1 << 5
	}
	if p.CD {
		f |= 1 << 4
	}
	f |= uint16(p.RCode & 0xF)
	return f
}

func unpackFlags(f uint16) (p Packet) {
	p.IsResponse = f&(1<<15) != 0
	p.Opcode = uint8((f >> 11) & 0xF)
	p.AA = f&(1<<10) != 0
	p.TC = f&(1<<9) != 0
	p.RD = f&(1<<8) != 0
	p.RA = f&(1<<7) != 0
	p.Z = f&(1<<6) != 0
	p.AD = f&(1<<5) != 0
	p.CD = f&(1<<4) != 0
	p.RCode = uint8(f & 0xF)
	return p
}

func (p *Packet) encode() ([]byte, error) {
	coder := NewLabelCoder()
	buf := make([]byte, 0, headerLen+p.estimateLen)
	buf = appendUint16(buf, p.ID)
	buf = appendUint16(buf, p.packFlags())
	buf = appendUint16(buf, uint16(len(p.Questions)))
	buf = appendUint16(buf, uint16(len(p.Answers)))
	buf = appendUint16(buf, uint16(len(p.Authorities)))
	buf = appendUint16(buf, uint16(len(p.Additionals)))

	var err error
	for _, q := range p.Questions {
		if buf, err = EncodeQuestion(buf, coder, q); err != nil {
			return nil, err
		}
	}
	for _, rr := range p.Answers {
		if buf, err = EncodeRecord(buf, coder, rr, p.LegacyUnicast); err != nil {
			return nil, err
		}
	}
	for _, rr := range p.Authorities {
		if buf, err = EncodeRecord(buf, coder, rr, p.LegacyUnicast); err != nil {
			return nil, err
		}
	}
	for _, rr := range p.Additionals {
		if buf, err = EncodeRecord(buf, coder, rr, p.LegacyUnicast); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// ParsePacket decodes a full DNS message: header, then the four sections in
// header-declared counts. It fails with TrailingGarbage if bytes remain
// after the last declared record.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < headerLen {
		return nil, domain.NewCodecErr("ParsePacket", domain.ErrShortBuffer)
	}
	id := binary.BigEndian.Uint16(data[0:2])
	flags := binary.BigEndian.Uint16(data[2:4])
	qdcount := binary.BigEndian.Uint16(data[4:6])
	ancount := binary.BigEndian.Uint16(data[6:8])
	nscount := binary.BigEndian.Uint16(data[8:10])
	arcount := binary.BigEndian.Uint16(data[10:12])

	p := unpackFlags(flags)
	p.ID = id

	offset := headerLen
	for i := 0; i < int(qdcount); i++ {
		q, n, err := DecodeQuestion(data, offset)
		if err != nil {
			return nil, err
		}
		p.Questions = append(p.Questions, q)
		offset += n
	}
	for i := 0; i < int(ancount); i++ {
		rr, n, err := DecodeRecord(data, offset)
		if err != nil {
			return nil, err
		}
		p.Answers = append(p.Answers, rr)
		offset += n
	}
	for i := 0; i < int(nscount); i++ {
		rr, n, err := DecodeRecord(data, offset)
		if err != nil {
			return nil, err
		}
		p.Authorities = append(p.Authorities, rr)
		offset += n
	}
	for i := 0; i < int(arcount); i++ {
		rr, n, err := DecodeRecord(data, offset)
		if err != nil {
			return nil, err
		}
		p.Additionals = append(p.Additionals, rr)
		offset += n
	}
	if offset != len(data) {
		return nil, domain.NewCodecErrAt("ParsePacket", offset, domain.ErrTrailingGarbage)
	}
	return &p, nil
}

// CombineCompatible reports whether two packets may be merged (§4.3):
// same id, QR, opcode, rcode, and byte-equal flags.
func CombineCompatible(a, b *Packet) bool {
	return a.ID == b.ID && a.packFlags() == b.packFlags()
}

// Combine merges two compatible packets' record sections, ORing the
// legacy-unicast flag, and fails with ResponseTooLarge if the result
// exceeds capBytes (0 means no cap).
func Combine(a, b *Packet, capBytes int) (*Packet, error) {
	if !CombineCompatible(a, b) {
		return nil, domain.NewCodecErr("Combine", domain.ErrMalformedRecord)
	}
	out := &Packet{
		ID: a.ID, IsResponse: a.IsResponse, Opcode: a.Opcode, RCode: a.RCode,
		AA: a.AA, TC: a.TC, RD: a.RD, RA: a.RA, Z: a.Z, AD: a.AD, CD: a.CD,
		LegacyUnicast: a.LegacyUnicast || b.LegacyUnicast,
	}
	for _, q := range a.Questions {
		out.AddQuestion(q)
	}
	for _, q := range b.Questions {
		out.AddQuestion(q)
	}
	for _, rr := range a.Answers {
		out.AddAnswer(rr)
	}
	for _, rr := range b.Answers {
		out.AddAnswer(rr)
	}
	for _, rr := range a.Authorities {
		out.AddAuthority(rr)
	}
	for _, rr := range b.Authorities {
		out.AddAuthority(rr)
	}
	for _, rr := range a.Additionals {
		out.AddAdditional(rr)
	}
	for _, rr := range b.Additionals {
		out.AddAdditional(rr)
	}
	n, err := out.RealLength()
	if err != nil {
		return nil, err
	}
	if capBytes > 0 && n > capBytes {
		return nil, domain.NewCodecErr("Combine", domain.ErrResponseTooLarge)
	}
	return out, nil
}

func continuationPacketLike(p *Packet) *Packet {
	return &Packet{
		ID: p.ID, IsResponse: p.IsResponse, Opcode: p.Opcode, RCode: p.RCode,
		AA: p.AA, RD: p.RD, RA: p.RA, Z: p.Z, AD: p.AD, CD: p.CD,
		LegacyUnicast: p.LegacyUnicast,
	}
}

// BuildQuery assembles the primary query packet (all questions) and, if
// knownAnswers don't fit, continuation packets per §4.3's outbound query
// fragmentation algorithm. Known-answers are sorted ascending by
// uncompressed length before greedy packing. Every non-final packet returned
// has TC set; the final one does not.
func BuildQuery(id uint16, questions []domain.Question, knownAnswers []domain.ResourceRecord, capBytes int) ([]*Packet, error) {
	primary := &Packet{ID: id}
	for _, q := range questions {
		primary.AddQuestion(q)
	}
	n, err := primary.RealLength()
	if err != nil {
		return nil, err
	}
	if capBytes > 0 && n > capBytes {
		return nil, domain.NewCodecErr("BuildQuery", domain.ErrQuerySectionTooLarge)
	}

	sorted := make([]domain.ResourceRecord, len(knownAnswers))
	copy(sorted, knownAnswers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return UncompressedRecordLen(sorted[i]) < UncompressedRecordLen(sorted[j])
	})

	packets := []*Packet{primary}
	current := primary
	for _, ka := range sorted {
		current.AddAnswer(ka)
		fits := current.EstimateUpperBound() <= capBytes || capBytes <= 0
		if !fits {
			real, err := current.RealLength()
			if err != nil {
				return nil, err
			}
			fits = capBytes <= 0 || real <= capBytes
		}
		if fits {
			continue
		}
		if len(current.Questions) == 0 && len(current.Answers) == 1 {
			// §17 oversize carve-out: a lone record too big to fit still
			// gets its own packet rather than failing the whole query. TC
			// is set conservatively since more known-answers may follow.
			current.TC = true
			current.dirty = true
			next := continuationPacketLike(current)
			packets = append(packets, next)
			current = next
			continue
		}
		current.removeLastAnswer()
		current.TC = true
		next := continuationPacketLike(current)
		next.AddAnswer(ka)
		packets = append(packets, next)
		current = next
	}
	// The §17 carve-out above always opens a continuation packet in case
	// more known-answers follow. If the oversize record it carved out was
	// the last one, that continuation never received anything: drop it and
	// let the packet before it be the final one, TC unset.
	if len(packets) > 1 {
		last := packets[len(packets)-1]
		if len(last.Questions) == 0 && len(last.Answers) == 0 {
			packets = packets[:len(packets)-1]
			packets[len(packets)-1].TC = false
			packets[len(packets)-1].dirty = true
		}
	}
	return packets, nil
}

// BuildProbe assembles a single probe packet: the two ANY questions plus a
// canonically-sorted authority section. It never splits; if the result
// doesn't fit capBytes it fails with ProbeTooLarge.
func BuildProbe(id uint16, questions []domain.Question, authorities []domain.ResourceRecord, capBytes int) (*Packet, error) {
	p := &Packet{ID: id}
	for _, q := range questions {
		p.AddQuestion(q)
	}
	for _, rr := range SortRecordsCanonical(authorities) {
		p.AddAuthority(rr)
	}
	n, err := p.RealLength()
	if err != nil {
		return nil, err
	}
	if capBytes > 0 && n > capBytes {
		return nil, domain.NewCodecErr("BuildProbe", domain.ErrProbeTooLarge)
	}
	return p, nil
}

// BuildResponse assembles a response packet with AA always set. It never
// splits; if the result doesn't fit capBytes it fails with
// ResponseTooLarge, and the caller must decompose the record set itself.
func BuildResponse(id uint16, answers []domain.ResourceRecord, legacyUnicast bool, capBytes int) (*Packet, error) {
	p := &Packet{ID: id, IsResponse: true, AA: true, LegacyUnicast: legacyUnicast}
	for _, rr := range answers {
		p.AddAnswer(rr)
	}
	n, err := p.RealLength()
	if err != nil {
		return nil, err
	}
	if capBytes > 0 && n > capBytes {
		return nil, domain.NewCodecErr("BuildResponse", domain.ErrResponseTooLarge)
	}
	return p, nil
}
