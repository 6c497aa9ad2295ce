package wire

import (
	"encoding/binary"
	"net"
	"sort"

	"github.com/mdnsgo/mdns/internal/mdns/domain"
)

// appendUint32 is the 32-bit counterpart of appendUint16.
func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// EncodeQuestion appends a single question entry to buf using coder for
// name compression.
func EncodeQuestion(buf []byte, coder *LabelCoder, q domain.Question) ([]byte, error) {
	var err error
	buf, _, err = coder.Encode(buf, len(buf), q.Name)
	if err != nil {
		return nil, err
	}
	buf = appendUint16(buf, uint16(q.Type))
	buf = appendUint16(buf, domain.EncodeQuestionClass(q.Class, q.UnicastResponse))
	return buf, nil
}

// DecodeQuestion parses a single question entry from data at offset,
// returning the question and the number of bytes consumed.
func DecodeQuestion(data []byte, offset int) (domain.Question, int, error) {
	name, n, err := DecodeName(data, offset)
	if err != nil {
		return domain.Question{}, 0, err
	}
	pos := offset + n
	if pos+4 > len(data) {
		return domain.Question{}, 0, domain.NewCodecErrAt("DecodeQuestion", pos, domain.ErrShortBuffer)
	}
	qtype := domain.RRType(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	classRaw := binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2
	class, unicast := domain.SplitQuestionClass(classRaw)
	return domain.Question{Name: name, Type: qtype, Class: class, UnicastResponse: unicast}, pos - offset, nil
}

// UncompressedQuestionLen returns the question's encoded length assuming no
// compression, used for upper-bound size estimates.
func UncompressedQuestionLen(q domain.Question) int {
	return q.Name.WireLen() + 4
}

// EncodeRecord appends a single resource record to buf: name, type, class
// (with the cache-flush bit folded in), TTL, rdlength, and rdata. legacyUnicast
// controls whether the SRV target is compressed (§4.2).
func EncodeRecord(buf []byte, coder *LabelCoder, rr domain.ResourceRecord, legacyUnicast bool) ([]byte, error) {
	var err error
	buf, _, err = coder.Encode(buf, len(buf), rr.Name)
	if err != nil {
		return nil, err
	}
	buf = appendUint16(buf, uint16(rr.Type))

	if rr.Type == domain.RRTypeOPT {
		opt, ok := rr.Rdata.(domain.OPTRdata)
		if !ok {
			return nil, domain.NewCodecErr("EncodeRecord:OPT", domain.ErrMalformedRecord)
		}
		buf = appendUint16(buf, uint16(rr.Class))
		buf = appendUint32(buf, packOPTTTL(opt))
	} else {
		buf = appendUint16(buf, domain.EncodeRecordClass(rr.Class, rr.CacheFlush))
		buf = appendUint32(buf, rr.TTL)
	}

	rdlenPos := len(buf)
	buf = appendUint16(buf, 0)
	rdataStart := len(buf)
	buf, err = encodeRdata(buf, coder, rr, legacyUnicast)
	if err != nil {
		return nil, err
	}
	rdlen := len(buf) - rdataStart
	if rdlen > 65535 {
		return nil, domain.NewCodecErr("EncodeRecord", domain.ErrMalformedRecord)
	}
	binary.BigEndian.PutUint16(buf[rdlenPos:rdlenPos+2], uint16(rdlen))
	return buf, nil
}

func packOPTTTL(opt domain.OPTRdata) uint32 {
	ttl := uint32(opt.ExtendedRCode) << 24
	ttl |= uint32(opt.Version) << 16
	if opt.DNSSECOK {
		ttl |= 1 << 15
	}
	return ttl
}

func unpackOPTTTL(ttl uint32) (extRCode, version uint8, dnssecOK bool) {
	extRCode = uint8(ttl >> 24)
	version = uint8(ttl >> 16)
	dnssecOK = (ttl>>15)&0x1 == 1
	return
}

func encodeRdata(buf []byte, coder *LabelCoder, rr domain.ResourceRecord, legacyUnicast bool) ([]byte, error) {
	var err error
	switch d := rr.Rdata.(type) {
	case domain.ARdata:
		ip4 := d.IP.To4()
		if ip4 == nil {
			return nil, domain.NewCodecErr("encodeRdata:A", domain.ErrMalformedRecord)
		}
		buf = append(buf, ip4...)
	case domain.AAAARdata:
		if d.IP.To4() != nil || d.IP.To16() == nil {
			return nil, domain.NewCodecErr("encodeRdata:AAAA", domain.ErrMalformedRecord)
		}
		buf = append(buf, d.IP.To16()...)
	case domain.PTRRdata:
		buf, _, err = coder.Encode(buf, len(buf), d.Target)
		if err != nil {
			return nil, err
		}
	case domain.CNAMERdata:
		buf, _, err = coder.Encode(buf, len(buf), d.Target)
		if err != nil {
			return nil, err
		}
	case domain.SRVRdata:
		buf = appendUint16(buf, d.Priority)
		buf = appendUint16(buf, d.Weight)
		buf = appendUint16(buf, d.Port)
		if legacyUnicast {
			buf, _ = EncodeNonCompressed(buf, d.Target)
		} else {
			buf, _, err = coder.Encode(buf, len(buf), d.Target)
			if err != nil {
				return nil, err
			}
		}
	case domain.TXTRdata:
		if len(d.Strings) == 0 {
			buf = append(buf, 0)
			break
		}
		for _, s := range d.Strings {
			if len(s) > 255 {
				return nil, domain.NewCodecErr("encodeRdata:TXT", domain.ErrMalformedRecord)
			}
			buf = append(buf, byte(len(s)))
			buf = append(buf, s...)
		}
	case domain.NSECRdata:
		buf, _ = EncodeNonCompressed(buf, d.NextName)
		buf = encodeNSECBitmap(buf, d.Types)
	case domain.OPTRdata:
		for _, opt := range d.Options {
			buf = appendUint16(buf, opt.Code)
			buf = appendUint16(buf, uint16(len(opt.Data)))
			buf = append(buf, opt.Data...)
		}
	case domain.RawRdata:
		buf = append(buf, d.Bytes...)
	default:
		return nil, domain.NewCodecErr("encodeRdata", domain.ErrMalformedRecord)
	}
	return buf, nil
}

// encodeNSECBitmap emits the type-bitmap window blocks of RFC 4034 §4.1.2.
func encodeNSECBitmap(buf []byte, types []domain.RRType) []byte {
	windows := make(map[byte][]byte)
	for _, t := range types {
		v := uint16(t)
		win := byte(v >> 8)
		idx := byte(v)
		bm, ok := windows[win]
		if !ok {
			bm = make([]byte, 32)
		}
		bm[idx/8] |= 1 << (7 - idx%8)
		windows[win] = bm
	}
	winNums := make([]byte, 0, len(windows))
	for w := range windows {
		winNums = append(winNums, w)
	}
	sort.Slice(winNums, func(i, j int) bool { return winNums[i] < winNums[j] })
	for _, w := range winNums {
		bm := windows[w]
		length := len(bm)
		for length > 1 && bm[length-1] == 0 {
			length--
		}
		buf = append(buf, w, byte(length))
		buf = append(buf, bm[:length]...)
	}
	return buf
}

func decodeNSECBitmap(block []byte) ([]domain.RRType, error) {
	var types []domain.RRType
	p := 0
	for p < len(block) {
		if p+2 > len(block) {
			return nil, domain.NewCodecErr("decodeNSECBitmap", domain.ErrShortBuffer)
		}
		win := block[p]
		length := int(block[p+1])
		p += 2
		if length == 0 || length > 32 || p+length > len(block) {
			return nil, domain.NewCodecErr("decodeNSECBitmap", domain.ErrMalformedRecord)
		}
		for i := 0; i < length; i++ {
			b := block[p+i]
			for bit := 0; bit < 8; bit++ {
				if b&(1<<(7-bit)) != 0 {
					types = append(types, domain.RRType(uint16(win)<<8|uint16(i*8+bit)))
				}
			}
		}
		p += length
	}
	return types, nil
}

// nsecBitmapLen returns the encoded length of a type bitmap without
// actually building it, for uncompressed size estimates.
func nsecBitmapLen(types []domain.RRType) int {
	windows := make(map[byte]int)
	for _, t := range types {
		v := uint16(t)
		win := byte(v >> 8)
		idx := int(byte(v)) / 8
		if idx+1 > windows[win] {
			windows[win] = idx + 1
		}
	}
	total := 0
	for _, length := range windows {
		total += 2 + length
	}
	return total
}

// DecodeRecord parses a single resource record from data at offset,
// returning the record and the number of bytes consumed.
func DecodeRecord(data []byte, offset int) (domain.ResourceRecord, int, error) {
	name, n, err := DecodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	pos := offset + n
	if pos+10 > len(data) {
		return domain.ResourceRecord{}, 0, domain.NewCodecErrAt("DecodeRecord", pos, domain.ErrShortBuffer)
	}
	rtype := domain.RRType(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	classRaw := binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2
	ttl := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	rdlen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if pos+rdlen > len(data) {
		return domain.ResourceRecord{}, 0, domain.NewCodecErrAt("DecodeRecord", pos, domain.ErrShortBuffer)
	}

	if rtype == domain.RRTypeOPT {
		rdata, err := decodeRdata(data, pos, rtype, rdlen)
		if err != nil {
			return domain.ResourceRecord{}, 0, err
		}
		opt := rdata.(domain.OPTRdata)
		opt.ExtendedRCode, opt.Version, opt.DNSSECOK = unpackOPTTTL(ttl)
		return domain.ResourceRecord{
			Name:  name,
			Type:  rtype,
			Class: domain.RRClass(classRaw),
			TTL:   ttl,
			Rdata: opt,
		}, pos + rdlen - offset, nil
	}

	class, cacheFlush := domain.SplitRecordClass(classRaw)
	rdata, err := decodeRdata(data, pos, rtype, rdlen)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	return domain.ResourceRecord{
		Name:       name,
		Type:       rtype,
		Class:      class,
		CacheFlush: cacheFlush,
		TTL:        ttl,
		Rdata:      rdata,
	}, pos + rdlen - offset, nil
}

func decodeRdata(data []byte, offset int, rtype domain.RRType, rdlen int) (domain.Rdata, error) {
	end := offset + rdlen
	switch rtype {
	case domain.RRTypeA:
		if rdlen != 4 {
			return nil, domain.NewCodecErrAt("decodeRdata:A", offset, domain.ErrMalformedRecord)
		}
		ip := make(net.IP, 4)
		copy(ip, data[offset:end])
		return domain.ARdata{IP: ip}, nil
	case domain.RRTypeAAAA:
		if rdlen != 16 {
			return nil, domain.NewCodecErrAt("decodeRdata:AAAA", offset, domain.ErrMalformedRecord)
		}
		ip := make(net.IP, 16)
		copy(ip, data[offset:end])
		return domain.AAAARdata{IP: ip}, nil
	case domain.RRTypePTR:
		name, _, err := DecodeName(data, offset)
		if err != nil {
			return nil, err
		}
		return domain.PTRRdata{Target: name}, nil
	case domain.RRTypeCNAME:
		name, _, err := DecodeName(data, offset)
		if err != nil {
			return nil, err
		}
		return domain.CNAMERdata{Target: name}, nil
	case domain.RRTypeSRV:
		if rdlen < 7 {
			return nil, domain.NewCodecErrAt("decodeRdata:SRV", offset, domain.ErrMalformedRecord)
		}
		priority := binary.BigEndian.Uint16(data[offset : offset+2])
		weight := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		port := binary.BigEndian.Uint16(data[offset+4 : offset+6])
		target, _, err := DecodeName(data, offset+6)
		if err != nil {
			return nil, err
		}
		return domain.SRVRdata{Priority: priority, Weight: weight, Port: port, Target: target}, nil
	case domain.RRTypeTXT:
		if rdlen == 1 && data[offset] == 0 {
			// A lone zero-length string is the encoding of an empty TXT record.
			return domain.TXTRdata{}, nil
		}
		var strs [][]byte
		p := offset
		for p < end {
			l := int(data[p])
			p++
			if p+l > end {
				return nil, domain.NewCodecErrAt("decodeRdata:TXT", p, domain.ErrMalformedRecord)
			}
			s := make([]byte, l)
			copy(s, data[p:p+l])
			strs = append(strs, s)
			p += l
		}
		return domain.TXTRdata{Strings: strs}, nil
	case domain.RRTypeNSEC:
		name, consumed, err := DecodeName(data, offset)
		if err != nil {
			return nil, err
		}
		bitmapStart := offset + consumed
		if bitmapStart > end {
			return nil, domain.NewCodecErrAt("decodeRdata:NSEC", bitmapStart, domain.ErrMalformedRecord)
		}
		types, err := decodeNSECBitmap(data[bitmapStart:end])
		if err != nil {
			return nil, err
		}
		return domain.NSECRdata{NextName: name, Types: types}, nil
	case domain.RRTypeOPT:
		var opts []domain.OPTOption
		p := offset
		for p+4 <= end {
			code := binary.BigEndian.Uint16(data[p : p+2])
			l := int(binary.BigEndian.Uint16(data[p+2 : p+4]))
			p += 4
			if p+l > end {
				return nil, domain.NewCodecErrAt("decodeRdata:OPT", p, domain.ErrMalformedRecord)
			}
			d := make([]byte, l)
			copy(d, data[p:p+l])
			opts = append(opts, domain.OPTOption{Code: code, Data: d})
			p += l
		}
		return domain.OPTRdata{Options: opts}, nil
	default:
		raw := make([]byte, rdlen)
		copy(raw, data[offset:end])
		return domain.RawRdata{WireType: rtype, Bytes: raw}, nil
	}
}

// UncompressedRecordLen returns the record's encoded length assuming no
// name compression anywhere, used for upper-bound size estimates and for
// sorting known-answers by length before greedy packing (§4.3).
func UncompressedRecordLen(rr domain.ResourceRecord) int {
	return rr.Name.WireLen() + 10 + uncompressedRdataLen(rr.Rdata)
}

func uncompressedRdataLen(rd domain.Rdata) int {
	switch d := rd.(type) {
	case domain.ARdata:
		return 4
	case domain.AAAARdata:
		return 16
	case domain.PTRRdata:
		return d.Target.WireLen()
	case domain.CNAMERdata:
		return d.Target.WireLen()
	case domain.SRVRdata:
		return 6 + d.Target.WireLen()
	case domain.TXTRdata:
		if len(d.Strings) == 0 {
			return 1
		}
		n := 0
		for _, s := range d.Strings {
			n += 1 + len(s)
		}
		return n
	case domain.NSECRdata:
		return d.NextName.WireLen() + nsecBitmapLen(d.Types)
	case domain.OPTRdata:
		n := 0
		for _, o := range d.Options {
			n += 4 + len(o.Data)
		}
		return n
	case domain.RawRdata:
		return len(d.Bytes)
	default:
		return 0
	}
}
