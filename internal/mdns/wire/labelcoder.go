// Package wire implements the mDNS wire codec: name compression, typed
// resource record encoding/decoding, and packet assembly (RFC 1035 §4.1.4,
// constrained by RFC 6762).
package wire

import (
	"encoding/binary"

	"github.com/mdnsgo/mdns/internal/mdns/domain"
)

// maxPointerHops bounds the number of compression pointers a single name
// decode may follow before giving up on a cyclic or adversarial message.
const maxPointerHops = 128

// maxCompressiblePointer is the largest offset a 14-bit compression pointer
// can address (RFC 1035 §4.1.4).
const maxCompressiblePointer = 0x3FFF

// LabelCoder encodes DNS names with RFC 1035 §4.1.4 pointer compression. It
// owns a map from a name's lower-cased label sequence to the buffer offset
// at which that sequence first appeared, valid for the lifetime of one
// packet encode. Callers must call Reset (or take a fresh LabelCoder)
// between independent encodes.
type LabelCoder struct {
	offsets map[string]int
}

// NewLabelCoder returns a LabelCoder with an empty compression table.
func NewLabelCoder() *LabelCoder {
	return &LabelCoder{offsets: make(map[string]int)}
}

// Reset clears the compression table so the coder can be reused for a new
// packet.
func (c *LabelCoder) Reset() {
	c.offsets = make(map[string]int)
}

// Encode writes name to buf starting at absoluteOffset (buf's length before
// this call), compressing against any suffix already registered in this
// coder's table, and registers every new suffix it writes for later reuse.
// It returns the number of bytes written.
func (c *LabelCoder) Encode(buf []byte, absoluteOffset int, name domain.Name) ([]byte, int, error) {
	labels := name.Labels()
	written := 0
	for i := range labels {
		suffix := name.Suffix(i)
		pos := absoluteOffset + written
		if off, ok := c.offsets[suffix.LowerKey()]; ok {
			ptr := uint16(0xC000 | off)
			buf = appendUint16(buf, ptr)
			written += 2
			return buf, written, nil
		}
		if pos <= maxCompressiblePointer {
			c.offsets[suffix.LowerKey()] = pos
		}
		label := labels[i]
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
		written += 1 + len(label)
	}
	buf = append(buf, 0)
	written++
	return buf, written, nil
}

// EncodeNonCompressed writes name to buf in full, never emitting a pointer
// and never consulting or updating a compression table. Used to measure an
// uncompressed upper bound and to encode SRV targets in legacy-unicast
// responses (§4.1).
func EncodeNonCompressed(buf []byte, name domain.Name) ([]byte, int) {
	written := 0
	for _, label := range name.Labels() {
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
		written += 1 + len(label)
	}
	buf = append(buf, 0)
	written++
	return buf, written
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DecodeName parses a name from data starting at offset, following
// compression pointers as needed. It returns the decoded name and the
// number of bytes consumed from the *original* offset up to and including
// the terminating zero byte or the first pointer encountered (pointer hops
// after that consume no additional bytes of the enclosing record).
func DecodeName(data []byte, offset int) (domain.Name, int, error) {
	var labels []string
	pos := offset
	consumed := -1
	hops := 0
	totalLen := 1 // zero terminator

	for {
		if pos >= len(data) {
			return domain.Name{}, 0, domain.NewCodecErrAt("DecodeName", pos, domain.ErrShortBuffer)
		}
		lengthByte := data[pos]
		switch {
		case lengthByte == 0:
			if consumed == -1 {
				consumed = pos + 1 - offset
			}
			pos++
			return finishDecode(labels, consumed)
		case lengthByte&0xC0 == 0xC0:
			if pos+1 >= len(data) {
				return domain.Name{}, 0, domain.NewCodecErrAt("DecodeName", pos, domain.ErrShortBuffer)
			}
			ptr := int(binary.BigEndian.Uint16(data[pos:pos+2]) & maxCompressiblePointer)
			if consumed == -1 {
				consumed = pos + 2 - offset
			}
			if ptr >= pos {
				return domain.Name{}, 0, domain.NewCodecErrAt("DecodeName", pos, domain.ErrMalformedName)
			}
			hops++
			if hops > maxPointerHops {
				return domain.Name{}, 0, domain.NewCodecErrAt("DecodeName", pos, domain.ErrMalformedName)
			}
			pos = ptr
		case lengthByte&0xC0 != 0:
			return domain.Name{}, 0, domain.NewCodecErrAt("DecodeName", pos, domain.ErrMalformedName)
		default:
			length := int(lengthByte)
			pos++
			if pos+length > len(data) {
				return domain.Name{}, 0, domain.NewCodecErrAt("DecodeName", pos, domain.ErrShortBuffer)
			}
			labels = append(labels, string(data[pos:pos+length]))
			totalLen += length + 1
			if totalLen > 255 {
				return domain.Name{}, 0, domain.NewCodecErrAt("DecodeName", pos, domain.ErrMalformedName)
			}
			pos += length
		}
	}
}

func finishDecode(labels []string, consumed int) (domain.Name, int, error) {
	if len(labels) == 0 {
		return domain.Name{}, 0, domain.NewCodecErr("DecodeName", domain.ErrMalformedName)
	}
	name, err := domain.NewNameFromLabels(labels)
	if err != nil {
		return domain.Name{}, 0, err
	}
	return name, consumed, nil
}
