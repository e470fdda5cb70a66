package midifile

import "io"

// maxVarLenBytes is the longest quantity a MIDI file may hold.
const maxVarLenBytes = 4

// ReadVarLen decodes a MIDI variable length quantity: 7 bits per byte, most
// significant group first, high bit set on every byte but the last.
//
// io.EOF is returned only when no byte at all could be read. Running out of
// data in the middle of the quantity returns io.ErrUnexpectedEOF. A quantity
// longer than four bytes does not fit in 28 bits and is rejected with
// ErrMalformed.
func ReadVarLen(r io.ByteReader) (uint32, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b < 0x80 {
		return uint32(b), nil
	}

	value := uint32(b & 0x7f)
	for n := 1; b >= 0x80; n++ {
		if n == maxVarLenBytes {
			return 0, malformed("variable length quantity longer than %d bytes", maxVarLenBytes)
		}
		b, err = r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		value = value<<7 | uint32(b&0x7f)
	}
	return value, nil
}

// AppendVarLen appends the variable length encoding of v to dst.
func AppendVarLen(dst []byte, v uint32) []byte {
	var tmp [5]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7f)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7f) | 0x80
	}
	return append(dst, tmp[i:]...)
}
