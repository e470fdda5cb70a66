package midifile

import "io"

// Channel event status range and the sub-range carrying a single data byte.
const (
	firstChannelStatus = 0x80
	lastChannelStatus  = 0xef
	first1ByteStatus   = 0xc0
	last1ByteStatus    = 0xdf

	metaPrefix   = 0xff
	lastMetaType = 0x7f
)

// initialBufferSize is the starting capacity of the buffer used for meta,
// sysex and escape payloads. It grows to fit the largest payload seen.
const initialBufferSize = 20

// byteSource is what the decoder reads from: a whole track held in memory
// (bytes.Reader) or a bounded buffer over a file (bufio.Reader).
type byteSource interface {
	io.Reader
	io.ByteReader
}

// decoder turns the bytes of one track into status/payload pairs. It keeps
// the running status and reuses its buffers from one message to the next,
// so the payload returned by next is only valid until the following call.
type decoder struct {
	src     byteSource
	offset  int64
	limit   int64
	running byte

	buf  []byte
	buf1 [1]byte
	buf2 [2]byte
}

// newDecoder reads at most limit bytes from src, the length of the track.
func newDecoder(src byteSource, limit int64) *decoder {
	return &decoder{
		src:   src,
		limit: limit,
		buf:   make([]byte, initialBufferSize),
	}
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.src.ReadByte()
	if err != nil {
		return 0, d.fail(err)
	}
	d.offset++
	return b, nil
}

func (d *decoder) readVarLen() (uint32, error) {
	v, err := ReadVarLen(countingReader{d})
	if err != nil {
		return 0, d.fail(err)
	}
	return v, nil
}

// fail converts an end of data inside a record into ErrTruncated and tags
// the error with the current offset.
func (d *decoder) fail(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = ErrTruncated
	}
	return &FormatError{Offset: d.offset, Err: err}
}

// delta reads the delta time that starts every record. A clean end of data
// here is reported as io.EOF, it is the normal end of a track.
func (d *decoder) delta() (uint32, error) {
	v, err := ReadVarLen(countingReader{d})
	if err == io.EOF {
		return 0, io.EOF
	}
	if err != nil {
		return 0, d.fail(err)
	}
	return v, nil
}

// next decodes one message. For channel events status is the status byte as
// found in the file (channel nibble included); for meta events it is the meta
// type; for sysex and escape it is 0xf0 or 0xf7.
func (d *decoder) next() (status byte, data []byte, err error) {
	b, err := d.readByte()
	if err != nil {
		return 0, nil, err
	}

	switch {
	case b < 0x80:
		if d.running == 0 {
			return 0, nil, &FormatError{Offset: d.offset - 1,
				Err: malformed("running status with no prior channel event")}
		}
		return d.channel(d.running, b)

	case b <= lastChannelStatus:
		d.running = b
		first, err := d.readByte()
		if err != nil {
			return 0, nil, err
		}
		return d.channel(b, first)

	case b == metaPrefix:
		kind, err := d.readByte()
		if err != nil {
			return 0, nil, err
		}
		if kind > lastMetaType {
			return 0, nil, &FormatError{Offset: d.offset - 1,
				Err: malformed("meta event type 0x%02x not in range 0x00-0x7f", kind)}
		}
		data, err := d.payload()
		return kind, data, err

	case b == SysEx || b == Escape:
		data, err := d.payload()
		return b, data, err
	}

	return 0, nil, &FormatError{Offset: d.offset - 1,
		Err: malformed("system common/real time status 0x%02x not allowed in midi files", b)}
}

func (d *decoder) channel(status, first byte) (byte, []byte, error) {
	if status >= first1ByteStatus && status <= last1ByteStatus {
		d.buf1[0] = first
		return status, d.buf1[:], nil
	}
	second, err := d.readByte()
	if err != nil {
		return 0, nil, err
	}
	d.buf2[0] = first
	d.buf2[1] = second
	return status, d.buf2[:], nil
}

// payload reads a variable length field followed by that many bytes into the
// shared buffer, growing it when needed.
func (d *decoder) payload() ([]byte, error) {
	n, err := d.readVarLen()
	if err != nil {
		return nil, err
	}
	if int64(n) > d.limit-d.offset {
		return nil, d.fail(io.ErrUnexpectedEOF)
	}
	if int(n) > len(d.buf) {
		d.buf = make([]byte, n)
	}
	data := d.buf[:n]
	read, err := io.ReadFull(d.src, data)
	d.offset += int64(read)
	if err != nil {
		return nil, d.fail(err)
	}
	return data, nil
}

// countingReader advances the decoder offset for bytes read through
// ReadVarLen.
type countingReader struct{ d *decoder }

func (c countingReader) ReadByte() (byte, error) {
	b, err := c.d.src.ReadByte()
	if err == nil {
		c.d.offset++
	}
	return b, err
}
