package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// rawEncoder/rawDecoder give the store package its own minimal
// length-prefixed byte-blob codec for values that are opaque outside this
// package (sub-epoch challenge segments), independent of the block/record
// codecs owned by consensus/types and consensus/blockrecord.
type rawEncoder struct {
	buf *bytes.Buffer
}

func newRawEncoder() *rawEncoder { return &rawEncoder{buf: new(bytes.Buffer)} }

func (e *rawEncoder) bytes() []byte { return e.buf.Bytes() }

func (e *rawEncoder) writeU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *rawEncoder) writeBytes(b []byte) {
	e.writeU64(uint64(len(b)))
	e.buf.Write(b)
}

type rawDecoder struct {
	r io.Reader
}

func newRawDecoder(data []byte) *rawDecoder { return &rawDecoder{r: bytes.NewReader(data)} }

func (d *rawDecoder) readU64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("store: reading uint64: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (d *rawDecoder) readBytes() ([]byte, error) {
	n, err := d.readU64()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, fmt.Errorf("store: reading %d bytes: %w", n, err)
	}
	return b, nil
}
