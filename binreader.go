package rstab

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// BigEndianReader reads fixed-width primitives from a byte source,
// tracking position and failing with ErrUnexpectedEOF on a short read.
// Used by the PSARC TOC parser; LittleEndianReader is the counterpart
// for decompressed SNG sections.
type BigEndianReader struct {
	r   io.Reader
	pos int64
}

// NewBigEndianReader wraps r for big-endian fixed-width reads.
func NewBigEndianReader(r io.Reader) *BigEndianReader {
	return &BigEndianReader{r: r}
}

// Position returns the number of bytes consumed so far.
func (b *BigEndianReader) Position() int64 { return b.pos }

func (b *BigEndianReader) readFull(buf []byte) error {
	n, err := io.ReadFull(b.r, buf)
	b.pos += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedEOF, err)
	}
	return nil
}

// Bytes reads n raw bytes.
func (b *BigEndianReader) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Skip advances the reader by n bytes without retaining them.
func (b *BigEndianReader) Skip(n int) error {
	_, err := b.Bytes(n)
	return err
}

func (b *BigEndianReader) U8() (uint8, error) {
	buf, err := b.Bytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *BigEndianReader) U16() (uint16, error) {
	buf, err := b.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// U24 reads a 24-bit big-endian unsigned integer, most-significant byte
// first, into a 64-bit accumulator.
func (b *BigEndianReader) U24() (uint64, error) {
	return b.uintN(3)
}

func (b *BigEndianReader) U32() (uint32, error) {
	buf, err := b.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// U40 reads a 40-bit big-endian unsigned integer.
func (b *BigEndianReader) U40() (uint64, error) {
	return b.uintN(5)
}

func (b *BigEndianReader) U64() (uint64, error) {
	buf, err := b.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

func (b *BigEndianReader) I16() (int16, error) {
	v, err := b.U16()
	return int16(v), err
}

func (b *BigEndianReader) I32() (int32, error) {
	v, err := b.U32()
	return int32(v), err
}

func (b *BigEndianReader) I64() (int64, error) {
	v, err := b.U64()
	return int64(v), err
}

func (b *BigEndianReader) F32() (float32, error) {
	v, err := b.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (b *BigEndianReader) F64() (float64, error) {
	v, err := b.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// uintN reads an n-byte (n <= 8) big-endian unsigned integer,
// most-significant byte first.
func (b *BigEndianReader) uintN(n int) (uint64, error) {
	buf, err := b.Bytes(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range buf {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// LittleEndianReader is the little-endian counterpart used after SNG
// decompression.
type LittleEndianReader struct {
	r   io.Reader
	pos int64
}

func NewLittleEndianReader(r io.Reader) *LittleEndianReader {
	return &LittleEndianReader{r: r}
}

func (l *LittleEndianReader) Position() int64 { return l.pos }

func (l *LittleEndianReader) readFull(buf []byte) error {
	n, err := io.ReadFull(l.r, buf)
	l.pos += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedEOF, err)
	}
	return nil
}

func (l *LittleEndianReader) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := l.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (l *LittleEndianReader) Skip(n int) error {
	_, err := l.Bytes(n)
	return err
}

func (l *LittleEndianReader) U8() (uint8, error) {
	buf, err := l.Bytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (l *LittleEndianReader) U16() (uint16, error) {
	buf, err := l.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (l *LittleEndianReader) U32() (uint32, error) {
	buf, err := l.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (l *LittleEndianReader) U64() (uint64, error) {
	buf, err := l.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (l *LittleEndianReader) I16() (int16, error) {
	v, err := l.U16()
	return int16(v), err
}

func (l *LittleEndianReader) I32() (int32, error) {
	v, err := l.U32()
	return int32(v), err
}

func (l *LittleEndianReader) I64() (int64, error) {
	v, err := l.U64()
	return int64(v), err
}

func (l *LittleEndianReader) F32() (float32, error) {
	v, err := l.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (l *LittleEndianReader) F64() (float64, error) {
	v, err := l.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// asciiZ decodes a fixed-size null-padded byte run as US-ASCII up to the
// first null byte.
func asciiZ(buf []byte) string {
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
