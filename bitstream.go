package jpegfrag

import (
	"fmt"

	"github.com/chronos-tachyon/assert"
)

// Bitstream handling

// bitCursor is a bit-granular read head over the unescaped entropy-coded data.
// It only moves forward.
type bitCursor struct {
	src       *escapedSource
	bitOffset int // Bits already consumed from the current logical byte, 0-7.
	buf       [8]byte
}

// newBitCursor positions a cursor at byteOffset/bitOffset in src.
func newBitCursor(src ByteSource, byteOffset int64, bitOffset int) (*bitCursor, error) {
	if byteOffset < 0 || bitOffset < 0 || bitOffset > 7 {
		return nil, fmt.Errorf("%w: byte %d bit %d", ErrOffset, byteOffset, bitOffset)
	}

	var need int64
	if bitOffset > 0 {
		need = 1
	}

	if !src.Available(byteOffset, need) {
		return nil, fmt.Errorf("%w: byte %d is past the end of the input", ErrOffset, byteOffset)
	}

	return &bitCursor{src: newEscapedSource(src, byteOffset), bitOffset: bitOffset}, nil
}

// peekBits returns the next n bits (n <= 32), MSB first, without consuming them.
func (c *bitCursor) peekBits(n int) (uint32, bool) {
	assert.Assertf(n >= 0 && n <= 32, "peekBits: n %d out of range", n)

	if n == 0 {
		return 0, true
	}

	total := c.bitOffset + n
	nbytes := (total + 7) >> 3

	if _, ok := c.src.peek(c.buf[:nbytes]); !ok {
		return 0, false
	}

	var acc uint64
	for _, b := range c.buf[:nbytes] {
		acc = acc<<8 | uint64(b)
	}

	shift := nbytes<<3 - total
	mask := uint64(1)<<n - 1

	return uint32((acc >> shift) & mask), true
}

// skipBits consumes n bits. Nothing is consumed if the data is not available.
func (c *bitCursor) skipBits(n int) bool {
	total := c.bitOffset + n
	byteInc, next := total>>3, total&7

	// A partially consumed byte must exist too.
	need := byteInc
	if next > 0 {
		need++
	}

	if need > 0 {
		if _, ok := c.src.span(need); !ok {
			return false
		}
	}

	if byteInc > 0 && !c.src.skip(byteInc) {
		return false
	}

	c.bitOffset = next
	assert.Assertf(c.bitOffset >= 0 && c.bitOffset < 8, "bit offset %d out of range", c.bitOffset)

	return true
}

// byteAlign aligns the cursor to the next byte boundary.
func (c *bitCursor) byteAlign() bool {
	if c.bitOffset == 0 {
		return true
	}

	return c.skipBits(8 - c.bitOffset)
}

// paddingBits reports whether the unread bits of a partially consumed byte are all
// ones, the fill an encoder writes before a marker.
func (c *bitCursor) paddingBits() bool {
	if c.bitOffset == 0 {
		return true
	}

	n := 8 - c.bitOffset
	v, ok := c.peekBits(n)

	return ok && v == uint32(1)<<n-1
}

// offset returns the physical offset of the logical byte under the cursor.
// Stuffing bytes in front of it count as consumed.
func (c *bitCursor) offset() int64 {
	return c.src.offset + c.src.stuffedRun(c.src.offset)
}

// reportedOffset is the byte offset surfaced to callers: a partially consumed
// byte is rounded up, together with any stuffing that follows it.
func (c *bitCursor) reportedOffset() int64 {
	off := c.offset()
	if c.bitOffset > 0 {
		off++
		off += c.src.stuffedRun(off)
	}

	return off
}

// rawAt returns the physical byte at off, ignoring stuffing. Markers are
// recognised on physical bytes.
func (c *bitCursor) rawAt(off int64) (byte, bool) {
	return c.src.byteAt(off)
}
