package jpegfrag

// windowSize is the number of physical bytes fetched from the ByteSource at once.
const windowSize = 4096

// escapedSource is a forward-only view over a ByteSource that removes JPEG
// byte stuffing. Whenever the byte preceding a position is 0xFF, a following
// 0x00 or 0xFF is a stuffing byte and does not appear in the logical output.
type escapedSource struct {
	src    ByteSource
	offset int64 // Physical offset of the next logical byte (may point at a stuffing byte).

	win    []byte // Cached physical window.
	winOff int64  // Physical offset of win[0].

	scratch [8]byte
}

func newEscapedSource(src ByteSource, offset int64) *escapedSource {
	return &escapedSource{src: src, offset: offset}
}

// byteAt returns the physical byte at off.
func (e *escapedSource) byteAt(off int64) (byte, bool) {
	if off >= e.winOff && off < e.winOff+int64(len(e.win)) {
		return e.win[off-e.winOff], true
	}

	if !e.src.Available(off, 1) {
		return 0, false
	}

	// Shrink the window near the end of the source.
	n := int64(windowSize)
	for n > 1 && !e.src.Available(off, n) {
		n >>= 1
	}

	b, err := e.src.Read(off, int(n))
	if err != nil || len(b) == 0 {
		return 0, false
	}

	e.win = b
	e.winOff = off

	return b[0], true
}

// peek fills dst with len(dst) logical bytes starting at the current offset and
// returns the number of physical bytes they span. It reports false if the source
// cannot supply enough bytes.
func (e *escapedSource) peek(dst []byte) (int, bool) {
	var prev byte
	if e.offset > 0 {
		b, ok := e.byteAt(e.offset - 1)
		if !ok {
			return 0, false
		}

		prev = b
	}

	skipped := 0
	for i := 0; i < len(dst)+skipped; i++ {
		cur, ok := e.byteAt(e.offset + int64(i))
		if !ok {
			return 0, false
		}

		if prev == 0xFF && (cur == 0x00 || cur == 0xFF) {
			// Stuffing byte.
			skipped++
		} else {
			dst[i-skipped] = cur
		}

		prev = cur
	}

	return len(dst) + skipped, true
}

// stuffedRun returns the number of stuffing bytes starting at physical offset off.
func (e *escapedSource) stuffedRun(off int64) int64 {
	prev, ok := e.byteAt(off - 1)
	if !ok {
		return 0
	}

	var n int64
	for prev == 0xFF {
		cur, ok := e.byteAt(off + n)
		if !ok || (cur != 0x00 && cur != 0xFF) {
			break
		}

		n++
		prev = cur
	}

	return n
}

// span returns the physical length of the next n logical bytes.
func (e *escapedSource) span(n int) (int, bool) {
	dst := e.scratch[:]
	if n > len(dst) {
		dst = make([]byte, n)
	}

	return e.peek(dst[:n])
}

// skip advances past n logical bytes. The offset is left untouched on failure.
func (e *escapedSource) skip(n int) bool {
	physical, ok := e.span(n)
	if !ok {
		return false
	}

	if !e.src.Available(e.offset, int64(physical)) {
		return false
	}

	e.offset += int64(physical)

	return true
}
