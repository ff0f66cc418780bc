package jpegfrag

import "github.com/golang/glog"

// recoveryOutcome tells why a resynchronization search stopped.
type recoveryOutcome int

const (
	recoveredRestart recoveryOutcome = iota // Restart marker.
	recoveredStuffing                       // Stuffed 0xFF 0x00 pair.
	recoveredDC                             // Decodable DC symbol.
	stoppedEOI                              // EOI marker, not a resynchronization point.
	stoppedEOF                              // End of data.
	stoppedBudget                           // Budget exhausted.
)

var recoveryNames = [...]string{"restart marker", "stuffed 0xFF", "DC symbol", "EOI", "end of data", "budget exhausted"}

func (r recoveryOutcome) String() string {
	return recoveryNames[r]
}

func (r recoveryOutcome) ok() bool {
	return r <= recoveredDC
}

// recoveryScanner searches forward, one byte at a time, for a position where
// entropy-coded data plausibly resumes.
type recoveryScanner struct {
	c               *bitCursor
	dc              HuffmanDecoder // Luminance DC table.
	restartInterval int
}

// recover byte-aligns the cursor and probes at most budget byte positions. On
// success the cursor is left at the recovered position; it never moves backwards.
func (r *recoveryScanner) recover(budget int) recoveryOutcome {
	c := r.c
	if !c.byteAlign() {
		return stoppedEOF
	}

	start := c.offset()
	dcBits := r.dc.MaxCodeLength()

	for i := 0; i < budget; i++ {
		off := c.offset()

		// Markers are recognised on the physical bytes.
		b0, ok0 := c.rawAt(off)
		b1, ok1 := c.rawAt(off + 1)
		if ok0 && ok1 && b0 == 0xFF {
			switch {
			case b1 >= 0xD0 && b1 <= 0xD7 && r.restartInterval > 0:
				return r.done(recoveredRestart, start)
			case b1 == 0xD9:
				return r.done(stoppedEOI, start)
			case b1 == 0x00:
				return r.done(recoveredStuffing, start)
			}
		}

		if window, ok := c.peekBits(dcBits); ok {
			if symbol, length, ok := r.dc.Match(window, dcBits); ok && symbol <= 15 {
				if _, ok := c.peekBits(length + int(symbol)); ok {
					return r.done(recoveredDC, start)
				}
			}
		}

		if !c.skipBits(8) {
			return r.done(stoppedEOF, start)
		}
	}

	return r.done(stoppedBudget, start)
}

func (r *recoveryScanner) done(outcome recoveryOutcome, start int64) recoveryOutcome {
	if glog.V(2) {
		glog.Infof("jpegfrag: recovery from offset %d stopped at %d: %v", start, r.c.offset(), outcome)
	}

	return outcome
}
