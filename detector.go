package jpegfrag

import (
	"github.com/golang/glog"
)

// detector drives the MCU validator across the entropy-coded data and tracks
// which stretches of it form fragments.
//
// It alternates between two states. Outside a fragment it waits for
// opts.ConfirmMCUs consecutive valid MCUs; inside a fragment every valid MCU
// extends it and the first invalid one closes it. After every failure the
// recovery scanner looks for the next place where decoding can resume.
type detector struct {
	cfg   *ScanConfig
	opts  *Options
	c     *bitCursor
	mcu   *mcuValidator
	rec   *recoveryScanner
	total int64 // Expected number of MCUs.

	inside      bool
	firstFrag   bool
	fragStart   int64
	lastValid   int64 // End of the last valid MCU.
	consecutive int
	runStart    int64 // Start of the current run of valid MCUs.
	fragMCUs    int64

	index    int64 // MCU index, continued across failures.
	points   []int64
	failures []Diagnostic
	offset   int64 // Diagnostic offset.
	failed   bool
}

func newDetector(cfg *ScanConfig, c *bitCursor, opts *Options) *detector {
	return &detector{
		cfg:  cfg,
		opts: opts,
		c:    c,
		mcu:  newMCUValidator(cfg, c),
		rec: &recoveryScanner{
			c:               c,
			dc:              cfg.DC[cfg.Components[0].DCTable],
			restartInterval: cfg.RestartInterval,
		},
		total:     cfg.mcuCount(),
		firstFrag: true,
		fragStart: cfg.EntropyStart,
		lastValid: cfg.EntropyStart,
		offset:    cfg.EntropyStart,
	}
}

// run sweeps the entropy-coded data until it is exhausted or recovery gives up.
func (d *detector) run() {
	c := d.c

	for {
		if d.atEOI() {
			if !d.handleEOI() {
				break
			}

			continue
		}

		before := c.reportedOffset()
		start := c.offset()

		reason, channel, ok := d.restart(d.index)
		if ok {
			reason, channel, ok = d.mcu.validate()
		}

		if ok {
			d.valid(start)
		} else {
			d.invalid(Diagnostic{MCU: d.index, Offset: before, Reason: reason, Channel: channel})

			// A failure that consumed nothing would be retried at the same place.
			if c.reportedOffset() == before && !c.skipBits(8) {
				break
			}

			outcome := d.rec.recover(d.opts.RecoveryBudget)
			if !outcome.ok() && outcome != stoppedEOI {
				break
			}
		}

		d.index++
	}

	d.closeFragment()

	if d.failed {
		return
	}

	// One last restart marker check at the end of the scan, for reporting only.
	d.offset = d.lastValid
	if _, _, ok := d.restart(d.total); ok {
		d.offset = c.reportedOffset()
	}
}

// atEOI reports whether the cursor is at an EOI marker. A partially consumed
// byte only counts if the rest of it is padding.
func (d *detector) atEOI() bool {
	c := d.c
	if !c.paddingBits() {
		return false
	}

	off := c.reportedOffset()
	b0, ok0 := c.rawAt(off)
	b1, ok1 := c.rawAt(off + 1)

	return ok0 && ok1 && b0 == 0xFF && b1 == 0xD9
}

// handleEOI closes the current fragment, skips the marker and searches for
// more entropy-coded data behind it, e.g. a second image or an appended
// fragment. It reports whether scanning continues.
func (d *detector) handleEOI() bool {
	c := d.c

	if glog.V(2) {
		glog.Infof("jpegfrag: EOI at offset %d, MCU %d of %d", c.reportedOffset(), d.index, d.total)
	}

	d.closeFragment()
	d.consecutive = 0

	if !c.byteAlign() || !c.skipBits(16) {
		return false
	}

	outcome := d.rec.recover(2 * d.opts.RecoveryBudget)

	return outcome.ok() || outcome == stoppedEOI
}

// restart checks the restart marker due before MCU index, if any. The marker
// is consumed on success.
func (d *detector) restart(index int64) (string, string, bool) {
	r := int64(d.cfg.RestartInterval)
	if index == 0 || r == 0 || index%r != 0 {
		return "", "", true
	}

	c := d.c
	if !c.byteAlign() {
		return ReasonRestart, "", false
	}

	want := uint32(0xFF00) | uint32(0xD0+((index/r-1)%8))
	if got, ok := c.peekBits(16); !ok || got != want {
		return ReasonRestart, "", false
	}

	if !c.skipBits(16) {
		return ReasonRestart, "", false
	}

	return "", "", true
}

// valid records a valid MCU that started at start.
func (d *detector) valid(start int64) {
	d.lastValid = d.c.reportedOffset()

	if d.consecutive == 0 {
		d.runStart = start
	}

	d.consecutive++

	if d.inside {
		d.fragMCUs++

		return
	}

	if d.consecutive < d.opts.ConfirmMCUs {
		return
	}

	d.inside = true
	d.fragMCUs = int64(d.consecutive)
	d.fragStart = d.runStart

	// The first fragment includes the header.
	if d.firstFrag {
		d.fragStart = d.cfg.HeaderStart
		d.firstFrag = false
	}

	if glog.V(2) {
		glog.Infof("jpegfrag: fragment start at offset %d, MCU %d", d.fragStart, d.index)
	}
}

// invalid records a failed MCU and closes the current fragment.
func (d *detector) invalid(diag Diagnostic) {
	if !d.failed {
		d.failed = true
		d.offset = d.lastValid
	}

	d.failures = append(d.failures, diag)

	if glog.V(2) {
		glog.Infof("jpegfrag: MCU %d at offset %d: %v", diag.MCU, diag.Offset, diag)
	}

	d.closeFragment()
	d.consecutive = 0
}

// closeFragment ends the open fragment at the last valid MCU boundary. It is
// kept only if it is at least opts.MinFragmentLength bytes long.
func (d *detector) closeFragment() {
	if !d.inside {
		return
	}

	d.inside = false

	length := d.lastValid - d.fragStart
	if length < d.opts.MinFragmentLength {
		if glog.V(2) {
			glog.Infof("jpegfrag: discarding short fragment [%d-%d], %d MCUs", d.fragStart, d.lastValid, d.fragMCUs)
		}

		return
	}

	if glog.V(2) {
		glog.Infof("jpegfrag: fragment end at offset %d, %d bytes, %d MCUs", d.lastValid, length, d.fragMCUs)
	}

	d.points = append(d.points, d.fragStart, d.lastValid)
}

// result returns the outcome of the sweep. Ranges are left to the caller.
func (d *detector) result() *Result {
	res := &Result{
		Completed:    true,
		Offset:       d.offset,
		Points:       append([]int64{}, d.points...),
		Failures:     d.failures,
		MCUCount:     d.total,
		HeaderStart:  d.cfg.HeaderStart,
		EntropyStart: d.cfg.EntropyStart,
	}

	// Failures past the expected MCU count come from appended data.
	for i := len(d.failures) - 1; i >= 0; i-- {
		if d.failures[i].MCU < d.total {
			res.Reason = d.failures[i].String()

			break
		}
	}

	return res
}
