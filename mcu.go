package jpegfrag

// blockUnit is one component of an MCU: its tables and the number of 8x8 blocks
// it contributes.
type blockUnit struct {
	dc, ac  HuffmanDecoder
	dcBits  int // Peek window for DC codes.
	acBits  int // Peek window for AC codes.
	blocks  int
	channel string
}

// mcuValidator checks that the entropy-coded data of one MCU follows the
// baseline Huffman coding rules.
type mcuValidator struct {
	c     *bitCursor
	units []blockUnit
}

func newMCUValidator(cfg *ScanConfig, c *bitCursor) *mcuValidator {
	v := &mcuValidator{c: c, units: make([]blockUnit, len(cfg.Components))}

	for i, comp := range cfg.Components {
		h, vs := cfg.samplingFactors(i)
		u := &v.units[i]
		u.dc = cfg.DC[comp.DCTable]
		u.ac = cfg.AC[comp.ACTable]
		u.dcBits = u.dc.MaxCodeLength()
		u.acBits = u.ac.MaxCodeLength()
		u.blocks = h * vs
		u.channel = channelNames[i]
	}

	return v
}

// validate consumes one MCU. On failure it returns the reason and the channel
// it occurred in, and the cursor is left at the point of failure.
func (v *mcuValidator) validate() (string, string, bool) {
	for i := range v.units {
		u := &v.units[i]
		for b := 0; b < u.blocks; b++ {
			if reason, ok := v.block(u); !ok {
				if reason == ReasonEOF {
					return reason, "", false
				}

				return reason, u.channel, false
			}
		}
	}

	return "", "", true
}

// block consumes one 8x8 block: a DC difference followed by run-length coded
// AC coefficients in zig-zag order.
func (v *mcuValidator) block(u *blockUnit) (string, bool) {
	c := v.c

	window, ok := c.peekBits(u.dcBits)
	if !ok {
		return ReasonEOF, false
	}

	symbol, length, ok := u.dc.Match(window, u.dcBits)
	if !ok {
		return ReasonHuffmanDC, false
	}

	// The DC symbol is the magnitude category of the difference that follows.
	if !c.skipBits(length + int(symbol)) {
		return ReasonEOF, false
	}

	for k := 1; k < 64; {
		window, ok := c.peekBits(u.acBits)
		if !ok {
			return ReasonEOF, false
		}

		symbol, length, ok := u.ac.Match(window, u.acBits)
		if !ok {
			return ReasonHuffmanAC, false
		}

		if symbol == 0 {
			// End of block.
			if !c.skipBits(length) {
				return ReasonEOF, false
			}

			break
		}

		k += int(symbol>>4) + 1
		if k > 64 {
			return ReasonQASize, false
		}

		if !c.skipBits(length + int(symbol&15)) {
			return ReasonEOF, false
		}
	}

	return "", true
}
