package jpegfrag

import (
	"fmt"
	"io"
	"math"

	"github.com/garyhouston/jpegsegs"
	"github.com/golang/glog"
)

// headerSearchLimit is the number of leading bytes searched for the SOI marker.
const headerSearchLimit = 100

// maxComponents is the maximum number of components in a frame.
const maxComponents = 4

// Component describes one color component of the frame and the Huffman tables
// the scan selects for it.
type Component struct {
	ID      int // Component identifier (e.g., 1 for Y, 2 for Cb, 3 for Cr).
	H, V    int // Horizontal and vertical sampling factors.
	DCTable int // DC Huffman table selector, 0-3.
	ACTable int // AC Huffman table selector, 0-3.
}

// ScanConfig holds everything the entropy validator needs from the JPEG header.
type ScanConfig struct {
	Width, Height   int
	Components      []Component
	RestartInterval int // Restart interval in MCUs, 0 if restart markers are not used.

	DC, AC [4]HuffmanDecoder

	HeaderStart  int64 // Offset of the SOI marker.
	EntropyStart int64 // Offset of the first byte after the SOS segment.

	sos int64 // Offset of the SOS marker.
}

func (cfg *ScanConfig) headerStart() int64 {
	if cfg == nil {
		return 0
	}

	return cfg.HeaderStart
}

func (cfg *ScanConfig) sosOffset() int64 {
	if cfg == nil {
		return 0
	}

	return cfg.sos
}

// Validate checks that cfg describes a scan the validator can run.
func (cfg *ScanConfig) Validate() error {
	if cfg == nil {
		return fmt.Errorf("%w: nil configuration", ErrConfig)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrConfig, cfg.Width, cfg.Height)
	}

	if len(cfg.Components) == 0 || len(cfg.Components) > maxComponents {
		return fmt.Errorf("%w: %d components", ErrConfig, len(cfg.Components))
	}

	if cfg.RestartInterval < 0 {
		return fmt.Errorf("%w: restart interval %d", ErrConfig, cfg.RestartInterval)
	}

	if cfg.EntropyStart < 0 || cfg.HeaderStart < 0 || cfg.HeaderStart > cfg.EntropyStart {
		return fmt.Errorf("%w: header at %d, entropy data at %d", ErrOffset, cfg.HeaderStart, cfg.EntropyStart)
	}

	for i, c := range cfg.Components {
		if c.H < 1 || c.H > 4 || c.V < 1 || c.V > 4 {
			return fmt.Errorf("%w: component %d sampling factors %dx%d", ErrConfig, i, c.H, c.V)
		}

		if err := checkTable(cfg.DC, c.DCTable, "DC", i); err != nil {
			return err
		}

		if err := checkTable(cfg.AC, c.ACTable, "AC", i); err != nil {
			return err
		}
	}

	return nil
}

func checkTable(tables [4]HuffmanDecoder, sel int, class string, comp int) error {
	if sel < 0 || sel > 3 {
		return fmt.Errorf("%w: component %d selects %s table %d", ErrConfig, comp, class, sel)
	}

	t := tables[sel]
	if t == nil {
		return fmt.Errorf("%w: component %d selects undefined %s table %d", ErrConfig, comp, class, sel)
	}

	if n := t.MaxCodeLength(); n <= 0 || n > maxCodeLength {
		return fmt.Errorf("%w: %s table %d has maximum code length %d", ErrConfig, class, sel, n)
	}

	return nil
}

// samplingFactors returns the sampling factors of component i. A single-component
// (grayscale) frame implies no subsampling.
func (cfg *ScanConfig) samplingFactors(i int) (int, int) {
	if len(cfg.Components) == 1 {
		return 1, 1
	}

	return cfg.Components[i].H, cfg.Components[i].V
}

// mcuCount returns the number of MCUs in the scan.
func (cfg *ScanConfig) mcuCount() int64 {
	hMax, vMax := 1, 1
	for i := range cfg.Components {
		h, v := cfg.samplingFactors(i)
		hMax = max(hMax, h)
		vMax = max(vMax, v)
	}

	mbSizeX, mbSizeY := hMax<<3, vMax<<3
	mbWidth := (cfg.Width + mbSizeX - 1) / mbSizeX
	mbHeight := (cfg.Height + mbSizeY - 1) / mbSizeY

	return int64(mbWidth) * int64(mbHeight)
}

// findHeaderStart returns the offset of the SOI marker within the first
// headerSearchLimit bytes of src.
func findHeaderStart(src ByteSource) (int64, error) {
	n := int64(headerSearchLimit + 1)
	for n > 2 && !src.Available(0, n) {
		n--
	}

	if !src.Available(0, n) {
		return 0, ErrNoJPEG
	}

	b, err := src.Read(0, int(n))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoJPEG, err)
	}

	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0xFF && b[i+1] == jpegsegs.SOI {
			return int64(i), nil
		}
	}

	return 0, ErrNoJPEG
}

// ParseHeader walks the marker segments of src up to the first SOS and returns
// the scan configuration. If the SOS segment itself is malformed, the partial
// configuration is returned along with an error wrapping ErrSOSBlock.
func ParseHeader(src ByteSource) (*ScanConfig, error) {
	soi, err := findHeaderStart(src)
	if err != nil {
		return nil, err
	}

	size := sourceSize(src)
	if size < 0 {
		size = math.MaxInt64
	}

	sr := io.NewSectionReader(sourceReaderAt{src}, soi, size-soi)

	scanner, err := jpegsegs.NewScanner(sr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJPEG, err)
	}

	cfg := &ScanConfig{HeaderStart: soi}
	haveFrame := false

	for {
		pos, err := sr.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}

		marker, seg, err := scanSegment(scanner)
		if marker == jpegsegs.SOS {
			cfg.sos = soi + pos
			if err != nil {
				return cfg, fmt.Errorf("%w: %v", ErrSOSBlock, err)
			}

			if !haveFrame {
				return nil, fmt.Errorf("%w: scan data found before SOF", ErrSyntax)
			}

			if err := cfg.decodeSOS(seg); err != nil {
				return cfg, err
			}

			end, err := sr.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, err
			}

			cfg.EntropyStart = soi + end

			return cfg, nil
		}

		if err != nil {
			return nil, fmt.Errorf("%w: segment at offset %d: %v", ErrSyntax, soi+pos, err)
		}

		switch marker {
		case jpegsegs.SOF0, jpegsegs.SOF1:
			if haveFrame {
				glog.Warningf("jpegfrag: repeated frame header at offset %d", soi+pos)
			}

			if err := cfg.decodeSOF(seg); err != nil {
				return nil, err
			}

			haveFrame = true
		case jpegsegs.DHT:
			if err := cfg.decodeDHT(seg); err != nil {
				return nil, err
			}
		case jpegsegs.DRI:
			if err := cfg.decodeDRI(seg); err != nil {
				return nil, err
			}
		case jpegsegs.SOF2, jpegsegs.SOF3, jpegsegs.SOF5, jpegsegs.SOF6, jpegsegs.SOF7,
			jpegsegs.SOF9, jpegsegs.SOF10, jpegsegs.SOF11, jpegsegs.SOF13, jpegsegs.SOF14, jpegsegs.SOF15,
			jpegsegs.DAC:
			// Progressive, lossless, hierarchical and arithmetic-coded images.
			return nil, fmt.Errorf("%s: %w", marker.Name(), ErrUnsupported)
		case jpegsegs.RST0, jpegsegs.RST1, jpegsegs.RST2, jpegsegs.RST3,
			jpegsegs.RST4, jpegsegs.RST5, jpegsegs.RST6, jpegsegs.RST7:
			// The scanner reads scan data after a restart marker, and never
			// returns if that data ends in 0xFF.
			return nil, fmt.Errorf("%w: %s before SOS", ErrSyntax, marker.Name())
		case jpegsegs.EOI:
			return nil, fmt.Errorf("%w: EOI before SOS", ErrSyntax)
		default:
			// APPn, COM, DQT and other segments carry nothing the entropy validator uses.
		}
	}
}

// scanSegment reads the next segment. The scanner slices its buffer with the
// declared segment length and panics on lengths below 2.
func scanSegment(s *jpegsegs.Scanner) (marker jpegsegs.Marker, seg []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			marker, seg, err = 0, nil, fmt.Errorf("%w: %v", ErrSyntax, r)
		}
	}()

	return s.Scan()
}

// decodeSOF decodes the Start of Frame segment.
func (cfg *ScanConfig) decodeSOF(seg []byte) error {
	if len(seg) < 6 {
		return fmt.Errorf("%w: SOF segment too short", ErrSyntax)
	}

	if seg[0] != 8 {
		return fmt.Errorf("%d-bit precision: %w", seg[0], ErrUnsupported)
	}

	cfg.Height = int(seg[1])<<8 | int(seg[2])
	cfg.Width = int(seg[3])<<8 | int(seg[4])
	if cfg.Width == 0 {
		return fmt.Errorf("%w: zero image width", ErrSyntax)
	}

	if cfg.Height == 0 {
		return fmt.Errorf("height defined by DNL: %w", ErrUnsupported)
	}

	ncomp := int(seg[5])
	switch ncomp {
	case 1, 3, 4: // Grayscale, YCbCr/RGB or CMYK/YCCK.
	default:
		return fmt.Errorf("%d components: %w", ncomp, ErrUnsupported)
	}

	if len(seg) < 6+ncomp*3 {
		return fmt.Errorf("%w: SOF segment too short for %d components", ErrSyntax, ncomp)
	}

	cfg.Components = make([]Component, ncomp)
	for i := range cfg.Components {
		p := seg[6+i*3:]
		c := &cfg.Components[i]
		c.ID = int(p[0])
		c.H = int(p[1]) >> 4
		c.V = int(p[1]) & 15

		if c.H < 1 || c.H > 4 || c.V < 1 || c.V > 4 {
			return fmt.Errorf("%w: component %d sampling factors %dx%d", ErrSyntax, c.ID, c.H, c.V)
		}
	}

	return nil
}

// decodeDHT decodes a Define Huffman Table segment, which may hold several tables.
func (cfg *ScanConfig) decodeDHT(seg []byte) error {
	for len(seg) > 0 {
		if len(seg) < 17 {
			return fmt.Errorf("%w: DHT segment too short", ErrSyntax)
		}

		class, id := seg[0]>>4, seg[0]&15
		if class > 1 || id > 3 {
			return fmt.Errorf("%w: DHT table class %d id %d", ErrSyntax, class, id)
		}

		var counts [maxCodeLength]uint8
		copy(counts[:], seg[1:17])

		n := 0
		for _, num := range counts {
			n += int(num)
		}

		if len(seg) < 17+n {
			return fmt.Errorf("%w: DHT segment too short for %d codes", ErrSyntax, n)
		}

		t, err := NewHuffmanTable(counts, seg[17:17+n])
		if err != nil {
			return err
		}

		if class == 0 {
			cfg.DC[id] = t
		} else {
			cfg.AC[id] = t
		}

		seg = seg[17+n:]
	}

	return nil
}

// decodeDRI decodes the Define Restart Interval segment.
func (cfg *ScanConfig) decodeDRI(seg []byte) error {
	if len(seg) < 2 {
		return fmt.Errorf("%w: DRI segment too short", ErrSyntax)
	}

	cfg.RestartInterval = int(seg[0])<<8 | int(seg[1])

	return nil
}

// decodeSOS decodes the Start of Scan segment. Only a single interleaved
// baseline scan covering every frame component is accepted.
func (cfg *ScanConfig) decodeSOS(seg []byte) error {
	if len(seg) < 1 {
		return fmt.Errorf("%w: empty segment", ErrSOSBlock)
	}

	ns := int(seg[0])
	if ns != len(cfg.Components) {
		return fmt.Errorf("%w: %d scan components for %d frame components", ErrSOSBlock, ns, len(cfg.Components))
	}

	if len(seg) < 1+2*ns+3 {
		return fmt.Errorf("%w: segment too short", ErrSOSBlock)
	}

	for i := range cfg.Components {
		c := &cfg.Components[i]
		p := seg[1+2*i:]
		if int(p[0]) != c.ID {
			return fmt.Errorf("%w: component id %d, frame has %d", ErrSOSBlock, p[0], c.ID)
		}

		c.DCTable = int(p[1]) >> 4
		c.ACTable = int(p[1]) & 15
		if c.DCTable > 3 || c.ACTable > 3 {
			return fmt.Errorf("%w: table selectors %#02x", ErrSOSBlock, p[1])
		}
	}

	// Check for baseline DCT parameters.
	p := seg[1+2*ns:]
	if p[0] != 0 || p[1] != 63 || p[2] != 0 {
		return fmt.Errorf("%w: spectral selection %d-%d, approximation %#02x", ErrSOSBlock, p[0], p[1], p[2])
	}

	return nil
}
