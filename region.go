package jpegfrag

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/garyhouston/jpegsegs"
)

// Region locates the entropy-coded data of a JPEG file by walking its markers,
// without decoding anything.
type Region struct {
	SOI          int64 `json:"soi"`
	EntropyStart int64 `json:"entropyStart"` // First byte after the first SOS segment.
	EntropyEnd   int64 `json:"entropyEnd"`   // Offset of the EOI marker, or the file size if there is none.
}

// FindEntropyRegion returns the entropy region of data. Restart markers and
// stuffed bytes inside scan data are skipped; later scans of a multi-scan file
// extend the region up to EOI.
func FindEntropyRegion(data []byte) (Region, error) {
	var reg Region

	soi, err := findHeaderStart(NewByteSource(data))
	if err != nil {
		return reg, err
	}

	reg.SOI = soi
	reg.EntropyStart = -1

	// The scanner never returns if scan data ends in a 0xFF; such a byte
	// cannot start a marker anyway.
	tail := data[soi:]
	for len(tail) > 0 && tail[len(tail)-1] == 0xff {
		tail = tail[:len(tail)-1]
	}

	r := bytes.NewReader(tail)

	scanner, err := jpegsegs.NewScanner(r)
	if err != nil {
		return reg, fmt.Errorf("%w: %v", ErrNoJPEG, err)
	}

	for {
		pos, _ := r.Seek(0, io.SeekCurrent)

		marker, _, err := scanSegment(scanner)
		if err != nil {
			if reg.EntropyStart >= 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
				// Scan data runs to the end of the file.
				reg.EntropyEnd = int64(len(data))

				return reg, nil
			}

			return reg, fmt.Errorf("%w: segment at offset %d: %v", ErrSyntax, soi+pos, err)
		}

		switch marker {
		case jpegsegs.RST0, jpegsegs.RST1, jpegsegs.RST2, jpegsegs.RST3,
			jpegsegs.RST4, jpegsegs.RST5, jpegsegs.RST6, jpegsegs.RST7:
			if reg.EntropyStart < 0 {
				return reg, fmt.Errorf("%w: %s before SOS", ErrSyntax, marker.Name())
			}
		case jpegsegs.SOS:
			if reg.EntropyStart < 0 {
				end, _ := r.Seek(0, io.SeekCurrent)
				reg.EntropyStart = soi + end
			}
		case jpegsegs.EOI:
			if reg.EntropyStart < 0 {
				return reg, fmt.Errorf("%w: no SOS marker", ErrSyntax)
			}

			reg.EntropyEnd = soi + pos

			if reg.EntropyEnd <= reg.EntropyStart {
				return reg, fmt.Errorf("%w: empty entropy region [%d-%d]", ErrSyntax, reg.EntropyStart, reg.EntropyEnd)
			}

			return reg, nil
		}
	}
}
