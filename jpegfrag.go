package jpegfrag

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
)

// Standard error types.
var (
	ErrNoJPEG         = errors.New("not a JPEG file")
	ErrUnsupported    = errors.New("unsupported format")
	ErrSyntax         = errors.New("syntax error")
	ErrSOSBlock       = errors.New("invalid scan header")
	ErrConfig         = errors.New("invalid scan configuration")
	ErrHuffmanTable   = errors.New("invalid Huffman table")
	ErrOffset         = errors.New("invalid start offset")
	ErrOffsetOverflow = errors.New("offset overflow")
)

// Defaults for Options.
const (
	DefaultMinFragmentLength = 1000
	DefaultConfirmMCUs       = 2
	DefaultRecoveryBudget    = 10240
	DefaultMergeGap          = 1024
)

// Options specifies validation parameters. Zero fields take the defaults.
type Options struct {
	// MinFragmentLength is the shortest run of valid data, in bytes, reported as a fragment.
	MinFragmentLength int64
	// ConfirmMCUs is the number of consecutive valid MCUs that open a fragment.
	ConfirmMCUs int
	// RecoveryBudget is the number of bytes the resynchronization search may
	// probe after a failure. The search after an EOI marker gets twice as much.
	RecoveryBudget int
	// MergeGap merges neighbouring fragments separated by fewer bytes.
	// It is ignored when Grid is set.
	MergeGap int64
	// Grid, if set, snaps fragments to a storage block grid instead of merging
	// by proximity.
	Grid *Grid
}

// withDefaults returns a copy of opts with defaults filled in.
func withDefaults(opts []*Options) Options {
	var o Options
	if len(opts) > 0 && opts[0] != nil {
		o = *opts[0]
	}

	if o.MinFragmentLength <= 0 {
		o.MinFragmentLength = DefaultMinFragmentLength
	}

	if o.ConfirmMCUs <= 0 {
		o.ConfirmMCUs = DefaultConfirmMCUs
	}

	if o.RecoveryBudget <= 0 {
		o.RecoveryBudget = DefaultRecoveryBudget
	}

	if o.MergeGap <= 0 {
		o.MergeGap = DefaultMergeGap
	}

	return o
}

// Interface to check if a reader knows its remaining length.
type readerWithLen interface {
	Len() int
}

// readAllData reads data from r, pre-allocating if the size is known.
func readAllData(r io.Reader) ([]byte, error) {
	if rl, ok := r.(readerWithLen); ok {
		size := rl.Len()
		if size > 0 {
			data := make([]byte, size)
			_, err := io.ReadFull(r, data)
			if err != nil {
				return nil, fmt.Errorf("failed to read image data: %w", err)
			}

			return data, nil
		}
	}

	return io.ReadAll(r)
}

// Validate reads a candidate JPEG from r and reports which byte ranges of its
// entropy-coded data are structurally valid.
func Validate(r io.Reader, opts ...*Options) (*Result, error) {
	data, err := readAllData(r)
	if err != nil {
		return nil, err
	}

	return ValidateSource(NewByteSource(data), opts...)
}

// ValidateSource is like Validate but reads from a ByteSource.
// Header problems that leave the scan unusable are returned as errors, except
// for a malformed scan header, which yields a non-completed Result with
// reason SOSBlock.
func ValidateSource(src ByteSource, opts ...*Options) (*Result, error) {
	cfg, err := ParseHeader(src)
	if err != nil {
		if errors.Is(err, ErrSOSBlock) {
			glog.V(1).Infof("jpegfrag: %v", err)

			return &Result{
				Offset:      cfg.sosOffset(),
				Reason:      ReasonSOSBlock,
				Ranges:      []Range{},
				Points:      []int64{},
				HeaderStart: cfg.headerStart(),
			}, nil
		}

		return nil, err
	}

	return ValidateScan(src, cfg, opts...)
}

// ValidateScan validates the entropy-coded data described by cfg. It is the
// entry point for callers that parse headers themselves.
func ValidateScan(src ByteSource, cfg *ScanConfig, opts ...*Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := withDefaults(opts)
	if o.Grid != nil && o.Grid.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: grid block size %d", ErrConfig, o.Grid.BlockSize)
	}

	c, err := newBitCursor(src, cfg.EntropyStart, 0)
	if err != nil {
		return nil, err
	}

	d := newDetector(cfg, c, &o)
	d.run()

	res := d.result()
	res.Ranges = refine(pairPoints(res.Points), &o, sourceSize(src))
	if res.Ranges == nil {
		res.Ranges = []Range{}
	}

	glog.V(1).Infof("jpegfrag: %d fragment(s) %v, reason %q at offset %d", len(res.Ranges), res.Ranges, res.Reason, res.Offset)

	return res, nil
}
