package jpegfrag

import "fmt"

// Diagnostic reasons.
const (
	ReasonSOSBlock  = "SOSBlock"
	ReasonRestart   = "RestartM"
	ReasonEOF       = "EOF"
	ReasonHuffmanDC = "Huffman-DC"
	ReasonHuffmanAC = "Huffman-AC"
	ReasonQASize    = "QASize"
)

// channelNames maps component indices to the names used in diagnostics.
var channelNames = [maxComponents]string{"Luminance", "Cb", "Cr", "K"}

// Diagnostic describes one MCU that failed validation.
type Diagnostic struct {
	MCU     int64  `json:"mcu"`               // Index of the MCU.
	Offset  int64  `json:"offset"`            // Byte offset at which the MCU started.
	Reason  string `json:"reason"`            // One of the Reason constants.
	Channel string `json:"channel,omitempty"` // Channel name for Huffman and QASize failures.
}

// String formats d the way it is reported in Result.Reason, e.g. "QASize; Cb".
func (d Diagnostic) String() string {
	if d.Channel == "" {
		return d.Reason
	}

	return d.Reason + "; " + d.Channel
}

// Range is a half-open byte range [Start, End) of validated data.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the length of r in bytes.
func (r Range) Len() int64 {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d-%d]", r.Start, r.End)
}

// Result is the outcome of one validation run.
type Result struct {
	// Completed is true when the entropy-coded data was swept. It is false only
	// when the scan header could not be decoded.
	Completed bool `json:"completed"`
	// Offset is the end of the last valid MCU before the first failure. When no
	// MCU failed it is the end of the last valid MCU, or the end of the swept
	// data if the scan closes with the expected restart marker (or uses none).
	Offset int64 `json:"offset"`
	// Reason describes the last failure within the expected MCU count, or is
	// empty if the scan validated through it.
	Reason string `json:"reason"`
	// Ranges are the refined fragment ranges: sorted, non-overlapping and non-empty.
	Ranges []Range `json:"ranges"`
	// Points are the raw fragment boundaries in detection order, start and end
	// alternating.
	Points []int64 `json:"points"`
	// Failures lists every MCU that failed validation.
	Failures []Diagnostic `json:"failures,omitempty"`

	MCUCount     int64 `json:"mcuCount"`
	HeaderStart  int64 `json:"headerStart"`
	EntropyStart int64 `json:"entropyStart"`
}
