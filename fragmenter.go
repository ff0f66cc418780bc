package jpegfrag

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// StorageBlockSize is the block size assumed by Assemble.
const StorageBlockSize = 4096

// Layout describes a synthetic fragmentation: the sizes of the leading
// fragments, measured from the SOI marker, each followed by Noise bytes of
// random data. Whatever follows the last block up to EOI forms the final
// fragment.
type Layout struct {
	Blocks []int64
	Noise  int
}

// DefaultLayout splits an image into 4 KiB, 8 KiB and the rest, with 4 KiB of
// noise between fragments.
var DefaultLayout = Layout{Blocks: []int64{4 << 10, 8 << 10}, Noise: 4 << 10}

// FragmentDetail is the ground truth for one fragment of a synthetic fragmentation.
type FragmentDetail struct {
	Number   int   `json:"number"`
	Original Range `json:"original"` // Position in the input.
	Output   Range `json:"output"`   // Position in the fragmented output.
	Noise    int   `json:"noise"`    // Bytes of noise that follow it in the output.
}

// Fragmentation is a fragmented copy of an image with its ground truth.
type Fragmentation struct {
	Data      []byte           `json:"-"`
	Fragments []FragmentDetail `json:"fragments"`
	Region    Region           `json:"region"`
	Inserted  int64            `json:"inserted"`
}

// Truth returns the output ranges of the fragments.
func (f *Fragmentation) Truth() []Range {
	ranges := make([]Range, len(f.Fragments))
	for i, d := range f.Fragments {
		ranges[i] = d.Output
	}

	return ranges
}

// newRand returns rng, or a time-seeded source if rng is nil.
func newRand(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}

	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// noise returns n random bytes, none of them 0xFF, so no marker can appear.
func noise(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.Intn(0xFF))
	}

	return b
}

// Fragment inserts noise into data according to layout. The fragments
// partition [SOI, EOI); bytes before the SOI and from EOI on are copied
// unchanged. A layout without noise yields a single fragment.
func Fragment(data []byte, layout Layout, rng *rand.Rand) (*Fragmentation, error) {
	reg, err := FindEntropyRegion(data)
	if err != nil {
		return nil, err
	}

	if layout.Noise < 0 {
		return nil, fmt.Errorf("%w: negative noise length %d", ErrConfig, layout.Noise)
	}

	rng = newRand(rng)

	bounds := []int64{reg.SOI}
	if layout.Noise > 0 {
		at := reg.SOI
		for _, size := range layout.Blocks {
			if size <= 0 {
				return nil, fmt.Errorf("%w: block size %d", ErrConfig, size)
			}

			if at > math.MaxInt64-size {
				return nil, fmt.Errorf("%w: block size %d at offset %d", ErrOffsetOverflow, size, at)
			}

			at += size
			if at >= reg.EntropyEnd {
				break
			}

			bounds = append(bounds, at)
		}
	}

	bounds = append(bounds, reg.EntropyEnd)

	var out bytes.Buffer
	out.Grow(len(data) + (len(bounds)-2)*layout.Noise)
	out.Write(data[:reg.SOI])

	f := &Fragmentation{Region: reg}
	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		d := FragmentDetail{
			Number:   i + 1,
			Original: Range{Start: start, End: end},
			Output:   Range{Start: start + f.Inserted, End: end + f.Inserted},
		}

		out.Write(data[start:end])

		if i+2 < len(bounds) {
			d.Noise = layout.Noise
			out.Write(noise(rng, layout.Noise))
			f.Inserted += int64(layout.Noise)
		}

		f.Fragments = append(f.Fragments, d)
	}

	out.Write(data[reg.EntropyEnd:])
	f.Data = out.Bytes()

	return f, nil
}

// Piece is one element of a custom fragmentation: either storage block number
// Block of the image, counted in StorageBlockSize units from the SOI, or
// NoiseSize bytes of random data.
type Piece struct {
	Block     int
	NoiseSize int // Non-zero for a noise piece.
}

// Assemble builds a fragmented image from pieces, in order. Consecutive image
// blocks form one fragment, whether or not they are contiguous in the input.
func Assemble(data []byte, pieces []Piece, rng *rand.Rand) (*Fragmentation, error) {
	reg, err := FindEntropyRegion(data)
	if err != nil {
		return nil, err
	}

	rng = newRand(rng)

	var out bytes.Buffer
	f := &Fragmentation{Region: reg}

	var cur *FragmentDetail
	for i, p := range pieces {
		if p.NoiseSize < 0 {
			return nil, fmt.Errorf("%w: piece %d has negative noise size", ErrConfig, i)
		}

		if p.NoiseSize > 0 {
			if cur != nil {
				cur.Noise = p.NoiseSize
				f.Fragments = append(f.Fragments, *cur)
				cur = nil
			}

			out.Write(noise(rng, p.NoiseSize))
			f.Inserted += int64(p.NoiseSize)

			continue
		}

		if p.Block < 0 || int64(p.Block) > (math.MaxInt64-reg.SOI)/StorageBlockSize {
			return nil, fmt.Errorf("%w: piece %d selects block %d", ErrOffsetOverflow, i, p.Block)
		}

		start := reg.SOI + int64(p.Block)*StorageBlockSize
		if start >= int64(len(data)) {
			return nil, fmt.Errorf("%w: piece %d selects block %d past the end of the image", ErrConfig, i, p.Block)
		}

		end := min(start+StorageBlockSize, int64(len(data)))
		pos := int64(out.Len())

		if cur == nil {
			cur = &FragmentDetail{
				Number:   len(f.Fragments) + 1,
				Original: Range{Start: start, End: end},
				Output:   Range{Start: pos, End: pos},
			}
		}

		cur.Original.End = end
		cur.Output.End = pos + end - start
		out.Write(data[start:end])
	}

	if cur != nil {
		f.Fragments = append(f.Fragments, *cur)
	}

	f.Data = out.Bytes()

	return f, nil
}

// Reconstruct concatenates the given ranges of data. Ranges outside data are
// skipped.
func Reconstruct(data []byte, ranges []Range) []byte {
	var n int64
	for _, r := range ranges {
		if r.Start >= 0 && r.End <= int64(len(data)) && r.Start < r.End {
			n += r.Len()
		}
	}

	out := make([]byte, 0, n)
	for _, r := range ranges {
		if r.Start >= 0 && r.End <= int64(len(data)) && r.Start < r.End {
			out = append(out, data[r.Start:r.End]...)
		}
	}

	return out
}
