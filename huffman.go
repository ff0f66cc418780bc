package jpegfrag

import "fmt"

// maxCodeLength is the maximum (inclusive) number of bits in a Huffman code.
const maxCodeLength = 16

// maxNCodes is the maximum (inclusive) number of codes in a Huffman table.
const maxNCodes = 256

// lutBits is the log-2 size of the look-up table for short codes.
const lutBits = 8

// HuffmanDecoder matches the shortest prefix of a bit window against a
// prefix code. Tables are produced by the header parser; the validator treats
// them as an opaque capability.
type HuffmanDecoder interface {
	// MaxCodeLength is the length in bits of the longest code in the table.
	MaxCodeLength() int
	// Match looks at the n most significant bits of window (n <= 16) and returns
	// the decoded symbol and the number of bits its code occupies. ok is false
	// when no code is a prefix of the window.
	Match(window uint32, n int) (symbol uint8, length int, ok bool)
}

// vlcCode is a single look-up table entry: the code length (0 if the code is
// longer than lutBits or absent) and the decoded symbol.
type vlcCode struct {
	bits, code uint8
}

// HuffmanTable is a canonical JPEG Huffman table (ITU-T T.81, Annex C).
type HuffmanTable struct {
	nCodes  int
	maxLen  int
	lut     [1 << lutBits]vlcCode
	vals    [maxNCodes]uint8
	minCode [maxCodeLength]int32 // Minimum code of length i+1, or -1.
	maxCode [maxCodeLength]int32 // Maximum code of length i+1, or -1.
	valIdx  [maxCodeLength]int32 // Index into vals of minCode[i].
}

// NewHuffmanTable builds a table from the DHT code-length counts (number of
// codes of length 1..16) and the symbol values in code order.
func NewHuffmanTable(counts [maxCodeLength]uint8, values []uint8) (*HuffmanTable, error) {
	h := new(HuffmanTable)

	for _, n := range counts {
		h.nCodes += int(n)
	}

	if h.nCodes == 0 {
		return nil, fmt.Errorf("%w: table has zero length", ErrHuffmanTable)
	}

	if h.nCodes > maxNCodes {
		return nil, fmt.Errorf("%w: table has %d codes", ErrHuffmanTable, h.nCodes)
	}

	if len(values) < h.nCodes {
		return nil, fmt.Errorf("%w: %d values for %d codes", ErrHuffmanTable, len(values), h.nCodes)
	}

	copy(h.vals[:], values[:h.nCodes])

	// Derive minCode, maxCode and valIdx, and fill the look-up table.
	var code, index int32
	for i, n := range counts {
		length := i + 1
		if n == 0 {
			h.minCode[i] = -1
			h.maxCode[i] = -1
			h.valIdx[i] = -1
		} else {
			// A code that no longer fits in its length means the counts are
			// not a valid prefix code.
			if code+int32(n) > 1<<length {
				return nil, fmt.Errorf("%w: over-subscribed at length %d", ErrHuffmanTable, length)
			}

			h.minCode[i] = code
			h.maxCode[i] = code + int32(n) - 1
			h.valIdx[i] = index
			h.maxLen = length

			if length <= lutBits {
				for k := int32(0); k < int32(n); k++ {
					base := (code + k) << (lutBits - length)
					for j := int32(0); j < 1<<(lutBits-length); j++ {
						h.lut[base+j] = vlcCode{bits: uint8(length), code: h.vals[index+k]}
					}
				}
			}

			code += int32(n)
			index += int32(n)
		}

		code <<= 1
	}

	return h, nil
}

// MaxCodeLength returns the length of the longest code.
func (h *HuffmanTable) MaxCodeLength() int {
	return h.maxLen
}

// Match returns the symbol whose code is the shortest prefix of the n-bit window.
func (h *HuffmanTable) Match(window uint32, n int) (uint8, int, bool) {
	if n <= 0 || n > maxCodeLength {
		return 0, 0, false
	}

	window &= uint32(1)<<n - 1

	// Fast path: codes of up to lutBits bits.
	var idx uint32
	if n >= lutBits {
		idx = window >> (n - lutBits)
	} else {
		idx = window << (lutBits - n)
	}

	if e := h.lut[idx]; e.bits != 0 && int(e.bits) <= n {
		return e.code, int(e.bits), true
	}

	for i := lutBits; i < n && i < maxCodeLength; i++ {
		if h.maxCode[i] < 0 {
			continue
		}

		code := int32(window >> (n - i - 1))
		if code >= h.minCode[i] && code <= h.maxCode[i] {
			return h.vals[h.valIdx[i]+code-h.minCode[i]], i + 1, true
		}
	}

	return 0, 0, false
}
