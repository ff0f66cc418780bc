package jpegfrag

import (
	"errors"
	"testing"
)

func TestHuffmanTable(t *testing.T) {
	dc, err := NewHuffmanTable(lumDCCounts, lumDCValues)
	if err != nil {
		t.Fatalf("NewHuffmanTable(DC) failed: %v", err)
	}

	if dc.MaxCodeLength() != 9 {
		t.Errorf("DC MaxCodeLength = %d, want 9", dc.MaxCodeLength())
	}

	ac, err := NewHuffmanTable(lumACCounts, lumACValues)
	if err != nil {
		t.Fatalf("NewHuffmanTable(AC) failed: %v", err)
	}

	if ac.MaxCodeLength() != 16 {
		t.Errorf("AC MaxCodeLength = %d, want 16", ac.MaxCodeLength())
	}

	tests := []struct {
		name   string
		table  *HuffmanTable
		code   uint32
		bits   int
		symbol uint8
	}{
		{"DC category 0", dc, 0b00, 2, 0},
		{"DC category 4", dc, 0b101, 3, 4},
		{"DC category 11", dc, 0b111111110, 9, 11},
		{"AC 0x01", ac, 0b00, 2, 0x01},
		{"EOB", ac, 0b1010, 4, 0x00},
		{"ZRL", ac, 0b11111111001, 11, 0xf0},
		{"AC 0xfa", ac, 0b1111111111111110, 16, 0xfa},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.table.MaxCodeLength()
			// Left-align the code in an n-bit window followed by arbitrary bits.
			window := tt.code<<(n-tt.bits) | (uint32(1)<<(n-tt.bits)-1)&0x5555

			symbol, length, ok := tt.table.Match(window, n)
			if !ok || symbol != tt.symbol || length != tt.bits {
				t.Errorf("Match(%0*b) = %#02x, %d, %v; want %#02x, %d, true", n, window, symbol, length, ok, tt.symbol, tt.bits)
			}
		})
	}
}

func TestHuffmanNoMatch(t *testing.T) {
	dc, err := NewHuffmanTable(lumDCCounts, lumDCValues)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, ok := dc.Match(0x1ff, 9); ok {
		t.Error("all-ones DC window matched")
	}

	ac, err := NewHuffmanTable(lumACCounts, lumACValues)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, ok := ac.Match(0xffff, 16); ok {
		t.Error("all-ones AC window matched")
	}

	// A window shorter than the code.
	if _, _, ok := ac.Match(0b11111111, 8); ok {
		t.Error("truncated window matched")
	}

	if _, _, ok := ac.Match(0, 0); ok {
		t.Error("empty window matched")
	}
}

func TestHuffmanShortWindow(t *testing.T) {
	dc, err := NewHuffmanTable(lumDCCounts, lumDCValues)
	if err != nil {
		t.Fatal(err)
	}

	// Codes shorter than the window still match in a 4-bit window.
	symbol, length, ok := dc.Match(0b0111, 4)
	if !ok || symbol != 2 || length != 3 {
		t.Errorf("Match = %d, %d, %v; want 2, 3, true", symbol, length, ok)
	}
}

func TestHuffmanTableErrors(t *testing.T) {
	tests := []struct {
		name   string
		counts [16]uint8
		values []uint8
	}{
		{"empty", [16]uint8{}, nil},
		{"too few values", [16]uint8{0, 3}, []uint8{1, 2}},
		{"over-subscribed", [16]uint8{3}, []uint8{1, 2, 3}},
		{"over-subscribed long", [16]uint8{0, 4, 1}, []uint8{1, 2, 3, 4, 5}},
		{"too many codes", [16]uint8{15: 255, 14: 255}, make([]uint8, 510)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHuffmanTable(tt.counts, tt.values); !errors.Is(err, ErrHuffmanTable) {
				t.Errorf("error = %v, want %v", err, ErrHuffmanTable)
			}
		})
	}
}
