package jpegfrag

import (
	"bytes"
	"errors"
	"testing"
)

func TestFindEntropyRegion(t *testing.T) {
	gray := grayJPEG(t, 128, 128, 40)
	restart, markers := restartJPEG(t)

	cfg, err := ParseHeader(NewByteSource(gray))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
		want Region
	}{
		{"gray", gray, Region{SOI: 0, EntropyStart: cfg.EntropyStart, EntropyEnd: int64(len(gray) - 2)}},
		{"restart markers", restart, Region{SOI: 0, EntropyStart: markers[0] - 408, EntropyEnd: int64(len(restart) - 2)}},
		{
			"leading bytes",
			append(bytes.Repeat([]byte{0x42}, 10), gray...),
			Region{SOI: 10, EntropyStart: cfg.EntropyStart + 10, EntropyEnd: int64(len(gray) + 8)},
		},
		{
			"missing EOI",
			gray[:len(gray)-2],
			Region{SOI: 0, EntropyStart: cfg.EntropyStart, EntropyEnd: int64(len(gray) - 2)},
		},
		{
			"EOI not trimmed",
			append(bytes.Clone(gray), 0xff, 0xff),
			Region{SOI: 0, EntropyStart: cfg.EntropyStart, EntropyEnd: int64(len(gray) - 2)},
		},
		{
			"trailing fill",
			append(bytes.Clone(gray[:len(gray)-2]), 0xff, 0xff),
			Region{SOI: 0, EntropyStart: cfg.EntropyStart, EntropyEnd: int64(len(gray))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindEntropyRegion(tt.data)
			if err != nil {
				t.Fatalf("FindEntropyRegion failed: %v", err)
			}

			if got != tt.want {
				t.Errorf("region = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFindEntropyRegionErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrNoJPEG},
		{"no SOI", bytes.Repeat([]byte{0x11}, 64), ErrNoJPEG},
		{"no SOS", []byte{0xff, 0xd8, 0xff, 0xd9}, ErrSyntax},
		{"truncated header", grayJPEG(t, 64, 64, 41)[:60], ErrSyntax},
		{"restart marker before SOS", []byte{0xff, 0xd8, 0xff, 0xd6, 0xff}, ErrSyntax},
		{"only fill after SOI", []byte{0xff, 0xd8, 0xff, 0xff, 0xff}, ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FindEntropyRegion(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
