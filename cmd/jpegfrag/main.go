// Command jpegfrag detects fragmentation in JPEG files at the entropy-coding level.
//
// Usage:
//
//	jpegfrag [glog flags] validate [-min n] [-gap n] [-block n] file...
//	jpegfrag [glog flags] fragment [-seed n] [-noise n] [-o out] file
//	jpegfrag [glog flags] evaluate [-seed n] [-noise n] file
//	jpegfrag [glog flags] carve [-block n] [-zstd] -o out file
//
// Reports are written to stdout as JSON. Input files ending in .zst are
// decompressed first.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/gen2brain/jpegfrag"
	"github.com/golang/glog"
	"github.com/klauspost/compress/zstd"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] validate|fragment|evaluate|carve [command flags] file...\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	defer glog.Flush()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	var err error
	switch cmd {
	case "validate":
		err = validate(args)
	case "fragment":
		err = fragment(args)
	case "evaluate":
		err = evaluate(args)
	case "carve":
		err = carve(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		glog.Exitf("%s: %v", cmd, err)
	}
}

// detectionFlags registers the validation options shared by several commands.
func detectionFlags(fs *flag.FlagSet) func() *jpegfrag.Options {
	minLen := fs.Int64("min", jpegfrag.DefaultMinFragmentLength, "shortest fragment reported, in bytes")
	confirm := fs.Int("confirm", jpegfrag.DefaultConfirmMCUs, "consecutive valid MCUs that open a fragment")
	budget := fs.Int("budget", jpegfrag.DefaultRecoveryBudget, "bytes probed when resynchronizing")
	gap := fs.Int64("gap", jpegfrag.DefaultMergeGap, "merge fragments closer than this many bytes")
	block := fs.Int64("block", 0, "snap fragments to a storage grid of this block size (0 merges by gap)")

	return func() *jpegfrag.Options {
		o := &jpegfrag.Options{
			MinFragmentLength: *minLen,
			ConfirmMCUs:       *confirm,
			RecoveryBudget:    *budget,
			MergeGap:          *gap,
		}

		if *block > 0 {
			o.Grid = &jpegfrag.Grid{BlockSize: *block}
		}

		return o
	}
}

// readFile reads a whole file, decompressing zstd input.
func readFile(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !strings.HasSuffix(name, ".zst") {
		return io.ReadAll(f)
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	defer dec.Close()

	return io.ReadAll(dec)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

type fileReport struct {
	File   string           `json:"file"`
	Result *jpegfrag.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func validate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	options := detectionFlags(fs)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("no input files")
	}

	opts := options()

	reports := make([]fileReport, 0, fs.NArg())
	for _, name := range fs.Args() {
		rep := fileReport{File: name}

		data, err := readFile(name)
		if err == nil {
			rep.Result, err = jpegfrag.ValidateSource(jpegfrag.NewByteSource(data), opts)
		}

		if err != nil {
			glog.Warningf("%s: %v", name, err)
			rep.Error = err.Error()
		}

		reports = append(reports, rep)
	}

	return writeJSON(reports)
}

func fragment(args []string) error {
	fs := flag.NewFlagSet("fragment", flag.ExitOnError)
	seed := fs.Int64("seed", time.Now().UnixNano(), "noise seed")
	noise := fs.Int("noise", jpegfrag.DefaultLayout.Noise, "noise bytes inserted between fragments")
	out := fs.String("o", "", "write the fragmented file here")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("need exactly one input file")
	}

	data, err := readFile(fs.Arg(0))
	if err != nil {
		return err
	}

	layout := jpegfrag.DefaultLayout
	layout.Noise = *noise

	f, err := jpegfrag.Fragment(data, layout, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}

	if *out != "" {
		if err := os.WriteFile(*out, f.Data, 0o644); err != nil {
			return err
		}
	}

	return writeJSON(f)
}

func evaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	seed := fs.Int64("seed", time.Now().UnixNano(), "seed of the first pass")
	noise := fs.Int("noise", jpegfrag.DefaultLayout.Noise, "noise bytes inserted between fragments")
	options := detectionFlags(fs)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("need exactly one input file")
	}

	data, err := readFile(fs.Arg(0))
	if err != nil {
		return err
	}

	layout := jpegfrag.DefaultLayout
	layout.Noise = *noise

	e, err := jpegfrag.Evaluate(data, layout, *seed, options())
	if err != nil {
		return err
	}

	return writeJSON(e)
}

func carve(args []string) error {
	fs := flag.NewFlagSet("carve", flag.ExitOnError)
	out := fs.String("o", "", "output file")
	compress := fs.Bool("zstd", false, "compress the output with zstd")
	options := detectionFlags(fs)
	_ = fs.Parse(args)

	if fs.NArg() != 1 || *out == "" {
		return fmt.Errorf("need -o and exactly one input file")
	}

	data, err := readFile(fs.Arg(0))
	if err != nil {
		return err
	}

	res, err := jpegfrag.ValidateSource(jpegfrag.NewByteSource(data), options())
	if err != nil {
		return err
	}

	carved := jpegfrag.Reconstruct(data, res.Ranges)
	glog.V(1).Infof("carved %d bytes from %d range(s)", len(carved), len(res.Ranges))

	w, err := os.Create(*out)
	if err != nil {
		return err
	}

	if *compress {
		enc, err := zstd.NewWriter(w)
		if err != nil {
			w.Close()

			return fmt.Errorf("zstd encode: %w", err)
		}

		if _, err := enc.Write(carved); err != nil {
			enc.Close()
			w.Close()

			return err
		}

		if err := enc.Close(); err != nil {
			w.Close()

			return err
		}
	} else if _, err := w.Write(carved); err != nil {
		w.Close()

		return err
	}

	if err := w.Close(); err != nil {
		return err
	}

	return writeJSON(fileReport{File: fs.Arg(0), Result: res})
}
