// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// filter-marker-alignments-taxa applies a minimum-markers filter to the
// taxon output of summarize-marker-alignments, optionally fitting the
// cutoff from a noise model instead of taking it from the command line
// (§4.6, §6 "Noise-model CLI").
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/kortschak/markeralign/noise"
)

var (
	inputPath         = flag.String("input", "", "input summary file (required)")
	requireMinMarkers = flag.Int("require-min-markers", 0, "require min markers to keep a taxon")
	useNoiseModel     = flag.Bool("use-noise-model-for-min-markers", false, "fit --require-min-markers from a null model where markers associate with taxa at random")
	totalNumTaxa      = flag.Int("total-num-taxa", 0, "total number of taxa in the reference (required with --use-noise-model-for-min-markers)")
	betaSampleSize    = flag.Float64("taxon-to-markers-beta-sample-size", 0, "beta distribution sample size a+b (required with --use-noise-model-for-min-markers)")
	outputPath        = flag.String("output", "", "output path (required)")
	verbose           = flag.Bool("verbose", false, "turn on logging")
)

func configErrorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "filter-marker-alignments-taxa: "+format+"\n", args...)
	os.Exit(2)
}

func main() {
	flag.Parse()

	if *inputPath == "" || *outputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := log.New(io.Discard, "", log.LstdFlags)
	if *verbose {
		logger.SetOutput(os.Stderr)
	}

	if *useNoiseModel && *totalNumTaxa == 0 {
		configErrorf("--total-num-taxa required if --use-noise-model-for-min-markers is provided")
	}
	if *useNoiseModel && *betaSampleSize == 0 {
		configErrorf("--taxon-to-markers-beta-sample-size required if --use-noise-model-for-min-markers is provided")
	}

	f, err := os.Open(*inputPath)
	if err != nil {
		log.Fatalf("opening input: %v", err)
	}
	rows, header, err := readTSV(f)
	f.Close()
	if err != nil {
		log.Fatalf("reading input: %v", err)
	}
	logger.Printf("tab-separated file with %d data rows read from %s", len(rows), *inputPath)

	markersCol := columnIndex(header, "taxon_num_markers")
	if markersCol < 0 {
		log.Fatalf("input has no taxon_num_markers column")
	}

	if *totalNumTaxa != 0 && *totalNumTaxa < len(rows) {
		log.Fatalf("--total-num-taxa provided (%d) is lower than the number of data rows (%d)", *totalNumTaxa, len(rows))
	}

	requireMin := 0
	if *useNoiseModel {
		counts, err := noise.Histogram(taxonNumMarkers(rows, markersCol), *totalNumTaxa)
		if err != nil {
			log.Fatalf("building noise-model histogram: %v", err)
		}
		cutoffFit := noise.CutoffFit(counts, *betaSampleSize, logger)
		if *requireMinMarkers != 0 && *requireMinMarkers > cutoffFit {
			logger.Printf("Cutoff fit is less than --require-min-markers value - will use that instead: %d", *requireMinMarkers)
			requireMin = *requireMinMarkers
		} else {
			requireMin = cutoffFit
		}
	} else if *requireMinMarkers != 0 {
		requireMin = *requireMinMarkers
	}

	if requireMin != 0 {
		kept := rows[:0]
		for _, row := range rows {
			n, err := strconv.Atoi(row[markersCol])
			if err != nil {
				log.Fatalf("parsing taxon_num_markers %q: %v", row[markersCol], err)
			}
			if n >= requireMin {
				kept = append(kept, row)
			}
		}
		rows = kept
		logger.Printf("Kept %d taxa with at least %d markers", len(rows), requireMin)
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("creating output: %v", err)
	}
	defer out.Close()
	if err := writeTSV(out, header, rows); err != nil {
		log.Fatalf("writing output: %v", err)
	}
	logger.Printf("tab-separated file with %d data rows written to %s", len(rows), *outputPath)
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func taxonNumMarkers(rows [][]string, col int) []int {
	out := make([]int, len(rows))
	for i, row := range rows {
		n, err := strconv.Atoi(row[col])
		if err != nil {
			log.Fatalf("parsing taxon_num_markers %q: %v", row[col], err)
		}
		out[i] = n
	}
	return out
}

func readTSV(r io.Reader) (rows [][]string, header []string, err error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[1:], records[0], nil
}

func writeTSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	cw.UseCRLF = false
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
