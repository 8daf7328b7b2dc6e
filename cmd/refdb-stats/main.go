// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// refdb-stats reports how many reference names in a list are
// successfully parsed into a taxon and marker by a given refdb format,
// and the spread of markers per taxon, before committing to a full
// summarize-marker-alignments run (§9).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/kortschak/markeralign/refdb"
)

var (
	input  = flag.String("input", "", "file with one reference name per line (required)")
	format = flag.String("refdb-format", "generic", "reference database format: eukprot, chocophlan, generic, no-split")
)

func main() {
	flag.Parse()
	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	taxonPattern, markerPattern, ok := refdb.Patterns(*format)
	if !ok {
		fmt.Fprintf(os.Stderr, "refdb-stats: unknown refdb format: %s\n", *format)
		os.Exit(2)
	}
	patterns, err := refdb.NewFromStrings(taxonPattern, markerPattern, nil)
	if err != nil {
		log.Fatalf("compiling refdb patterns: %v", err)
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("opening input: %v", err)
	}
	defer f.Close()

	taxonNumMarkers := make(map[string]int)
	var total, unparsed int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := sc.Text()
		if name == "" {
			continue
		}
		total++
		taxon, marker := patterns.TaxonAndMarker(name)
		if taxon == "" || marker == "" {
			unparsed++
			continue
		}
		taxonNumMarkers[taxon]++
	}
	if err := sc.Err(); err != nil {
		log.Fatalf("reading input: %v", err)
	}

	fmt.Printf("Num reference names: %d\n", total)
	fmt.Printf("Num unparsed: %d\n", unparsed)
	fmt.Printf("Num taxa: %d\n", len(taxonNumMarkers))

	if len(taxonNumMarkers) == 0 {
		return
	}

	counts := make([]int, 0, len(taxonNumMarkers))
	var totalMarkers int
	for _, n := range taxonNumMarkers {
		counts = append(counts, n)
		totalMarkers += n
	}
	sort.Ints(counts)

	mean := float64(totalMarkers) / float64(len(counts))
	var variance float64
	if len(counts) > 1 {
		var ss float64
		for _, n := range counts {
			d := float64(n) - mean
			ss += d * d
		}
		variance = ss / float64(len(counts)-1)
	}

	fmt.Printf("Num markers: %d\n", totalMarkers)
	fmt.Printf("Mean markers per taxon: %.6f\n", mean)
	fmt.Printf("Variance markers per taxon: %.6f\n", variance)
	fmt.Printf("Min markers per taxon: %d\n", counts[0])
	fmt.Printf("Max markers per taxon: %d\n", counts[len(counts)-1])
}
