// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// summarize-marker-alignments processes and summarizes alignments of
// metagenomic sequencing reads to reference databases of marker genes
// (§1, §6).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/kortschak/markeralign/ingest"
	"github.com/kortschak/markeralign/refdb"
	"github.com/kortschak/markeralign/report"
	"github.com/kortschak/markeralign/store"
)

var (
	input                  = flag.String("input", "", "input SAM/BAM (required)")
	sqliteDBPath           = flag.String("sqlite-db-path", "", "store a sqlite database under this path instead of in memory")
	refdbFormat            = flag.String("refdb-format", "generic", "reference database format: eukprot, chocophlan, generic, no-split")
	refdbRegexTaxon        = flag.String("refdb-regex-taxon", "", "regex to read taxon name from reference name")
	refdbRegexMarker       = flag.String("refdb-regex-marker", "", "regex to read marker name from reference name")
	refdbMarkerToTaxonPath = flag.String("refdb-marker-to-taxon-path", "", "lookup file, two columns - marker name, taxon name")
	numReads               = flag.Int("num-reads", 0, "total number of reads (required for CPM output)")
	outputType             = flag.String("output-type", "marker_coverage", "output type: "+viewList())
	output                 = flag.String("output", "", "output path (required)")

	minReadMapQ          = flag.Int("min-read-mapq", 0, "skip alignments with MAPQ below this")
	minReadQueryLength   = flag.Int("min-read-query-length", 0, "skip alignments shorter than this")
	minReadMatchIdentity = flag.Float64("min-read-match-identity", 0, "skip alignments with match identity below this")

	minTaxonNumMarkers                 = flag.Int("min-taxon-num-markers", 0, "keep only taxa with at least this many markers")
	minTaxonNumReads                   = flag.Int("min-taxon-num-reads", 0, "keep only taxa with at least this many reads")
	minTaxonFractionPrimaryMatches     = flag.Float64("min-taxon-fraction-primary-matches", 0, "keep only taxa where at least this fraction of alignments are unique or best")
	minTaxonBetterClusterAveragesRatio = flag.Float64("min-taxon-better-marker-cluster-averages-ratio", 0, "keep only taxa where the ratio of above- to below-cluster-average markers is at least this")

	thresholdIdentityToCallTaxon          = flag.Float64("threshold-avg-match-identity-to-call-known-taxon", 0, "threshold on average match identity to return a taxon as-is")
	thresholdNumReadsToCallUnknownTaxon   = flag.Int("threshold-num-reads-to-call-unknown-taxon", 0, "reads required from a taxon cluster to call an unknown taxon")
	thresholdNumMarkersToCallUnknownTaxon = flag.Int("threshold-num-markers-to-call-unknown-taxon", 0, "markers required from a taxon cluster to call an unknown taxon")
	thresholdNumTaxaToCallUnknownTaxon    = flag.Int("threshold-num-taxa-to-call-unknown-taxon", 0, "taxa required in a cluster to call an unknown taxon")
)

func viewList() string {
	views := store.Views()
	names := make([]string, len(views))
	for i, v := range views {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

func configErrorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "summarize-marker-alignments: "+format+"\n", args...)
	os.Exit(2)
}

func main() {
	flag.Parse()

	if *input == "" || *output == "" {
		flag.Usage()
		os.Exit(2)
	}

	// §6 "It us unwise to combine --min-read-mapq and filters that rely on
	// secondary matches": both discard non-primary placements, so combining
	// them double-counts the effect.
	if *minReadMapQ != 0 && (*minTaxonFractionPrimaryMatches != 0 || *minTaxonBetterClusterAveragesRatio != 0) {
		configErrorf("it is unwise to combine --min-read-mapq and filters that rely on secondary matches")
	}

	if !store.Valid(store.View(*outputType)) {
		configErrorf("unknown output type: %s", *outputType)
	}

	taxonPattern, markerPattern := *refdbRegexTaxon, *refdbRegexMarker
	if *refdbFormat != "" {
		tp, mp, ok := refdb.Patterns(*refdbFormat)
		if !ok {
			configErrorf("unknown refdb format: %s", *refdbFormat)
		}
		taxonPattern, markerPattern = tp, mp
	}
	if taxonPattern == "" || markerPattern == "" {
		configErrorf("please provide either a refdb format, or taxon + marker regexes")
	}

	if store.RequiresTotalReads(store.View(*outputType)) && *numReads == 0 {
		configErrorf("--num-reads required for calculating %s", *outputType)
	}

	var markerToTaxon map[string]string
	if *refdbMarkerToTaxonPath != "" {
		m, err := refdb.ReadMarkerToTaxon(*refdbMarkerToTaxonPath)
		if err != nil {
			log.Fatalf("reading marker-to-taxon lookup: %v", err)
		}
		markerToTaxon = m
	}
	patterns, err := refdb.NewFromStrings(taxonPattern, markerPattern, markerToTaxon)
	if err != nil {
		configErrorf("%v", err)
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("opening input: %v", err)
	}
	defer f.Close()

	var r ingest.Reader
	var header *sam.Header
	switch ext := strings.TrimPrefix(filepath.Ext(*input), "."); ext {
	case "bam":
		br, err := bam.NewReader(f, 0)
		if err != nil {
			log.Fatalf("opening bam: %v", err)
		}
		defer br.Close()
		r, header = br, br.Header()
	case "sam":
		sr, err := sam.NewReader(f)
		if err != nil {
			log.Fatalf("opening sam: %v", err)
		}
		r, header = sr, sr.Header()
	default:
		configErrorf("unrecognised input extension %q, want .sam or .bam", ext)
		return
	}

	s, err := store.Open(*sqliteDBPath)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	stats, err := ingest.Run(r, header, patterns, ingest.Filters{
		MinMapQ:          *minReadMapQ,
		MinQueryLength:   *minReadQueryLength,
		MinMatchIdentity: *minReadMatchIdentity,
	}, s)
	if err != nil {
		log.Fatalf("reading alignments: %v", err)
	}
	log.Printf("read %d alignments, accepted %d", stats.Read, stats.Accepted)

	if err := s.ClusterMarkers(); err != nil {
		log.Fatalf("clustering markers: %v", err)
	}

	if *minTaxonBetterClusterAveragesRatio != 0 {
		if err := s.FilterMarkerClusterAverages(*minTaxonBetterClusterAveragesRatio); err != nil {
			log.Fatalf("filtering on marker cluster averages: %v", err)
		}
	}

	if *minTaxonFractionPrimaryMatches != 0 {
		if err := s.FilterFractionPrimaryMatches(*minTaxonFractionPrimaryMatches); err != nil {
			log.Fatalf("filtering on fraction of primary matches: %v", err)
		}
	}

	if *minTaxonNumMarkers != 0 || *minTaxonNumReads != 0 {
		if err := s.FilterMinMarkersAndReads(*minTaxonNumMarkers, *minTaxonNumReads); err != nil {
			log.Fatalf("filtering on min markers/reads: %v", err)
		}
	}

	if err := s.ClusterTaxa(); err != nil {
		log.Fatalf("clustering taxa: %v", err)
	}

	if *thresholdIdentityToCallTaxon != 0 || *thresholdNumReadsToCallUnknownTaxon != 0 ||
		*thresholdNumMarkersToCallUnknownTaxon != 0 || *thresholdNumTaxaToCallUnknownTaxon != 0 {
		err := s.TransformThresholdsAndClusters(store.ThresholdsAndClusters{
			ThresholdIdentity:          *thresholdIdentityToCallTaxon,
			MinNumTaxaBelowIdentity:    *thresholdNumTaxaToCallUnknownTaxon,
			MinNumMarkersBelowIdentity: *thresholdNumMarkersToCallUnknownTaxon,
			MinNumReadsBelowIdentity:   *thresholdNumReadsToCallUnknownTaxon,
		})
		if err != nil {
			log.Fatalf("applying thresholds-and-clusters transform: %v", err)
		}
	}

	out, err := os.Create(*output)
	if err != nil {
		log.Fatalf("creating output: %v", err)
	}
	defer out.Close()

	if err := report.Write(out, s, store.View(*outputType), *numReads); err != nil {
		log.Fatalf("writing report: %v", err)
	}
}
