// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"math"
	"strings"
	"testing"
)

const totalReads = 100000

type alignment struct {
	taxon, marker, query string
	identity, coverage   float64
}

func newFilledStore(t *testing.T, alignments []alignment) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	for _, a := range alignments {
		if err := s.AddAlignment(a.taxon, a.marker, a.query, a.identity, a.coverage); err != nil {
			t.Fatalf("AddAlignment: %v", err)
		}
	}
	return s
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// cellsEqual compares a row of Report's any-valued cells to a row of
// expected values, tolerating int/float64 mismatches the SQLite driver
// can return for whole-number floats.
func cellsEqual(t *testing.T, got []any, want []any) bool {
	t.Helper()
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		switch w := want[i].(type) {
		case string:
			if got[i] != w {
				return false
			}
		case int:
			gf, ok := asFloat(got[i])
			if !ok || !closeEnough(gf, float64(w)) {
				return false
			}
		case float64:
			gf, ok := asFloat(got[i])
			if !ok || !closeEnough(gf, w) {
				return false
			}
		}
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func reportRow(t *testing.T, s *Store, v View) []any {
	t.Helper()
	_, rows, err := s.Report(v, totalReads)
	if err != nil {
		t.Fatalf("Report(%s): %v", v, err)
	}
	if len(rows) != 1 {
		t.Fatalf("Report(%s): got %d rows, want 1", v, len(rows))
	}
	return rows[0]
}

// Grounded on tests/store.py's test_one_read: a single alignment of one
// taxon against one marker.
func TestReportOneRead(t *testing.T) {
	s := newFilledStore(t, []alignment{
		{"taxon_1", "marker_1", "query_1", 1.0, 0.111},
	})

	if got := reportRow(t, s, MarkerCoverage); !cellsEqual(t, got, []any{"taxon_1", "marker_1", 0.111}) {
		t.Errorf("MarkerCoverage = %v", got)
	}
	if got := reportRow(t, s, MarkerCPM); !cellsEqual(t, got, []any{"taxon_1", "marker_1", 1.11}) {
		t.Errorf("MarkerCPM = %v", got)
	}
	// marker_read_count additionally carries marker_avg_identity, which
	// here equals 1.0 same as the read count.
	if got := reportRow(t, s, MarkerReadCount); !cellsEqual(t, got, []any{"taxon_1", "marker_1", 1.0, 1.0}) {
		t.Errorf("MarkerReadCount = %v", got)
	}
	if got := reportRow(t, s, TaxonCoverage); !cellsEqual(t, got, []any{"taxon_1", 0.111}) {
		t.Errorf("TaxonCoverage = %v", got)
	}
	if got := reportRow(t, s, TaxonCPM); !cellsEqual(t, got, []any{"taxon_1", 1.11}) {
		t.Errorf("TaxonCPM = %v", got)
	}
	if got := reportRow(t, s, TaxonReadAndMarkerCount); !cellsEqual(t, got, []any{"taxon_1", 1.0, 1, 1.0}) {
		t.Errorf("TaxonReadAndMarkerCount = %v", got)
	}
	if got := reportRow(t, s, TaxonAll); !cellsEqual(t, got, []any{"taxon_1", 0.111, 1.11, 1.0, 1, 1.0}) {
		t.Errorf("TaxonAll = %v", got)
	}
}

// Grounded on tests/store.py's test_one_read_two_markers: one query
// splits across two markers of the same taxon, weighted by identity^2
// (0.11^2 : 0.33^2 = 1 : 9, so 0.1 and 0.9 of the read).
func TestReportOneReadTwoMarkers(t *testing.T) {
	s := newFilledStore(t, []alignment{
		{"taxon_1", "marker_1", "query_1", 0.11, 0.444},
		{"taxon_1", "marker_2", "query_1", 0.33, 0.444},
	})

	_, rows, err := s.Report(MarkerCoverage, totalReads)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d marker_coverage rows, want 2", len(rows))
	}
	want := map[string]float64{"marker_1": 0.0444, "marker_2": 0.3996}
	for _, row := range rows {
		marker := row[1].(string)
		cov, _ := asFloat(row[2])
		if !closeEnough(cov, want[marker]) {
			t.Errorf("marker_coverage[%s] = %v, want %v", marker, cov, want[marker])
		}
	}

	if got := reportRow(t, s, TaxonCoverage); !cellsEqual(t, got, []any{"taxon_1", 0.222}) {
		t.Errorf("TaxonCoverage = %v", got)
	}
	if got := reportRow(t, s, TaxonReadAndMarkerCount); !cellsEqual(t, got, []any{"taxon_1", 1.0, 2, 0.9}) {
		t.Errorf("TaxonReadAndMarkerCount = %v", got)
	}
}

// Grounded on tests/store.py's test_two_reads_two_taxons: two
// independent (taxon, marker, query) triples, one per taxon.
func TestReportTwoReadsTwoTaxa(t *testing.T) {
	s := newFilledStore(t, []alignment{
		{"taxon_1", "marker_1", "query_1", 1.0, 0.111},
		{"taxon_2", "marker_2", "query_2", 1.0, 0.222},
	})

	_, rows, err := s.Report(TaxonAll, totalReads)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d taxon_all rows, want 2", len(rows))
	}
	want := map[string][]any{
		"taxon_1": {"taxon_1", 0.111, 1.11, 1.0, 1, 1.0},
		"taxon_2": {"taxon_2", 0.222, 2.22, 1.0, 1, 1.0},
	}
	for _, row := range rows {
		taxon := row[0].(string)
		if !cellsEqual(t, row, want[taxon]) {
			t.Errorf("taxon_all[%s] = %v, want %v", taxon, row, want[taxon])
		}
	}
}

func TestReportRejectsUnknownView(t *testing.T) {
	s := newFilledStore(t, nil)
	if _, _, err := s.Report(View("bogus"), 0); err == nil {
		t.Fatal("Report: want error for unknown view")
	}
}

// clusterIDs maps each member of a `(id, <name...>)`-shaped cluster table
// to its cluster id, keyed by the tab-joined name columns.
func clusterIDs(t *testing.T, s *Store, query string, nameCols int) map[string]int {
	t.Helper()
	rows, err := s.Query(query)
	if err != nil {
		t.Fatalf("querying cluster table: %v", err)
	}
	defer rows.Close()
	ids := make(map[string]int)
	for rows.Next() {
		var id int
		names := make([]any, nameCols)
		namePtrs := make([]any, nameCols)
		for i := range names {
			namePtrs[i] = &names[i]
		}
		dest := append([]any{&id}, namePtrs...)
		if err := rows.Scan(dest...); err != nil {
			t.Fatalf("scanning cluster row: %v", err)
		}
		parts := make([]string, nameCols)
		for i, v := range names {
			parts[i] = v.(string)
		}
		ids[strings.Join(parts, "\t")] = id
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("reading cluster table: %v", err)
	}
	return ids
}

// Grounded on the upstream contract that cluster_markers_by_matches and
// cluster_taxa_by_matches hand every (taxon,marker)/taxon pair to the
// clustering routine, including ones that share no query with any other
// pair — those still need to come back out as a one-member cluster of
// their own rather than being dropped, per §3 "each taxon participates in
// exactly one cluster" / "each (taxon, marker) participates in exactly one
// cluster".
func TestClusterMarkersAndTaxaPopulateTables(t *testing.T) {
	s := newFilledStore(t, []alignment{
		{"taxon_1", "marker_1", "query_1", 1.0, 0.5},
		{"taxon_1", "marker_2", "query_1", 1.0, 0.5},
		{"taxon_2", "marker_3", "query_2", 1.0, 0.5},
	})
	if err := s.ClusterMarkers(); err != nil {
		t.Fatalf("ClusterMarkers: %v", err)
	}
	_, clusterRows, err := s.Report(TaxaInMarkerClusters, totalReads)
	if err != nil {
		t.Fatalf("Report(%s): %v", TaxaInMarkerClusters, err)
	}
	if len(clusterRows) == 0 {
		t.Fatalf("TaxaInMarkerClusters returned no row")
	}

	markerIDs := clusterIDs(t, s, "select id, taxon, marker from marker_cluster", 2)
	if len(markerIDs) != 3 {
		t.Fatalf("marker_cluster has %d rows, want 3 (none dropped): %v", len(markerIDs), markerIDs)
	}
	m1, m2 := markerIDs["taxon_1\tmarker_1"], markerIDs["taxon_1\tmarker_2"]
	m3, ok := markerIDs["taxon_2\tmarker_3"]
	if !ok {
		t.Fatalf("marker_cluster has no entry for the isolated taxon_2/marker_3: %v", markerIDs)
	}
	if m1 != m2 {
		t.Errorf("marker_1 and marker_2 share query_1 but landed in different clusters: %d, %d", m1, m2)
	}
	if m3 == m1 {
		t.Errorf("isolated marker_3 landed in the same cluster as marker_1/marker_2, want its own singleton")
	}

	if err := s.ClusterTaxa(); err != nil {
		t.Fatalf("ClusterTaxa: %v", err)
	}
	taxonIDs := clusterIDs(t, s, "select id, taxon from taxon_cluster", 1)
	if len(taxonIDs) != 2 {
		t.Fatalf("taxon_cluster has %d rows, want 2 (none dropped): %v", len(taxonIDs), taxonIDs)
	}
	if taxonIDs["taxon_1"] == taxonIDs["taxon_2"] {
		t.Errorf("taxon_1 and taxon_2 share no query but landed in the same cluster")
	}
}

func TestFilterMinMarkersAndReadsKeepsQualifyingTaxa(t *testing.T) {
	s := newFilledStore(t, []alignment{
		{"taxon_1", "marker_1", "query_1", 1.0, 0.5},
		{"taxon_1", "marker_2", "query_2", 1.0, 0.5},
		{"taxon_2", "marker_1", "query_3", 1.0, 0.5},
	})
	if err := s.FilterMinMarkersAndReads(2, 2); err != nil {
		t.Fatalf("FilterMinMarkersAndReads: %v", err)
	}
	_, rows, err := s.Report(TaxonReadAndMarkerCount, 0)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "taxon_1" {
		t.Errorf("rows = %v, want only taxon_1", rows)
	}
	if len(s.History()) != 1 {
		t.Errorf("History has %d entries, want 1", len(s.History()))
	}
}
