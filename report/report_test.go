// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kortschak/markeralign/store"
)

func TestWriteMarkerCoverage(t *testing.T) {
	s, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()
	if err := s.AddAlignment("taxon_1", "marker_1", "query_1", 1.0, 0.111); err != nil {
		t.Fatalf("AddAlignment: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, s, store.MarkerCoverage, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (header + 1 row): %q", len(lines), buf.String())
	}
	if lines[0] != "taxon\tmarker\tmarker_coverage" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "taxon_1\tmarker_1\t0.111000" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteTaxonReadAndMarkerCount(t *testing.T) {
	s, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()
	if err := s.AddAlignment("taxon_1", "marker_1", "query_1", 1.0, 0.111); err != nil {
		t.Fatalf("AddAlignment: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, s, store.TaxonReadAndMarkerCount, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "taxon\ttaxon_num_reads\ttaxon_num_markers\ttaxon_max_reads_in_marker" {
		t.Errorf("header = %q", lines[0])
	}
	// taxon_num_markers is formatted as a plain integer, not six decimals.
	if lines[1] != "taxon_1\t1.000000\t1\t1.000000" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestFormatForUnknownColumnDefaultsToString(t *testing.T) {
	if got := formatFor("taxon"); got != "%s" {
		t.Errorf("formatFor(taxon) = %q, want %%s", got)
	}
}

func TestFormatCellCoercesTypes(t *testing.T) {
	cases := []struct {
		column string
		value  any
		want   string
	}{
		{"marker_coverage", float64(0.5), "0.500000"},
		{"marker_coverage", int64(1), "1.000000"},
		{"taxon_num_markers", int64(3), "3"},
		{"taxon", "foo", "foo"},
		{"taxon", []byte("foo"), "foo"},
		{"taxon", nil, ""},
	}
	for _, c := range cases {
		if got := formatCell(c.column, c.value); got != c.want {
			t.Errorf("formatCell(%q, %v) = %q, want %q", c.column, c.value, got, c.want)
		}
	}
}
