// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ingest

import (
	"testing"

	"github.com/biogo/hts/sam"
)

func TestRound6(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.1410256410256410, 0.141026},
		{0.9333333333333333, 0.933333},
		{1, 1},
		{0, 0},
	}
	for _, c := range cases {
		if got := round6(c.in); got != c.want {
			t.Errorf("round6(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSplitMD(t *testing.T) {
	cases := []struct {
		md              string
		matches, delete int
	}{
		{"100", 100, 0},
		{"10A5", 15, 0},
		{"10^AC5", 15, 2},
		{"5A^GG10", 15, 2},
		{"0", 0, 0},
	}
	for _, c := range cases {
		matches, deletions := splitMD(c.md)
		if matches != c.matches || deletions != c.delete {
			t.Errorf("splitMD(%q) = (%d, %d), want (%d, %d)", c.md, matches, deletions, c.matches, c.delete)
		}
	}
}

func newRecord(t *testing.T, cigar sam.Cigar, md string) *sam.Record {
	t.Helper()
	r := &sam.Record{Name: "read", Cigar: cigar}
	if md != "" {
		aux, err := sam.NewAux(mdTag, md)
		if err != nil {
			t.Fatalf("sam.NewAux: %v", err)
		}
		r.AuxFields = append(r.AuxFields, aux)
	}
	return r
}

func TestIdentityAllMatches(t *testing.T) {
	r := newRecord(t, sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 100)}, "100")
	identity, coverage, err := Identity(r, 200)
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if identity != 1 {
		t.Errorf("identity = %v, want 1", identity)
	}
	if coverage != 0.5 {
		t.Errorf("coverage = %v, want 0.5", coverage)
	}
}

func TestIdentityWithMismatchesAndDeletion(t *testing.T) {
	// 20 query bases consumed by the CIGAR, MD says 19 matched, one base
	// substituted, and 2 reference bases deleted: total_bases = 20+2 = 22.
	r := newRecord(t, sam.Cigar{
		sam.NewCigarOp(sam.CigarMatch, 10),
		sam.NewCigarOp(sam.CigarDeletion, 2),
		sam.NewCigarOp(sam.CigarMatch, 10),
	}, "10^AC5A4")
	identity, _, err := Identity(r, 100)
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	want := round6(19.0 / 22.0)
	if identity != want {
		t.Errorf("identity = %v, want %v", identity, want)
	}
}

func TestIdentityMissingMDTag(t *testing.T) {
	r := newRecord(t, sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 10)}, "")
	if _, _, err := Identity(r, 100); err == nil {
		t.Fatal("Identity: want error for missing MD tag")
	}
}

func TestQueryLengthCountsConsumingOps(t *testing.T) {
	r := &sam.Record{Cigar: sam.Cigar{
		sam.NewCigarOp(sam.CigarSoftClipped, 5),
		sam.NewCigarOp(sam.CigarMatch, 20),
		sam.NewCigarOp(sam.CigarDeletion, 3),
		sam.NewCigarOp(sam.CigarInsertion, 2),
	}}
	if got := queryLength(r); got != 27 {
		t.Errorf("queryLength = %d, want 27", got)
	}
}
