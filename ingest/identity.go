// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ingest

import (
	"fmt"
	"math"
	"unicode"

	"github.com/biogo/hts/sam"
)

// mdTag is the SAM optional field holding the mismatch-descriptor string.
var mdTag = sam.Tag{'M', 'D'}

// round6 rounds a value to six decimal places, matching the Python
// implementation's round(x, 6) at ingestion.
func round6(v float64) float64 {
	const scale = 1e6
	return math.Round(v*scale) / scale
}

// queryLength returns the length of the query sequence implied by the
// record's CIGAR, counting only operations that consume query bases
// (M, I, S, =, X). This mirrors pysam's infer_query_length for mapped
// reads.
func queryLength(r *sam.Record) int {
	n := 0
	for _, co := range r.Cigar {
		n += co.Type().Consumes().Query * co.Len()
	}
	if n == 0 {
		// Unaligned or CIGAR-less record: fall back to the raw sequence length.
		n = r.Seq.Length
	}
	return n
}

// Identity computes the fraction of aligned bases in record that match the
// reference, using its MD tag, and the length-normalized coverage
// contribution of the record against a reference of the given length.
//
// It returns an error if the record carries no MD tag.
func Identity(r *sam.Record, referenceLength int) (identity, coverage float64, err error) {
	aux := r.AuxFields.Get(mdTag)
	if aux == nil {
		return 0, 0, fmt.Errorf("ingest: record %q lacks an MD tag", r.Name)
	}
	md, ok := aux.Value().(string)
	if !ok {
		return 0, 0, fmt.Errorf("ingest: record %q has a non-string MD tag", r.Name)
	}

	qlen := queryLength(r)
	matches, deletions := splitMD(md)
	totalBases := qlen + deletions
	if totalBases == 0 {
		return 0, 0, fmt.Errorf("ingest: record %q has zero-length alignment", r.Name)
	}
	identity = round6(float64(matches) / float64(totalBases))

	if referenceLength <= 0 {
		return 0, 0, fmt.Errorf("ingest: record %q aligned to a reference of non-positive length", r.Name)
	}
	coverage = round6(float64(qlen) / float64(referenceLength))

	return identity, coverage, nil
}

// splitMD parses an MD tag into the number of matching bases (M runs) and
// the number of deleted reference bases (^ runs). Substitutions (bare
// letters, X runs) contribute to neither and are implicitly counted as
// mismatches against totalBases.
func splitMD(md string) (matches, deletions int) {
	i := 0
	for i < len(md) {
		switch {
		case unicode.IsDigit(rune(md[i])):
			j := i
			for j < len(md) && unicode.IsDigit(rune(md[j])) {
				j++
			}
			n := 0
			for _, c := range md[i:j] {
				n = n*10 + int(c-'0')
			}
			matches += n
			i = j
		case md[i] == '^':
			j := i + 1
			for j < len(md) && unicode.IsLetter(rune(md[j])) {
				j++
			}
			deletions += j - (i + 1)
			i = j
		default:
			// Substitution: a single mismatched reference base.
			i++
		}
	}
	return matches, deletions
}
