// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refdb parses taxon and marker names out of reference sequence
// names, the way a marker-gene reference database names its entries.
package refdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Predefined reference database name layouts.
const (
	Eukprot    = "eukprot"
	Chocophlan = "chocophlan"
	Generic    = "generic"
	NoSplit    = "no-split"
)

const (
	eukprotTaxon    = `^[^-]+-([^-]+)-.*$`
	eukprotMarker   = `^[^-]+-[^-]+-(.*)$`
	chocophlanTaxon = `s__(.*?)\|`
	chocophlanMaker = `(UniRef90[^|]*)`
	noSplitTaxon    = `(^)`
	noSplitMarker   = `(.*)`
)

// Patterns returns the taxon and marker regular expressions for a named
// refdb format. It reports false if format is not one of the predefined
// names.
func Patterns(format string) (taxon, marker string, ok bool) {
	switch format {
	case Eukprot:
		return eukprotTaxon, eukprotMarker, true
	case Chocophlan:
		return chocophlanTaxon, chocophlanMaker, true
	case NoSplit:
		return noSplitTaxon, noSplitMarker, true
	case Generic:
		return strings.Join([]string{eukprotTaxon, chocophlanTaxon, `(^[^:|]*)[:|]`, noSplitTaxon}, "|"),
			strings.Join([]string{eukprotMarker, chocophlanMaker, `[:|]?([^:|]*)$`}, "|"),
			true
	default:
		return "", "", false
	}
}

// Patterner resolves the taxon and marker substrings of a reference
// sequence name and, optionally, merges in a marker-to-taxon lookup table.
type Patterner struct {
	taxon, marker *regexp.Regexp
	markerToTaxon map[string]string
}

// New builds a Patterner from compiled taxon and marker regular
// expressions and an optional marker-to-taxon lookup (nil or empty is
// equivalent to no lookup).
func New(taxon, marker *regexp.Regexp, markerToTaxon map[string]string) *Patterner {
	return &Patterner{taxon: taxon, marker: marker, markerToTaxon: markerToTaxon}
}

// NewFromStrings compiles taxon and marker regular expression source and
// returns a Patterner, or an error if either fails to compile.
func NewFromStrings(taxonPattern, markerPattern string, markerToTaxon map[string]string) (*Patterner, error) {
	tp, err := regexp.Compile(taxonPattern)
	if err != nil {
		return nil, fmt.Errorf("refdb: invalid taxon pattern %q: %w", taxonPattern, err)
	}
	mp, err := regexp.Compile(markerPattern)
	if err != nil {
		return nil, fmt.Errorf("refdb: invalid marker pattern %q: %w", markerPattern, err)
	}
	return New(tp, mp, markerToTaxon), nil
}

// firstGroup returns the first non-empty submatch group of a match, or ""
// if there is none. The generic pattern is an alternation of several
// subpatterns each with their own capture group; only one branch fires
// per match, so its group is the only one with content.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// TaxonAndMarker resolves the taxon and marker names for a reference
// sequence name. If a marker-to-taxon lookup produced a taxon and the
// regex also produced one, the result is "lookup|regex". An empty taxon
// or marker (both returned as "") means the reference name could not be
// parsed; the caller should treat this as a parse error.
func (p *Patterner) TaxonAndMarker(referenceName string) (taxon, marker string) {
	lookupTaxon, haveLookup := p.markerToTaxon[referenceName]

	taxonMatch := p.taxon.FindStringSubmatch(referenceName)
	switch {
	case taxonMatch != nil && haveLookup:
		taxon = lookupTaxon + "|" + firstGroup(taxonMatch)
	case taxonMatch != nil:
		taxon = firstGroup(taxonMatch)
	case haveLookup:
		taxon = lookupTaxon
	}

	markerMatch := p.marker.FindStringSubmatch(referenceName)
	switch {
	case markerMatch != nil:
		marker = firstGroup(markerMatch)
	case taxonMatch != nil:
		// The taxon regex matched but the marker regex did not: the
		// reference name format is understood, it just carries no marker.
		marker = ""
	default:
		marker = referenceName
	}

	return taxon, marker
}

// ReadMarkerToTaxon reads a two-column, tab-separated marker name / taxon
// name lookup file.
func ReadMarkerToTaxon(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readMarkerToTaxon(f)
}

func readMarkerToTaxon(r io.Reader) (map[string]string, error) {
	result := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, fmt.Errorf("refdb: malformed marker-to-taxon line: %q", line)
		}
		result[fields[0]] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
