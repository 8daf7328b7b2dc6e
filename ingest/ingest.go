// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ingest reads marker-gene alignment records and attributes each
// one to a (taxon, marker, query) triple with an identity and coverage
// score, applying the configured quality filters along the way.
package ingest

import (
	"fmt"
	"io"

	"github.com/biogo/hts/sam"

	"github.com/kortschak/markeralign/refdb"
)

// Reader is satisfied by both *sam.Reader and *bam.Reader.
type Reader interface {
	Read() (*sam.Record, error)
}

// Sink receives accepted alignments. *store.Store implements Sink.
type Sink interface {
	AddAlignment(taxon, marker, query string, identity, coverage float64) error
}

// Filters holds the ingestion-time quality thresholds (§6 "Ingestion
// filters").
type Filters struct {
	MinMapQ          int
	MinQueryLength   int
	MinMatchIdentity float64
}

// Stats summarizes one ingestion run, for logging.
type Stats struct {
	Read     int
	Accepted int
}

// referenceLengths looks up a reference sequence's length by name.
type referenceLengths interface {
	Ref(name string) (length int, ok bool)
}

// headerRefLengths adapts a *sam.Header to referenceLengths.
type headerRefLengths struct{ h *sam.Header }

func (h headerRefLengths) Ref(name string) (int, bool) {
	r := h.h.Refs()
	for _, ref := range r {
		if ref.Name() == name {
			return ref.Len(), true
		}
	}
	return 0, false
}

// Run streams records from r, computing identity and coverage for each and
// forwarding accepted rows to sink. header provides reference lengths for
// coverage normalization. patterns resolves taxon and marker names from
// reference names. It stops and returns an error on the first record that
// fails a hard parse requirement (missing MD tag, unparsable reference
// name); quality filters instead skip the record.
func Run(r Reader, header *sam.Header, patterns *refdb.Patterner, filters Filters, sink Sink) (Stats, error) {
	refs := headerRefLengths{header}
	var stats Stats
	for {
		rec, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return stats, fmt.Errorf("ingest: reading alignment: %w", err)
		}
		stats.Read++

		if rec.Ref == nil || rec.Ref.Name() == "" {
			return stats, fmt.Errorf("ingest: record %q missing reference name", rec.Name)
		}
		refLen, ok := refs.Ref(rec.Ref.Name())
		if !ok {
			refLen = rec.Ref.Len()
		}

		identity, coverage, err := Identity(rec, refLen)
		if err != nil {
			return stats, err
		}

		if int(rec.MapQ) < filters.MinMapQ {
			continue
		}
		if queryLength(rec) < filters.MinQueryLength {
			continue
		}
		if identity < filters.MinMatchIdentity {
			continue
		}

		taxon, marker := patterns.TaxonAndMarker(rec.Ref.Name())
		if taxon == "" {
			return stats, fmt.Errorf("ingest: could not find taxon in reference name %q", rec.Ref.Name())
		}
		if marker == "" {
			return stats, fmt.Errorf("ingest: could not find marker in reference name %q", rec.Ref.Name())
		}

		if err := sink.AddAlignment(taxon, marker, rec.Name, identity, coverage); err != nil {
			return stats, fmt.Errorf("ingest: storing alignment: %w", err)
		}
		stats.Accepted++
	}
	return stats, nil
}
