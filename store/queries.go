// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
)

// View names the closed set of aggregation views the store can report
// (§4.3).
type View string

// The enumerated output views.
const (
	MarkerCoverage           View = "marker_coverage"
	MarkerReadCount          View = "marker_read_count"
	MarkerCPM                View = "marker_cpm"
	MarkerAll                View = "marker_all"
	TaxonCoverage            View = "taxon_coverage"
	TaxonReadAndMarkerCount  View = "taxon_read_and_marker_count"
	TaxonCPM                 View = "taxon_cpm"
	TaxonAll                 View = "taxon_all"
	PairsOfTaxaSharedQueries View = "pairs_of_taxa_shared_queries"
	TaxaInMarkerClusters     View = "taxa_in_marker_clusters"
)

// Views lists the closed set of view names, in a stable order.
func Views() []View {
	return []View{
		MarkerCoverage, MarkerReadCount, MarkerCPM, MarkerAll,
		TaxonCoverage, TaxonReadAndMarkerCount, TaxonCPM, TaxonAll,
		PairsOfTaxaSharedQueries, TaxaInMarkerClusters,
	}
}

// RequiresTotalReads reports whether a view's query needs the total
// number of reads (its name contains "cpm" or "all", per §6).
func RequiresTotalReads(v View) bool {
	switch v {
	case MarkerCPM, MarkerAll, TaxonCPM, TaxonAll:
		return true
	default:
		return false
	}
}

// Valid reports whether v is one of the enumerated views.
func Valid(v View) bool {
	for _, want := range Views() {
		if v == want {
			return true
		}
	}
	return false
}

// Within a query, disambiguate multiple placements of the same query
// against the same (taxon, marker) by taking the max identity, and split
// read/coverage credit across (taxon, marker, query) triples in
// proportion to identity squared (§4.3).
const markerQueryTemplate = `
  select taxon, marker, %s from (
    select
      a.query,
      a.taxon,
      a.marker,
      max(a.identity) as identity,
      %s
    from
      alignment a join (
      select query, sum(identity * identity) as total_weight_for_query
        from alignment group by query
      ) as m
    where a.query = m.query
    group by a.taxon, a.marker, a.query
  ) group by taxon, marker
`

const (
	sumCoverage        = "sum(coverage) as marker_coverage"
	proportionalCov    = "sum(a.coverage * a.identity * a.identity) / (m.total_weight_for_query) as coverage"
	sumReadAndIdentity = "sum(weight_fraction) as marker_read_count, avg(identity) as marker_avg_identity"
	weightFraction     = "sum(a.identity * a.identity) / (m.total_weight_for_query) as weight_fraction"
	sumCPM             = "sum(coverage) / (?) * 1000000 as marker_cpm"
)

var (
	markerCoverageQuery  = fmt.Sprintf(markerQueryTemplate, sumCoverage, proportionalCov)
	markerReadCountQuery = fmt.Sprintf(markerQueryTemplate, sumReadAndIdentity, weightFraction)
	markerCPMQuery       = fmt.Sprintf(markerQueryTemplate, sumCPM, proportionalCov)
	markerAllQuery       = fmt.Sprintf(markerQueryTemplate,
		sumCoverage+", "+sumCPM+", "+sumReadAndIdentity,
		proportionalCov+", "+weightFraction)
)

const taxonQueryTemplate = `
  select taxon, %s
  from (%s)
  group by taxon
`

const (
	avgCoverage = "avg(marker_coverage) as coverage"
	sumTaxonAgg = "sum(marker_read_count) as taxon_num_reads, count(marker) as taxon_num_markers, max(marker_read_count) as taxon_max_reads_in_marker"
	avgCPM      = "avg(marker_coverage) / (?) * 1000000 as cpm"
)

var (
	taxonCoverageQuery           = fmt.Sprintf(taxonQueryTemplate, avgCoverage, markerCoverageQuery)
	taxonReadAndMarkerCountQuery = fmt.Sprintf(taxonQueryTemplate, sumTaxonAgg, markerReadCountQuery)
	taxonCPMQuery                = fmt.Sprintf(taxonQueryTemplate, avgCPM, markerCoverageQuery)
	taxonAllQuery                = fmt.Sprintf(taxonQueryTemplate,
		avgCoverage+", "+avgCPM+", "+sumTaxonAgg, markerAllQuery)
)

const pairsOfTaxaSharedQueriesQuery = `
select aa.at as taxon_a, aa.bt as taxon_b, cast(sum_shared as real) / aaa.num_queries as fraction_shared from
(
    select at, bt, count(*) as sum_shared
    from (
      select
           a.taxon at,
           b.taxon bt,
           a.query
      from   alignment a,
           alignment b
      where  a.query = b.query
      group by at, bt, a.query
    ) group by at, bt
) aa,
(
  select taxon, count(distinct query) as num_queries from alignment
  group by taxon
) aaa
where aa.at = aaa.taxon
`

const taxaInMarkerClustersQuery = `
select id as cluster_id, taxon, marker from marker_cluster order by id, taxon, marker
`

// columnsFor returns the header row for a view.
func columnsFor(v View) ([]string, error) {
	switch v {
	case MarkerCoverage:
		return []string{"taxon", "marker", "marker_coverage"}, nil
	case MarkerReadCount:
		return []string{"taxon", "marker", "marker_read_count", "marker_avg_identity"}, nil
	case MarkerCPM:
		return []string{"taxon", "marker", "marker_cpm"}, nil
	case MarkerAll:
		return []string{"taxon", "marker", "marker_coverage", "marker_cpm", "marker_read_count", "marker_avg_identity"}, nil
	case TaxonCoverage:
		return []string{"taxon", "coverage"}, nil
	case TaxonReadAndMarkerCount:
		return []string{"taxon", "taxon_num_reads", "taxon_num_markers", "taxon_max_reads_in_marker"}, nil
	case TaxonCPM:
		return []string{"taxon", "cpm"}, nil
	case TaxonAll:
		return []string{"taxon", "coverage", "cpm", "taxon_num_reads", "taxon_num_markers", "taxon_max_reads_in_marker"}, nil
	case PairsOfTaxaSharedQueries:
		return []string{"taxon_a", "taxon_b", "fraction_shared"}, nil
	case TaxaInMarkerClusters:
		return []string{"cluster_id", "taxon", "marker"}, nil
	default:
		return nil, fmt.Errorf("store: unknown view %q", v)
	}
}

func sqlFor(v View) (string, error) {
	switch v {
	case MarkerCoverage:
		return markerCoverageQuery, nil
	case MarkerReadCount:
		return markerReadCountQuery, nil
	case MarkerCPM:
		return markerCPMQuery, nil
	case MarkerAll:
		return markerAllQuery, nil
	case TaxonCoverage:
		return taxonCoverageQuery, nil
	case TaxonReadAndMarkerCount:
		return taxonReadAndMarkerCountQuery, nil
	case TaxonCPM:
		return taxonCPMQuery, nil
	case TaxonAll:
		return taxonAllQuery, nil
	case PairsOfTaxaSharedQueries:
		return pairsOfTaxaSharedQueriesQuery, nil
	case TaxaInMarkerClusters:
		return taxaInMarkerClustersQuery, nil
	default:
		return "", fmt.Errorf("store: unknown view %q", v)
	}
}

// argsFor builds the bound-parameter list a view's query needs.
// taxon_all binds total_reads twice (once for its own cpm, once for the
// marker_all it is built from); the rest bind it at most once.
func argsFor(v View, totalReads int) []any {
	switch v {
	case MarkerCPM, MarkerAll, TaxonCPM:
		return []any{totalReads}
	case TaxonAll:
		return []any{totalReads, totalReads}
	default:
		return nil
	}
}

// Report executes the aggregation query for view and returns its header
// row and data rows. totalReads is required (and only used) for views
// whose name contains "cpm" or "all"; callers should have validated that
// before calling Report.
func (s *Store) Report(v View, totalReads int) (columns []string, rows [][]any, err error) {
	columns, err = columnsFor(v)
	if err != nil {
		return nil, nil, err
	}
	query, err := sqlFor(v)
	if err != nil {
		return nil, nil, err
	}

	sqlRows, err := s.db.Query(query, argsFor(v, totalReads)...)
	if err != nil {
		return nil, nil, fmt.Errorf("store: running view %q: %w", v, err)
	}
	defer sqlRows.Close()

	for sqlRows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := sqlRows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("store: scanning view %q: %w", v, err)
		}
		rows = append(rows, vals)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store: reading view %q: %w", v, err)
	}
	return columns, rows, nil
}
