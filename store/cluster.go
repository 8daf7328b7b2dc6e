// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"strings"

	"github.com/kortschak/markeralign/cluster"
)

const countsOfCommonMatchesInMarkersQuery = `
select
       a.taxon at,
       a.marker am,
       b.taxon bt,
       b.marker bm,
       count(distinct a.query)
from   alignment a,
       alignment b
where  a.query = b.query
group by at, bt, am, bm
`

const countsOfCommonMatchesInTaxaQuery = `
select aa.at, aa.bt, cast(sum_shared as real) / aaa.num_queries from
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

// markerVertex joins a (taxon, marker) pair with a tab into the single
// vertex name the marker clustering graph uses.
func markerVertex(taxon, marker string) string {
	return taxon + "\t" + marker
}

// splitMarkerVertex is the inverse of markerVertex.
func splitMarkerVertex(v string) (taxon, marker string) {
	taxon, marker, _ = strings.Cut(v, "\t")
	return taxon, marker
}

// ClusterMarkers groups (taxon, marker) pairs that tend to share queries
// into marker clusters (§4.5 "Marker clustering") and records the result
// in a fresh marker_cluster table. It must run before
// FilterMarkerClusterAverages.
//
// countsOfCommonMatchesInMarkersQuery includes the self-pair row every
// (taxon, marker) gets from sharing queries with itself; these are kept as
// self-edges so a (taxon, marker) with no other vertex sharing a query
// still reaches cluster.Clusters and survives as a singleton cluster,
// rather than being dropped from marker_cluster entirely.
func (s *Store) ClusterMarkers() error {
	rows, err := s.db.Query(countsOfCommonMatchesInMarkersQuery)
	if err != nil {
		return fmt.Errorf("store: counting common marker matches: %w", err)
	}
	var edges []cluster.Edge
	for rows.Next() {
		var at, am, bt, bm string
		var n float64
		if err := rows.Scan(&at, &am, &bt, &bm, &n); err != nil {
			rows.Close()
			return fmt.Errorf("store: scanning common marker matches: %w", err)
		}
		va, vb := markerVertex(at, am), markerVertex(bt, bm)
		edges = append(edges, cluster.Edge{A: va, B: vb, Weight: n})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("store: reading common marker matches: %w", err)
	}
	rows.Close()

	groups := cluster.Clusters(edges)

	if _, err := s.db.Exec(`create table marker_cluster (
		id number not null,
		taxon text not null,
		marker text not null
	)`); err != nil {
		return fmt.Errorf("store: creating marker_cluster table: %w", err)
	}

	if err := s.StartBulkWrite(); err != nil {
		return fmt.Errorf("store: starting marker cluster insert: %w", err)
	}
	stmt, err := s.db.Prepare(`insert into marker_cluster (id, taxon, marker) values (?,?,?)`)
	if err != nil {
		_ = s.EndBulkWrite()
		return fmt.Errorf("store: preparing marker cluster insert: %w", err)
	}
	for ix, group := range groups {
		id := ix + 1
		for _, v := range group {
			taxon, marker := splitMarkerVertex(v)
			if _, err := stmt.Exec(id, taxon, marker); err != nil {
				stmt.Close()
				_ = s.EndBulkWrite()
				return fmt.Errorf("store: inserting marker cluster row: %w", err)
			}
		}
	}
	stmt.Close()
	return s.EndBulkWrite()
}

// ClusterTaxa groups taxa that tend to share queries into taxon clusters
// (§4.5 "Taxon clustering") and records the result in a fresh
// taxon_cluster table. It must run before
// TransformThresholdsAndClusters.
//
// As in ClusterMarkers, countsOfCommonMatchesInTaxaQuery's self-pair row
// for each taxon is kept as a self-edge rather than discarded, so a taxon
// sharing no query with any other taxon still reaches cluster.Clusters and
// survives as a singleton cluster, satisfying "each taxon participates in
// exactly one cluster" (§3) even when it participates alone.
func (s *Store) ClusterTaxa() error {
	rows, err := s.db.Query(countsOfCommonMatchesInTaxaQuery)
	if err != nil {
		return fmt.Errorf("store: counting common taxon matches: %w", err)
	}
	var edges []cluster.Edge
	for rows.Next() {
		var at, bt string
		var fraction float64
		if err := rows.Scan(&at, &bt, &fraction); err != nil {
			rows.Close()
			return fmt.Errorf("store: scanning common taxon matches: %w", err)
		}
		edges = append(edges, cluster.Edge{A: at, B: bt, Weight: fraction})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("store: reading common taxon matches: %w", err)
	}
	rows.Close()

	groups := cluster.Clusters(edges)

	if _, err := s.db.Exec(`create table taxon_cluster (
		id number not null,
		taxon text not null
	)`); err != nil {
		return fmt.Errorf("store: creating taxon_cluster table: %w", err)
	}

	if err := s.StartBulkWrite(); err != nil {
		return fmt.Errorf("store: starting taxon cluster insert: %w", err)
	}
	stmt, err := s.db.Prepare(`insert into taxon_cluster (id, taxon) values (?,?)`)
	if err != nil {
		_ = s.EndBulkWrite()
		return fmt.Errorf("store: preparing taxon cluster insert: %w", err)
	}
	for ix, group := range groups {
		id := ix + 1
		for _, taxon := range group {
			if _, err := stmt.Exec(id, taxon); err != nil {
				stmt.Close()
				_ = s.EndBulkWrite()
				return fmt.Errorf("store: inserting taxon cluster row: %w", err)
			}
		}
	}
	stmt.Close()
	return s.EndBulkWrite()
}
