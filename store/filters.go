// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

// Each Filter* method rewrites the alignment table in place, keeping the
// displaced table under a history snapshot (§4.4). summarize-marker-alignments
// applies them in a fixed order: cluster averages (after marker
// clustering), then multiple matches, then markers/reads, then (after
// taxon clustering) the thresholds-and-clusters relabel transform. It does
// not call FilterMinAvgIdentity.

const filterMultipleMatchesQuery = `
  select a.* from alignment a,
  (
    select taxon,
       count(*) as num_matches,
       sum(is_unique) as num_unique_matches,
       sum(is_best) as num_best_matches,
       sum(is_inferior) as num_inferior_matches
    from   (select a.taxon,
      s.num_taxa == 1 as is_unique,
      s.num_taxa > 1 and s.top_identity - max(a.identity) < 1e-6 as is_best,
      s.num_taxa > 1 and s.top_identity - max(a.identity) > 1e-6 as is_inferior
      from   alignment a,
           (select query,
               Max(identity) as top_identity,
               count(distinct taxon) as num_taxa
          from   alignment
          group  by query) s
      where  a.query = s.query
      group by a.query, a.taxon
      )
    group  by taxon
  ) t
  where a.taxon = t.taxon and (t.num_unique_matches + t.num_best_matches) >= (?) * t.num_matches
`

// FilterFractionPrimaryMatches keeps taxa for which at least
// minFractionPrimaryMatches of (query, taxon) placements are unique or
// best (§4.4 "Fraction-primary-matches").
func (s *Store) FilterFractionPrimaryMatches(minFractionPrimaryMatches float64) error {
	return s.modifyTable("multiple_matches", filterMultipleMatchesQuery, minFractionPrimaryMatches)
}

const filterNumMarkersAndReadsQuery = `
  select a.* from alignment a,
  (
    select taxon,
    count(distinct marker) as num_markers,
    count(distinct query) as num_reads
    from   (
      select a.taxon, a.marker, a.query
      from   alignment a,
           (select query,
               Max(identity) as top_identity,
               count(distinct taxon) as num_taxa
          from   alignment
          group  by query) s
      where  a.query = s.query
      group by a.query, a.taxon, a.marker
      having s.top_identity - max(a.identity) < 1e-6
      )
    group  by taxon
  ) t
  where a.taxon = t.taxon and t.num_markers >= (?) and t.num_reads >= (?)
`

// FilterMinMarkersAndReads keeps taxa with at least minNumMarkers distinct
// markers and minNumReads distinct reads among their best placements
// (§4.4 "Min markers/reads").
func (s *Store) FilterMinMarkersAndReads(minNumMarkers, minNumReads int) error {
	return s.modifyTable("num_markers", filterNumMarkersAndReadsQuery, minNumMarkers, minNumReads)
}

const filterAvgIdentityQuery = `
  select a.* from alignment a,
  (
    select taxon,
      avg(top_identity) as avg_identity
    from   (select a.taxon,
            max(a.identity) as top_identity
            from alignment a
            group by a.query, a.taxon
            )
    group  by taxon
  ) t
  where a.taxon = t.taxon and t.avg_identity >= (?)
`

// FilterMinAvgIdentity keeps taxa whose mean per-query top identity is at
// least minAvgIdentity (§4.4 "Min average identity").
func (s *Store) FilterMinAvgIdentity(minAvgIdentity float64) error {
	return s.modifyTable("avg_identity", filterAvgIdentityQuery, minAvgIdentity)
}

const filterClusterAveragesQuery = `
  select a.* from alignment a,
  (
    select taxon,
      sum(higher_identity) as num_markers_at_least_cluster_average,
      sum(lower_identity) as num_markers_below_cluster_average
    from (
  select t1.*,
        t2.avg_cluster_identity,
        t2.num_taxa,
        t2.avg_cluster_identity - avg_identity < 1e-6 as higher_identity,
        t2.avg_cluster_identity - avg_identity >= 1e-6 as lower_identity
        from (
          select id, mc.taxon, mc.marker, count(distinct query) as num_matches, avg(identity) as avg_identity
            from marker_cluster mc, alignment a
            where mc.taxon = a.taxon and mc.marker = a.marker
            group by id, mc.taxon, mc.marker
        ) t1, (
        select id, avg(identity) as avg_cluster_identity, count(distinct mc.taxon) as num_taxa
            from marker_cluster mc, alignment a
            where mc.taxon = a.taxon and mc.marker = a.marker
            group by id
        ) t2
        where t1.id = t2.id
       )
    group by taxon
  ) t
  where a.taxon = t.taxon and num_markers_at_least_cluster_average >= (?) * num_markers_below_cluster_average
`

// FilterMarkerClusterAverages keeps taxa whose ratio of markers scoring at
// least their cluster's average identity to markers below it is at least
// minBetterClusterAveragesRatio (§4.4 "Marker-cluster averages"). It
// requires that ClusterMarkers has already populated the marker_cluster
// table.
func (s *Store) FilterMarkerClusterAverages(minBetterClusterAveragesRatio float64) error {
	return s.modifyTable("cluster_averages", filterClusterAveragesQuery, minBetterClusterAveragesRatio)
}

const transformThresholdsAndClustersQuery = `
select t.mapped_taxon as taxon, a.marker, a.query, a.identity, a.coverage from alignment a,
(
    select tc.taxon as original_taxon, tc.taxon as mapped_taxon
    from taxon_cluster tc, alignment al
    where tc.taxon = al.taxon
    group by tc.id, tc.taxon
    having avg(al.identity) >= (?)

    union

    select
      tc.taxon as original_taxon,
      m.mapped_taxon
    from taxon_cluster tc,
    (
      select id, '?' || group_concat(taxon) as mapped_taxon
      from (
        select tc.id,
          tc.taxon,
          count(distinct al.marker) as num_markers,
          count(distinct al.query) as num_reads,
          avg(al.identity) as avg_identity
        from taxon_cluster tc, alignment al
        where tc.taxon = al.taxon
        group by tc.id, tc.taxon
        having avg(al.identity) < (?)
      ) group by id
      having
      (?) > 0 and count(distinct taxon) >= (?) and sum(num_markers) >= (?) and sum(num_reads) >= (?)
    ) m
    where tc.id = m.id
) t
where a.taxon = t.original_taxon
`

// ThresholdsAndClusters configures the final relabel transform (§4.4
// "Thresholds-and-clusters relabel transform").
type ThresholdsAndClusters struct {
	ThresholdIdentity          float64
	MinNumTaxaBelowIdentity    int
	MinNumMarkersBelowIdentity int
	MinNumReadsBelowIdentity   int
}

// TransformThresholdsAndClusters applies the final relabel transform: taxa
// in a cluster meeting the identity threshold are kept as-is; the rest of
// a cluster, if it collectively clears the taxa/markers/reads minimums, is
// coalesced into a single synthetic "?"-prefixed taxon; otherwise dropped.
// It requires that ClusterTaxa has already populated the taxon_cluster
// table.
func (s *Store) TransformThresholdsAndClusters(cfg ThresholdsAndClusters) error {
	tryUnknown := 0
	if cfg.MinNumTaxaBelowIdentity != 0 || cfg.MinNumMarkersBelowIdentity != 0 || cfg.MinNumReadsBelowIdentity != 0 {
		tryUnknown = 1
	}
	return s.modifyTable("thresholds_and_clusters", transformThresholdsAndClustersQuery,
		cfg.ThresholdIdentity, cfg.ThresholdIdentity, tryUnknown,
		cfg.MinNumTaxaBelowIdentity, cfg.MinNumMarkersBelowIdentity, cfg.MinNumReadsBelowIdentity)
}
