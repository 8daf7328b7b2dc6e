// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package noise selects a minimum-markers cutoff for calling a taxon
// present, by fitting a null model over the histogram of how many taxa
// were observed with exactly k markers.
package noise

import (
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// lengthLimit bounds how many histogram buckets the beta-binomial fit
// considers explicitly; counts at or beyond it fold into bucket 0 along
// with anything at or above the candidate cutoff.
const lengthLimit = 20

// CutoffFit selects the number of markers a taxon must carry to be kept,
// by maximizing the multinomial log-likelihood of the observed
// counts-with-k-markers histogram under a beta-binomial null model
// (§4.6). counts must include the k=0 bucket. betaSampleSize is the sum
// a+b of the beta distribution's shape parameters; a larger value models
// markers landing on taxa more uniformly. logger receives one line per
// candidate cutoff considered; pass log.New(io.Discard, "", 0) to
// silence it.
func CutoffFit(counts map[int]int, betaSampleSize float64, logger *log.Logger) int {
	m := maxKey(counts)
	if m < 2 {
		return 2
	}

	type scored struct {
		ll     float64
		cutoff int
	}
	var scores []scored
	for _, cutoff := range candidateCutoffs(counts) {
		ks := countsAsList(counts, cutoff)
		ll := logLikelihood(ks, betaSampleSize)
		logger.Printf("Cutoff %d: log likelihood %v", cutoff, ll)
		scores = append(scores, scored{ll, cutoff})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].ll != scores[j].ll {
			return scores[i].ll > scores[j].ll
		}
		return scores[i].cutoff < scores[j].cutoff
	})
	return scores[0].cutoff
}

func maxKey(m map[int]int) int {
	max := 0
	first := true
	for k := range m {
		if first || k > max {
			max = k
			first = false
		}
	}
	return max
}

// candidateCutoffs proposes, for each nonzero bucket, making that bucket
// the last one kept below the cutoff.
func candidateCutoffs(counts map[int]int) []int {
	seen := make(map[int]bool)
	for k := range counts {
		if k > 0 {
			seen[k+1] = true
		}
	}
	out := make([]int, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// countsAsList builds the truncated-and-pooled counts vector for a
// candidate cutoff: buckets below the cutoff and below lengthLimit are
// kept as-is; everything else (at or above the cutoff, or beyond
// lengthLimit) is folded into bucket 0.
func countsAsList(counts map[int]int, cutoff int) []float64 {
	m := maxKey(counts)
	limit := m + 2
	if limit > lengthLimit {
		limit = lengthLimit
	}

	ks := make([]float64, 0, limit)
	for j := 0; j < limit; j++ {
		n, ok := counts[j]
		if ok && j < cutoff {
			ks = append(ks, float64(n))
			continue
		}
		if ok {
			ks[0] += float64(n)
		}
		ks = append(ks, 0)
	}

	if m >= lengthLimit {
		for j := lengthLimit; j <= m+1; j++ {
			if n, ok := counts[j]; ok {
				ks[0] += float64(n)
			}
		}
	}
	return ks
}

// logLikelihood scores a truncated counts vector against a beta-binomial
// null model: each taxon's marker count is beta-binomial with mean
// 1/num_taxa of the total, and the vector of per-bucket counts is then
// multinomial in those per-bucket probabilities.
func logLikelihood(ks []float64, betaSampleSize float64) float64 {
	var totalMarkers float64
	for j, k := range ks {
		totalMarkers += float64(j) * k
	}
	numTaxa := floats.Sum(ks)

	p := 1.0 / numTaxa
	a := p * betaSampleSize
	b := (1 - p) * betaSampleSize

	ps := make([]float64, len(ks))
	for k := range ps {
		ps[k] = betaBinomPMF(k, totalMarkers, a, b)
	}

	ll := multinomialLogPMF(ks, numTaxa, ps)
	if math.IsNaN(ll) {
		return math.Inf(-1)
	}
	return ll
}

// betaBinomPMF is the beta-binomial probability mass function,
// P(X=k) = C(n,k) B(k+a, n-k+b) / B(a,b), computed in log space via
// math.Lgamma to avoid overflow for the marker counts this model sees.
func betaBinomPMF(k int, n, a, b float64) float64 {
	fk := float64(k)
	if fk < 0 || fk > n {
		return 0
	}
	logChoose := lgamma(n+1) - lgamma(fk+1) - lgamma(n-fk+1)
	logBetaNum := lgamma(fk+a) + lgamma(n-fk+b) - lgamma(n+a+b)
	logBetaDen := lgamma(a) + lgamma(b) - lgamma(a+b)
	return math.Exp(logChoose + logBetaNum - logBetaDen)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// multinomialLogPMF is the multinomial log-probability of observed
// counts x (summing to n) under per-outcome probabilities p. It mirrors
// scipy's behavior of treating a probability vector that does not sum to
// 1 (within tolerance) as invalid, returning NaN, which CutoffFit's
// caller then treats as -Inf.
func multinomialLogPMF(x []float64, n float64, p []float64) float64 {
	if math.Abs(floats.Sum(p)-1) > 1e-8 {
		return math.NaN()
	}
	ll := lgamma(n + 1)
	for i, xi := range x {
		ll -= lgamma(xi + 1)
		if xi > 0 {
			if p[i] <= 0 {
				return math.Inf(-1)
			}
			ll += xi * math.Log(p[i])
		}
	}
	return ll
}

// SurvivalCutoff is the legacy, simpler null model (§4.6 "a simpler
// legacy variant"): for each bucket k, it reports the probability, under
// a beta-binomial model for individual marker counts and a binomial
// model for how many taxa land on any one count, of seeing at least as
// many taxa with exactly k markers as were actually observed. A small
// probability is evidence that bucket k holds more taxa than chance
// alone would produce. It does not itself pick a cutoff; callers compare
// each probability against a significance threshold.
func SurvivalCutoff(counts map[int]int, betaSampleSize float64, logger *log.Logger) []KMarkersProbability {
	var totalMarkers float64
	for k, n := range counts {
		totalMarkers += float64(k) * float64(n)
	}
	var numTaxa float64
	for _, n := range counts {
		numTaxa += float64(n)
	}
	if numTaxa == 0 {
		return nil
	}

	p := 1.0 / numTaxa
	a := p * betaSampleSize
	b := (1 - p) * betaSampleSize

	ks := make([]int, 0, len(counts))
	for k := range counts {
		ks = append(ks, k)
	}
	sort.Ints(ks)

	results := make([]KMarkersProbability, 0, len(ks))
	logger.Printf("Distributing %v markers across %v taxa", totalMarkers, numTaxa)
	for _, k := range ks {
		taxonCount := counts[k]
		pmf := betaBinomPMF(k, totalMarkers, a, b)
		prob := survivalProbability(pmf, numTaxa, k, taxonCount)
		logger.Printf("k=%d actual=%d expected=%.2f pmf=%.2g p(at least actual)=%.2g",
			k, taxonCount, pmf*numTaxa, pmf, prob)
		results = append(results, KMarkersProbability{NumMarkers: k, Probability: prob})
	}
	return results
}

// KMarkersProbability pairs a marker count with the survival probability
// SurvivalCutoff computed for it.
type KMarkersProbability struct {
	NumMarkers  int
	Probability float64
}

// survivalProbability is P(C >= taxonCount) where C, the count of taxa
// landing on exactly numMarkers markers, is modelled as binomial(numTaxa,
// pmf).
func survivalProbability(pmf, numTaxa float64, numMarkers, taxonCount int) float64 {
	if numMarkers == 0 || taxonCount == 0 {
		return 1
	}
	if numTaxa == 0 {
		return 0
	}
	return binomSF(taxonCount-1, numTaxa, pmf)
}

// binomSF is the binomial survival function P(X > k) = sum_{i=k+1}^{n}.
func binomSF(k int, n, p float64) float64 {
	if float64(k) >= n {
		return 0
	}
	var sum float64
	for i := k + 1; float64(i) <= n; i++ {
		sum += binomPMF(i, n, p)
	}
	return sum
}

func binomPMF(k int, n, p float64) float64 {
	fk := float64(k)
	if fk < 0 || fk > n {
		return 0
	}
	if p <= 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	if p >= 1 {
		if float64(k) == n {
			return 1
		}
		return 0
	}
	logChoose := lgamma(n+1) - lgamma(fk+1) - lgamma(n-fk+1)
	return math.Exp(logChoose + fk*math.Log(p) + (n-fk)*math.Log(1-p))
}

// Histogram builds a counts-with-k-markers histogram from a slice of
// per-taxon marker counts and the total number of taxa known to the
// reference database, folding the taxa that matched nothing into the
// k=0 bucket (§6 "Noise-model CLI").
func Histogram(taxonNumMarkers []int, totalNumTaxa int) (map[int]int, error) {
	if totalNumTaxa < len(taxonNumMarkers) {
		return nil, fmt.Errorf("noise: total-num-taxa %d is lower than the number of observed taxa %d", totalNumTaxa, len(taxonNumMarkers))
	}
	h := map[int]int{0: totalNumTaxa - len(taxonNumMarkers)}
	for _, n := range taxonNumMarkers {
		h[n]++
	}
	return h, nil
}
