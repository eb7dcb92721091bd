// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape is returned when matrices describe different sets of
	// individuals, or a matrix has the wrong number of columns for
	// the operation.
	ErrShape = errors.New("adxmatch: shape mismatch")

	// ErrConfig is returned for unsupported inputs: a bad exponent,
	// set sizes that differ by something other than 0 or 1, or a
	// series of runs whose K values are not consecutive.
	ErrConfig = errors.New("adxmatch: invalid configuration")
)

// ComponentID identifies one ancestry component: column Col
// (1-based) of the run with K components.
type ComponentID struct {
	K   int
	Col int
}

// NoMatch is the zero ComponentID. Matching.Lookup returns it for the
// one component of a larger run that has no counterpart.
var NoMatch = ComponentID{}

func (id ComponentID) String() string {
	return fmt.Sprintf("%d:%d", id.K, id.Col)
}

func (id ComponentID) Less(other ComponentID) bool {
	if id.K != other.K {
		return id.K < other.K
	}
	return id.Col < other.Col
}

// ParseComponentID parses the "K:col" form produced by String.
func ParseComponentID(s string) (ComponentID, error) {
	ks, cs, ok := strings.Cut(s, ":")
	if !ok {
		return NoMatch, fmt.Errorf("cannot parse component %q: missing ':'", s)
	}
	k, err := strconv.Atoi(ks)
	if err != nil {
		return NoMatch, fmt.Errorf("cannot parse component %q: %w", s, err)
	}
	col, err := strconv.Atoi(cs)
	if err != nil {
		return NoMatch, fmt.Errorf("cannot parse component %q: %w", s, err)
	}
	if k < 1 || col < 1 || col > k {
		return NoMatch, fmt.Errorf("cannot parse component %q: column out of range", s)
	}
	return ComponentID{K: k, Col: col}, nil
}

// Normalization selects how per-individual differences are combined
// into one distance.
type Normalization int

const (
	// MeanPower is (1/N * sum |a_i-b_i|^r)^(1/r). Used for
	// reporting alignment scores.
	MeanPower Normalization = iota
	// SumPower is sum |a_i-b_i|^r. Used when threading a series.
	SumPower
)

func checkExponent(r float64) error {
	if !(r > 0) || math.IsInf(r, 1) {
		return fmt.Errorf("exponent r=%v must be a positive number: %w", r, ErrConfig)
	}
	return nil
}

// DistanceMatrix returns a KA x KB matrix whose (i,j) entry is the
// distance between column i of setA and column j of setB. Rows of
// both inputs are individuals.
func DistanceMatrix(setA, setB mat.Matrix, r float64, norm Normalization) (*mat.Dense, error) {
	if err := checkExponent(r); err != nil {
		return nil, err
	}
	n, ka := setA.Dims()
	nb, kb := setB.Dims()
	if n != nb {
		return nil, fmt.Errorf("component vectors have different lengths (%d, %d): %w", n, nb, ErrShape)
	}
	if ka == 0 || kb == 0 {
		return nil, fmt.Errorf("empty component set (%d, %d): %w", ka, kb, ErrShape)
	}
	colA := make([]float64, n)
	colB := make([]float64, n)
	dist := mat.NewDense(ka, kb, nil)
	for i := 0; i < ka; i++ {
		mat.Col(colA, i, setA)
		for j := 0; j < kb; j++ {
			mat.Col(colB, j, setB)
			dist.Set(i, j, powerDistance(colA, colB, r, norm))
		}
	}
	return dist, nil
}

func powerDistance(a, b []float64, r float64, norm Normalization) float64 {
	var sum float64
	for i, x := range a {
		sum += math.Pow(math.Abs(x-b[i]), r)
	}
	if norm == SumPower {
		return sum
	}
	return math.Pow(sum/float64(len(a)), 1/r)
}

// Matching pairs every column of a later (or equal-sized) set B with
// a distinct column of set A. When B has one more column than A,
// exactly one B column is left unmatched.
type Matching struct {
	KA, KB int
	// Partner[j] is the 0-based A column matched to B column j, or
	// -1.
	Partner []int
	// Distance[j] is the distance of the pair ending at B column j,
	// or NaN if B column j is unmatched.
	Distance []float64
}

// Lookup returns the set A component matched to the given set B
// component, or NoMatch.
func (m *Matching) Lookup(id ComponentID) ComponentID {
	if id.K != m.KB || id.Col < 1 || id.Col > m.KB {
		return NoMatch
	}
	p := m.Partner[id.Col-1]
	if p < 0 {
		return NoMatch
	}
	return ComponentID{K: m.KA, Col: p + 1}
}

// Unmatched returns the 0-based B column with no partner, or -1 if
// the matching is a bijection.
func (m *Matching) Unmatched() int {
	for j, p := range m.Partner {
		if p < 0 {
			return j
		}
	}
	return -1
}

// Match computes the distance matrix between the columns of setA and
// setB and greedily pairs them, closest pairs first.
func Match(setA, setB mat.Matrix, r float64, norm Normalization) (*Matching, error) {
	_, ka := setA.Dims()
	_, kb := setB.Dims()
	if kb-ka != 0 && kb-ka != 1 {
		return nil, fmt.Errorf("cannot match %d components to %d: %w", kb, ka, ErrConfig)
	}
	dist, err := DistanceMatrix(setA, setB, r, norm)
	if err != nil {
		return nil, err
	}
	return greedyMatch(dist), nil
}

type candidatePair struct {
	a, b int
	dist float64
}

// greedyMatch walks all (a,b) pairs in order of increasing distance
// and accepts a pair when neither side is claimed yet. Exactly equal
// distances are taken in (a,b) lexicographic order.
func greedyMatch(dist *mat.Dense) *Matching {
	ka, kb := dist.Dims()
	pairs := make([]candidatePair, 0, ka*kb)
	for a := 0; a < ka; a++ {
		for b := 0; b < kb; b++ {
			pairs = append(pairs, candidatePair{a: a, b: b, dist: dist.At(a, b)})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].dist < pairs[j].dist
	})

	m := &Matching{
		KA:       ka,
		KB:       kb,
		Partner:  make([]int, kb),
		Distance: make([]float64, kb),
	}
	for j := range m.Partner {
		m.Partner[j] = -1
		m.Distance[j] = math.NaN()
	}
	claimedA := make([]bool, ka)
	claimedB := make([]bool, kb)
	claimed := 0
	for _, p := range pairs {
		if claimed == ka {
			break
		}
		if claimedA[p.a] || claimedB[p.b] {
			continue
		}
		claimedA[p.a] = true
		claimedB[p.b] = true
		m.Partner[p.b] = p.a
		m.Distance[p.b] = p.dist
		claimed++
	}
	return m
}
