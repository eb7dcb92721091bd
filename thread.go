// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Thread lists the components that carry one ancestry type, one per
// K value, starting with the K where it first appears.
type Thread []ComponentID

// ThreadAncestries follows ancestry components through a series of
// runs with consecutive K values. series maps K to a Q matrix with K
// columns.
//
// The threads are returned longest first; threads of equal length
// keep the order they were created in.
func ThreadAncestries(series map[int]mat.Matrix, r float64) ([]Thread, error) {
	if err := checkExponent(r); err != nil {
		return nil, err
	}
	kvals, err := seriesKValues(series)
	if err != nil {
		return nil, err
	}

	ks := kvals[0]
	var threads []Thread
	threadOf := map[ComponentID]int{}
	for col := 1; col <= ks; col++ {
		id := ComponentID{K: ks, Col: col}
		threadOf[id] = len(threads)
		threads = append(threads, Thread{id})
	}

	for _, k := range kvals[:len(kvals)-1] {
		m, err := Match(series[k], series[k+1], r, SumPower)
		if err != nil {
			return nil, fmt.Errorf("matching K=%d to K=%d: %w", k+1, k, err)
		}
		for j := 0; j < m.KB; j++ {
			id := ComponentID{K: k + 1, Col: j + 1}
			prev := m.Lookup(id)
			if prev == NoMatch {
				threadOf[id] = len(threads)
				threads = append(threads, Thread{id})
				continue
			}
			t := threadOf[prev]
			threadOf[id] = t
			threads[t] = append(threads[t], id)
		}
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return len(threads[i]) > len(threads[j])
	})
	return threads, nil
}

// seriesKValues returns the sorted K values of series after checking
// they are consecutive and each matrix has K columns.
func seriesKValues(series map[int]mat.Matrix) ([]int, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("empty series: %w", ErrConfig)
	}
	kvals := make([]int, 0, len(series))
	for k, m := range series {
		if m == nil {
			return nil, fmt.Errorf("no matrix for K=%d: %w", k, ErrConfig)
		}
		if _, cols := m.Dims(); cols != k {
			return nil, fmt.Errorf("matrix for K=%d has %d columns: %w", k, cols, ErrConfig)
		}
		kvals = append(kvals, k)
	}
	sort.Ints(kvals)
	if kvals[0] < 1 {
		return nil, fmt.Errorf("K=%d is not positive: %w", kvals[0], ErrConfig)
	}
	for i := 1; i < len(kvals); i++ {
		if kvals[i] != kvals[i-1]+1 {
			return nil, fmt.Errorf("K values %v are not consecutive: %w", kvals, ErrConfig)
		}
	}
	return kvals, nil
}

// ThreadOrder returns, for the run with k components, the 0-based
// column carried by each thread that is present at k, in thread
// order. Reordering that run's Q columns with it gives every run the
// same left-to-right ancestry layout.
func ThreadOrder(threads []Thread, k int) ([]int, error) {
	var order []int
	seen := make([]bool, k)
	for _, t := range threads {
		for _, id := range t {
			if id.K != k {
				continue
			}
			if id.Col < 1 || id.Col > k || seen[id.Col-1] {
				return nil, fmt.Errorf("thread %v has invalid or repeated column for K=%d: %w", t, k, ErrConfig)
			}
			seen[id.Col-1] = true
			order = append(order, id.Col-1)
		}
	}
	if len(order) != k {
		return nil, fmt.Errorf("threads cover %d of %d columns for K=%d: %w", len(order), k, k, ErrConfig)
	}
	return order, nil
}

// WriteThreads writes one line per thread, each a tab-separated list
// of K:column tokens.
func WriteThreads(w io.Writer, threads []Thread) error {
	bufw := bufio.NewWriter(w)
	for _, t := range threads {
		for i, id := range t {
			if i > 0 {
				bufw.WriteByte('\t')
			}
			bufw.WriteString(id.String())
		}
		bufw.WriteByte('\n')
	}
	return bufw.Flush()
}

// ReadThreads parses the format written by WriteThreads.
func ReadThreads(r io.Reader) ([]Thread, error) {
	var threads []Thread
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		t := make(Thread, 0, len(fields))
		for _, f := range fields {
			id, err := ParseComponentID(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			t = append(t, id)
		}
		threads = append(threads, t)
	}
	return threads, scanner.Err()
}
