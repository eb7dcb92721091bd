// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Alignment maps the columns of an input run onto the columns of a
// reference run with the same K.
type Alignment struct {
	// Permutation[k] is the 0-based input column that supplies
	// reference column k.
	Permutation []int
	// Scores[k] is the MeanPower distance between reference column
	// k and its input column.
	Scores []float64
	// Score is the mean of Scores. 0 means perfect agreement.
	Score float64
}

// AlignToReference matches the columns of in to the columns of ref.
// Both must have the same individuals (rows) and the same K.
func AlignToReference(ref, in mat.Matrix, r float64) (*Alignment, error) {
	nref, kref := ref.Dims()
	nin, kin := in.Dims()
	if nref != nin || kref != kin {
		return nil, fmt.Errorf("reference is %dx%d but input is %dx%d: %w", nref, kref, nin, kin, ErrShape)
	}
	m, err := Match(in, ref, r, MeanPower)
	if err != nil {
		return nil, err
	}
	return &Alignment{
		Permutation: m.Partner,
		Scores:      m.Distance,
		Score:       stat.Mean(m.Distance, nil),
	}, nil
}

// OneBased returns the permutation with 1-based column numbers.
func (a *Alignment) OneBased() []int {
	out := make([]int, len(a.Permutation))
	for i, p := range a.Permutation {
		out[i] = p + 1
	}
	return out
}

// Apply returns a copy of m whose column i is column Permutation[i]
// of m. It is used for both the Q and P matrices of the input run.
func (a *Alignment) Apply(m mat.Matrix) (*mat.Dense, error) {
	return permuteColumns(m, a.Permutation)
}

func permuteColumns(m mat.Matrix, perm []int) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if cols != len(perm) {
		return nil, fmt.Errorf("matrix has %d columns, permutation has %d: %w", cols, len(perm), ErrShape)
	}
	out := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows)
	for i, src := range perm {
		if src < 0 || src >= cols {
			return nil, fmt.Errorf("permutation entry %d out of range: %w", src, ErrShape)
		}
		mat.Col(col, src, m)
		out.SetCol(i, col)
	}
	return out, nil
}
