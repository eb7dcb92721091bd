// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type alignSuite struct{}

var _ = check.Suite(&alignSuite{})

func (s *alignSuite) TestSwappedColumns(c *check.C) {
	qref := mat.NewDense(2, 2, []float64{
		0.9, 0.1,
		0.2, 0.8,
	})
	qin := mat.NewDense(2, 2, []float64{
		0.15, 0.85,
		0.85, 0.15,
	})
	a, err := AlignToReference(qref, qin, 2)
	c.Assert(err, check.IsNil)
	c.Check(a.Permutation, check.DeepEquals, []int{1, 0})
	c.Check(a.OneBased(), check.DeepEquals, []int{2, 1})
	c.Check(a.Scores, check.HasLen, 2)
	closeTo(c, a.Scores[0], 0.05)
	closeTo(c, a.Scores[1], 0.05)
	closeTo(c, a.Score, 0.05)

	out, err := a.Apply(qin)
	c.Assert(err, check.IsNil)
	c.Check(out.RawMatrix().Data, check.DeepEquals, []float64{0.85, 0.15, 0.15, 0.85})
	// input is untouched
	c.Check(qin.At(0, 0), check.Equals, 0.15)
}

func (s *alignSuite) TestStableOnceAligned(c *check.C) {
	qref := mat.NewDense(4, 3, []float64{
		0.7, 0.2, 0.1,
		0.1, 0.8, 0.1,
		0.2, 0.2, 0.6,
		0.3, 0.3, 0.4,
	})
	qin := mat.NewDense(4, 3, []float64{
		0.15, 0.05, 0.8,
		0.1, 0.1, 0.8,
		0.55, 0.25, 0.2,
		0.35, 0.3, 0.35,
	})
	a, err := AlignToReference(qref, qin, 3)
	c.Assert(err, check.IsNil)
	aligned, err := a.Apply(qin)
	c.Assert(err, check.IsNil)
	again, err := AlignToReference(qref, aligned, 3)
	c.Assert(err, check.IsNil)
	c.Check(again.Permutation, check.DeepEquals, []int{0, 1, 2})
	closeTo(c, again.Score, a.Score)
}

func (s *alignSuite) TestApplyToP(c *check.C) {
	a := &Alignment{Permutation: []int{2, 0, 1}}
	p := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	out, err := a.Apply(p)
	c.Assert(err, check.IsNil)
	c.Check(out.RawMatrix().Data, check.DeepEquals, []float64{3, 1, 2, 6, 4, 5})

	_, err = a.Apply(mat.NewDense(2, 2, nil))
	c.Check(errors.Is(err, ErrShape), check.Equals, true)
}

func (s *alignSuite) TestRecoverShuffle(c *check.C) {
	runs, err := simulateSeries(simulateConfig{Individuals: 300, Markers: 10, KMin: 6, KMax: 6, Alpha: 0.5, Seed: 42})
	c.Assert(err, check.IsNil)
	q := runs[0].Q
	shuffle := []int{3, 5, 0, 1, 4, 2}
	shuffled, err := permuteColumns(q, shuffle)
	c.Assert(err, check.IsNil)

	a, err := AlignToReference(q, shuffled, 2)
	c.Assert(err, check.IsNil)
	for k, src := range a.Permutation {
		c.Check(shuffle[src], check.Equals, k)
	}
	c.Check(a.Score, check.Equals, 0.0)
	restored, err := a.Apply(shuffled)
	c.Assert(err, check.IsNil)
	c.Check(mat.Equal(restored, q), check.Equals, true)
}

func (s *alignSuite) TestShapeMismatch(c *check.C) {
	qref := mat.NewDense(2, 2, []float64{0.9, 0.1, 0.2, 0.8})
	for _, qin := range []*mat.Dense{
		mat.NewDense(3, 2, []float64{0.9, 0.1, 0.2, 0.8, 0.5, 0.5}),
		mat.NewDense(2, 3, []float64{0.8, 0.1, 0.1, 0.2, 0.7, 0.1}),
	} {
		_, err := AlignToReference(qref, qin, 2)
		c.Check(errors.Is(err, ErrShape), check.Equals, true, check.Commentf("%v", err))
	}
}
