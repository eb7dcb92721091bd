// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/check.v1"
)

type simulateSuite struct{}

var _ = check.Suite(&simulateSuite{})

func (s *simulateSuite) TestNested(c *check.C) {
	runs, err := simulateSeries(simulateConfig{Individuals: 20, Markers: 8, KMin: 3, KMax: 5, Alpha: 1, Seed: 99})
	c.Assert(err, check.IsNil)
	c.Assert(runs, check.HasLen, 3)
	for i, run := range runs {
		c.Check(run.K, check.Equals, 3+i)
		n, k := run.Q.Dims()
		c.Check(n, check.Equals, 20)
		c.Check(k, check.Equals, run.K)
		m, k := run.P.Dims()
		c.Check(m, check.Equals, 8)
		c.Check(k, check.Equals, run.K)
		c.Check(run.Perm, check.HasLen, run.K)
		for row := 0; row < n; row++ {
			sum := floats.Sum(run.Q.RawRowView(row))
			c.Check(math.Abs(sum-1) < 1e-9, check.Equals, true, check.Commentf("K=%d row %d sum %v", run.K, row, sum))
		}
	}

	again, err := simulateSeries(simulateConfig{Individuals: 20, Markers: 8, KMin: 3, KMax: 5, Alpha: 1, Seed: 99})
	c.Assert(err, check.IsNil)
	c.Check(again[2].Q.RawMatrix().Data, check.DeepEquals, runs[2].Q.RawMatrix().Data)
}

func (s *simulateSuite) TestInvalid(c *check.C) {
	for _, cfg := range []simulateConfig{
		{Individuals: 10, Markers: 1, KMin: 3, KMax: 2, Alpha: 1},
		{Individuals: 10, Markers: 1, KMin: 0, KMax: 2, Alpha: 1},
		{Individuals: 0, Markers: 1, KMin: 1, KMax: 2, Alpha: 1},
		{Individuals: 10, Markers: 1, KMin: 1, KMax: 2, Alpha: 0},
	} {
		_, err := simulateSeries(cfg)
		c.Check(errors.Is(err, ErrConfig), check.Equals, true, check.Commentf("%+v", cfg))
	}
}
