// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"bytes"
	"errors"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type threadSuite struct{}

var _ = check.Suite(&threadSuite{})

var (
	threadQ2 = mat.NewDense(3, 2, []float64{
		0.9, 0.1,
		0.1, 0.9,
		0.5, 0.5,
	})
	threadQ3 = mat.NewDense(3, 3, []float64{
		0.1, 0.0, 0.9,
		0.8, 0.0, 0.2,
		0.1, 0.4, 0.5,
	})
)

func (s *threadSuite) TestTwoRuns(c *check.C) {
	threads, err := ThreadAncestries(map[int]mat.Matrix{2: threadQ2, 3: threadQ3}, 2)
	c.Assert(err, check.IsNil)
	c.Check(threads, check.DeepEquals, []Thread{
		{{2, 1}, {3, 3}},
		{{2, 2}, {3, 1}},
		{{3, 2}},
	})

	var buf bytes.Buffer
	c.Check(WriteThreads(&buf, threads), check.IsNil)
	c.Check(buf.String(), check.Equals, "2:1\t3:3\n2:2\t3:1\n3:2\n")
	parsed, err := ReadThreads(&buf)
	c.Check(err, check.IsNil)
	c.Check(parsed, check.DeepEquals, threads)

	order, err := ThreadOrder(threads, 3)
	c.Check(err, check.IsNil)
	c.Check(order, check.DeepEquals, []int{2, 0, 1})
	order, err = ThreadOrder(threads, 2)
	c.Check(err, check.IsNil)
	c.Check(order, check.DeepEquals, []int{0, 1})
	_, err = ThreadOrder(threads, 4)
	c.Check(errors.Is(err, ErrConfig), check.Equals, true)
}

func (s *threadSuite) TestSingleRun(c *check.C) {
	threads, err := ThreadAncestries(map[int]mat.Matrix{3: threadQ3}, 3)
	c.Assert(err, check.IsNil)
	c.Check(threads, check.DeepEquals, []Thread{{{3, 1}}, {{3, 2}}, {{3, 3}}})
}

func (s *threadSuite) TestConsecutiveK(c *check.C) {
	q := func(n, k int) mat.Matrix {
		data := make([]float64, n*k)
		for i := range data {
			data[i] = float64(i%7+1) / float64(i%k+3)
		}
		return mat.NewDense(n, k, data)
	}
	_, err := ThreadAncestries(map[int]mat.Matrix{2: q(5, 2), 3: q(5, 3), 5: q(5, 5)}, 3)
	c.Check(errors.Is(err, ErrConfig), check.Equals, true, check.Commentf("%v", err))

	threads, err := ThreadAncestries(map[int]mat.Matrix{4: q(5, 4), 5: q(5, 5), 6: q(5, 6)}, 3)
	c.Check(err, check.IsNil)
	c.Check(threads, check.HasLen, 6)

	_, err = ThreadAncestries(map[int]mat.Matrix{}, 3)
	c.Check(errors.Is(err, ErrConfig), check.Equals, true)

	_, err = ThreadAncestries(map[int]mat.Matrix{4: q(5, 3)}, 3)
	c.Check(errors.Is(err, ErrConfig), check.Equals, true)

	_, err = ThreadAncestries(map[int]mat.Matrix{4: q(5, 4), 5: q(6, 5)}, 3)
	c.Check(errors.Is(err, ErrShape), check.Equals, true, check.Commentf("%v", err))

	_, err = ThreadAncestries(map[int]mat.Matrix{4: q(5, 4)}, 0)
	c.Check(errors.Is(err, ErrConfig), check.Equals, true)
}

func (s *threadSuite) TestSimulatedSeries(c *check.C) {
	runs, err := simulateSeries(simulateConfig{Individuals: 200, Markers: 10, KMin: 2, KMax: 6, Alpha: 0.3, Seed: 7})
	c.Assert(err, check.IsNil)
	for kmax := 2; kmax <= 6; kmax++ {
		series := map[int]mat.Matrix{}
		for _, run := range runs[:kmax-1] {
			series[run.K] = run.Q
		}
		threads, err := ThreadAncestries(series, 3)
		c.Assert(err, check.IsNil)
		c.Check(threads, check.HasLen, kmax)

		seen := map[ComponentID]bool{}
		for i, t := range threads {
			if i > 0 {
				c.Check(len(t) <= len(threads[i-1]), check.Equals, true)
			}
			// each thread runs through consecutive K values up
			// to kmax
			c.Check(t[len(t)-1].K, check.Equals, kmax)
			for j, id := range t {
				c.Check(seen[id], check.Equals, false)
				seen[id] = true
				if j > 0 {
					c.Check(id.K, check.Equals, t[j-1].K+1)
				}
			}
		}
		c.Check(seen, check.HasLen, (2+kmax)*(kmax-1)/2)
		for k := 2; k <= kmax; k++ {
			order, err := ThreadOrder(threads, k)
			c.Check(err, check.IsNil)
			c.Check(order, check.HasLen, k)
		}
	}
}

func (s *threadSuite) TestReadThreadsError(c *check.C) {
	_, err := ReadThreads(strings.NewReader("2:1\t3:3\n2:x\n"))
	c.Check(err, check.ErrorMatches, `line 2: .*`)
}
