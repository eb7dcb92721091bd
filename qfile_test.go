// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"bytes"
	"errors"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type qfileSuite struct{}

var _ = check.Suite(&qfileSuite{})

var qfileTestMatrix = mat.NewDense(3, 2, []float64{
	0.25, 0.75,
	1, 0,
	0.123456, 0.876544,
})

func (s *qfileSuite) TestText(c *check.C) {
	var buf bytes.Buffer
	c.Assert(writeTextMatrix(&buf, qfileTestMatrix), check.IsNil)
	c.Check(buf.String(), check.Equals, "0.250000 0.750000\n1.000000 0.000000\n0.123456 0.876544\n")
	m, err := readTextMatrix(&buf)
	c.Assert(err, check.IsNil)
	c.Check(mat.Equal(m, qfileTestMatrix), check.Equals, true)

	m, err = readTextMatrix(strings.NewReader("0.5\t0.5\n\n  0.1   0.9  \n"))
	c.Assert(err, check.IsNil)
	c.Check(m.RawMatrix().Data, check.DeepEquals, []float64{0.5, 0.5, 0.1, 0.9})
}

func (s *qfileSuite) TestTextErrors(c *check.C) {
	_, err := readTextMatrix(strings.NewReader("0.5 0.5\n0.1 0.8 0.1\n"))
	c.Check(errors.Is(err, ErrShape), check.Equals, true)
	c.Check(err, check.ErrorMatches, `line 2 has 3 columns, expected 2: .*`)
	_, err = readTextMatrix(strings.NewReader(""))
	c.Check(errors.Is(err, ErrShape), check.Equals, true)
	_, err = readTextMatrix(strings.NewReader("0.5 abc\n"))
	c.Check(err, check.ErrorMatches, `line 1: .*invalid syntax`)
}

func (s *qfileSuite) TestNumpy(c *check.C) {
	tmpdir := c.MkDir()
	c.Assert(writeMatrixFile(tmpdir+"/test.Q.npy", qfileTestMatrix), check.IsNil)
	m, err := readMatrixFile(tmpdir + "/test.Q.npy")
	c.Assert(err, check.IsNil)
	c.Check(mat.Equal(m, qfileTestMatrix), check.Equals, true)
}

func (s *qfileSuite) TestGzipFallback(c *check.C) {
	tmpdir := c.MkDir()
	f, err := os.Create(tmpdir + "/run.Q.gz")
	c.Assert(err, check.IsNil)
	gzw := pgzip.NewWriter(f)
	c.Assert(writeTextMatrix(gzw, qfileTestMatrix), check.IsNil)
	c.Assert(gzw.Close(), check.IsNil)
	c.Assert(f.Close(), check.IsNil)

	m, err := openMatrix(tmpdir+"/run", ".Q")
	c.Assert(err, check.IsNil)
	c.Check(m.RawMatrix().Data, check.DeepEquals, []float64{0.25, 0.75, 1, 0, 0.123456, 0.876544})

	_, err = openMatrix(tmpdir+"/run", ".P")
	c.Check(errors.Is(err, os.ErrNotExist), check.Equals, true)
}
