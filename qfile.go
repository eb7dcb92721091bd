// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// readMatrixFile reads a Q or P matrix. Files ending in ".npy" are
// read as 2-d numpy arrays, anything else as whitespace-delimited
// text. A ".gz" suffix is decompressed transparently.
func readMatrixFile(fnm string) (*mat.Dense, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m *mat.Dense
	if strings.HasSuffix(strings.TrimSuffix(fnm, ".gz"), ".npy") {
		m, err = readNumpyMatrix(f)
	} else {
		m, err = readTextMatrix(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return m, nil
}

// openMatrix reads base+ext, falling back to base+ext+".gz" when the
// uncompressed file does not exist.
func openMatrix(base, ext string) (*mat.Dense, error) {
	fnm := base + ext
	m, err := readMatrixFile(fnm)
	if errors.Is(err, os.ErrNotExist) {
		if _, gzerr := os.Stat(fnm + ".gz"); gzerr == nil {
			log.Infof("%s not found, reading %s.gz", fnm, fnm)
			return readMatrixFile(fnm + ".gz")
		}
	}
	return m, err
}

func readTextMatrix(r io.Reader) (*mat.Dense, error) {
	var data []float64
	rows, cols := 0, 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<28)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if rows == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("line %d has %d columns, expected %d: %w", line, len(fields), cols, ErrShape)
		}
		for _, field := range fields {
			x, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			data = append(data, x)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("no data: %w", ErrShape)
	}
	return mat.NewDense(rows, cols, data), nil
}

func readNumpyMatrix(r io.Reader) (*mat.Dense, error) {
	npy, err := gonpy.NewReader(r)
	if err != nil {
		return nil, err
	}
	if len(npy.Shape) != 2 || npy.Shape[0] == 0 || npy.Shape[1] == 0 {
		return nil, fmt.Errorf("numpy array has shape %v, need 2 non-empty dimensions: %w", npy.Shape, ErrShape)
	}
	data, err := npy.GetFloat64()
	if err != nil {
		return nil, err
	}
	rows, cols := npy.Shape[0], npy.Shape[1]
	if npy.ColumnMajor {
		return mat.DenseCopyOf(mat.NewDense(cols, rows, data).T()), nil
	}
	return mat.NewDense(rows, cols, data), nil
}

// writeTextMatrix writes m with "%f" values separated by single
// spaces, one row per line.
func writeTextMatrix(w io.Writer, m mat.Matrix) error {
	bufw := bufio.NewWriter(w)
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j > 0 {
				bufw.WriteByte(' ')
			}
			bufw.WriteString(strconv.FormatFloat(m.At(i, j), 'f', 6, 64))
		}
		bufw.WriteByte('\n')
	}
	return bufw.Flush()
}

func writeNumpyMatrix(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out = append(out, m.At(i, j))
		}
	}
	bufw := bufio.NewWriter(w)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = []int{rows, cols}
	err = npw.WriteFloat64(out)
	if err != nil {
		return err
	}
	return bufw.Flush()
}

// writeMatrixFile writes m to fnm, as numpy if fnm ends in ".npy",
// otherwise as text.
func writeMatrixFile(fnm string, m mat.Matrix) error {
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer f.Close()
	if strings.HasSuffix(fnm, ".npy") {
		err = writeNumpyMatrix(f, m)
	} else {
		err = writeTextMatrix(f, m)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
