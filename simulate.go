// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

type simulateConfig struct {
	Individuals int
	Markers     int
	KMin        int
	KMax        int
	Alpha       float64
	Seed        uint64
	OutputDir   string
}

// simulatedRun is one synthetic inference result. Perm[c] is the
// column of the underlying (unshuffled) run that ended up in column c
// of Q and P.
type simulatedRun struct {
	K    int
	Q    *mat.Dense
	P    *mat.Dense
	Perm []int
}

// simulateSeries generates nested runs for K = KMin..KMax. The KMax
// run has Dirichlet(alpha) ancestry proportions; each smaller run
// merges the last component of the next larger run into a randomly
// chosen other component. Every run's columns are then shuffled, the
// way independent inference runs label their components arbitrarily.
func simulateSeries(cfg simulateConfig) ([]simulatedRun, error) {
	if cfg.KMin < 1 || cfg.KMax < cfg.KMin {
		return nil, fmt.Errorf("invalid K range %d..%d: %w", cfg.KMin, cfg.KMax, ErrConfig)
	}
	if cfg.Individuals < 1 || cfg.Markers < 1 || !(cfg.Alpha > 0) {
		return nil, fmt.Errorf("individuals, markers and alpha must be positive: %w", ErrConfig)
	}
	rnd := rand.New(rand.NewSource(cfg.Seed))
	alpha := make([]float64, cfg.KMax)
	for i := range alpha {
		alpha[i] = cfg.Alpha
	}
	dirichlet := distmv.NewDirichlet(alpha, rand.NewSource(rnd.Uint64()))
	q := mat.NewDense(cfg.Individuals, cfg.KMax, nil)
	for i := 0; i < cfg.Individuals; i++ {
		q.SetRow(i, dirichlet.Rand(nil))
	}
	freq := distuv.Uniform{Min: 0.01, Max: 0.99, Src: rand.NewSource(rnd.Uint64())}
	p := mat.NewDense(cfg.Markers, cfg.KMax, nil)
	for i := 0; i < cfg.Markers; i++ {
		for j := 0; j < cfg.KMax; j++ {
			p.Set(i, j, freq.Rand())
		}
	}

	runs := make([]simulatedRun, cfg.KMax-cfg.KMin+1)
	for k := cfg.KMax; k >= cfg.KMin; k-- {
		perm := rnd.Perm(k)
		qk, err := permuteColumns(q, perm)
		if err != nil {
			return nil, err
		}
		pk, err := permuteColumns(p, perm)
		if err != nil {
			return nil, err
		}
		runs[k-cfg.KMin] = simulatedRun{K: k, Q: qk, P: pk, Perm: perm}
		if k > cfg.KMin {
			q, p = mergeLastComponent(q, p, rnd.Intn(k-1))
		}
	}
	return runs, nil
}

// mergeLastComponent folds the last column of q into column into,
// and replaces the corresponding allele frequencies with their mean.
func mergeLastComponent(q, p *mat.Dense, into int) (*mat.Dense, *mat.Dense) {
	n, k := q.Dims()
	m, _ := p.Dims()
	qm := mat.DenseCopyOf(q.Slice(0, n, 0, k-1))
	for i := 0; i < n; i++ {
		qm.Set(i, into, q.At(i, into)+q.At(i, k-1))
	}
	pm := mat.DenseCopyOf(p.Slice(0, m, 0, k-1))
	for i := 0; i < m; i++ {
		pm.Set(i, into, (p.At(i, into)+p.At(i, k-1))/2)
	}
	return qm, pm
}

type simulatecmd struct{}

func (cmd *simulatecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var cfg simulateConfig
	flags.IntVar(&cfg.Individuals, "n", 100, "number of individuals")
	flags.IntVar(&cfg.Markers, "markers", 1000, "number of markers in each .P file")
	flags.IntVar(&cfg.KMin, "kmin", 2, "smallest `K`")
	flags.IntVar(&cfg.KMax, "kmax", 5, "largest `K`")
	flags.Float64Var(&cfg.Alpha, "alpha", 0.3, "Dirichlet concentration for ancestry proportions")
	flags.Uint64Var(&cfg.Seed, "seed", 1, "random seed")
	flags.StringVar(&cfg.OutputDir, "output-dir", "", "output `directory`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if cfg.OutputDir == "" {
		err = errors.New("must specify -output-dir")
		return 2
	}

	runs, err := simulateSeries(cfg)
	if err != nil {
		return 1
	}
	err = os.MkdirAll(cfg.OutputDir, 0777)
	if err != nil {
		return 1
	}
	err = writeSimulatedRuns(cfg.OutputDir, runs)
	if err != nil {
		return 1
	}
	return 0
}

// writeSimulatedRuns writes sim.K.Q and sim.K.P for each run, plus
// qfiles.txt listing the .Q files.
func writeSimulatedRuns(dir string, runs []simulatedRun) error {
	list, err := os.Create(filepath.Join(dir, "qfiles.txt"))
	if err != nil {
		return err
	}
	defer list.Close()
	for _, run := range runs {
		base := filepath.Join(dir, fmt.Sprintf("sim.%d", run.K))
		log.Infof("writing %s.Q, %s.P (column order %v)", base, base, run.Perm)
		err = writeMatrixFile(base+".Q", run.Q)
		if err != nil {
			return err
		}
		err = writeMatrixFile(base+".P", run.P)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(list, base+".Q")
		if err != nil {
			return err
		}
	}
	return list.Close()
}
