// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"path"
	"strconv"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type alignConfig struct {
	RefBase  string
	InBase   string
	OutBase  string
	Exponent float64
	Mode     string // "score" or "full"
	Numpy    bool
	Verbose  bool
}

func (cfg alignConfig) check() error {
	if cfg.RefBase == "" || cfg.InBase == "" {
		return errors.New("must specify both -ref and -in")
	}
	if cfg.Mode != "score" && cfg.Mode != "full" {
		return fmt.Errorf("unknown mode %q (must be score or full)", cfg.Mode)
	}
	if cfg.Mode == "full" && cfg.OutBase == "" {
		return errors.New("must specify -out in full mode")
	}
	return checkExponent(cfg.Exponent)
}

type aligncmd struct{}

func (cmd *aligncmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	var cfg alignConfig
	flags.StringVar(&cfg.RefBase, "ref", "", "base `path` of reference .Q file")
	flags.StringVar(&cfg.InBase, "in", "", "base `path` of input .Q and .P files")
	flags.StringVar(&cfg.OutBase, "out", "", "base `path` for aligned .Q and .P files (full mode)")
	flags.Float64Var(&cfg.Exponent, "r", 0, "distance exponent `r` in (mean_i |Q[i,k1]-Q[i,k2]|^r)^(1/r)")
	flags.StringVar(&cfg.Mode, "m", "score", "`mode`: score (print mean score) or full (also write aligned files)")
	flags.BoolVar(&cfg.Numpy, "numpy", false, "also write aligned matrices as .npy files (full mode)")
	flags.BoolVar(&cfg.Verbose, "v", false, "report permutation and per-component scores in score mode too")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	}
	if err = cfg.check(); err != nil {
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		runner := arvadosContainerRunner{
			Name:        "adxmatch align",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         8 << 30,
			VCPUs:       1,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(&cfg.RefBase, &cfg.InBase)
		if err != nil {
			return 1
		}
		outname := "aligned"
		if cfg.OutBase != "" {
			outname = path.Base(cfg.OutBase)
		}
		runner.Args = []string{"align", "-local=true",
			"-ref", cfg.RefBase,
			"-in", cfg.InBase,
			"-out", "/mnt/output/" + outname,
			"-r", fmt.Sprintf("%v", cfg.Exponent),
			"-m", cfg.Mode,
			fmt.Sprintf("-numpy=%v", cfg.Numpy),
			fmt.Sprintf("-v=%v", cfg.Verbose),
		}
		var output string
		output, err = runner.Run()
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output+"/"+outname)
		return 0
	}

	err = runAlign(cfg, stdout)
	if err != nil {
		return 1
	}
	return 0
}

// runAlign loads the reference and input Q matrices, aligns them,
// reports the score on stdout and, in full mode, writes the input's
// Q and P matrices with their columns in reference order.
func runAlign(cfg alignConfig, stdout io.Writer) error {
	qref, err := openMatrix(cfg.RefBase, ".Q")
	if err != nil {
		return err
	}
	qin, err := openMatrix(cfg.InBase, ".Q")
	if err != nil {
		return err
	}
	n, k := qref.Dims()
	log.Infof("aligning %s.Q to %s.Q: %d individuals, K=%d", cfg.InBase, cfg.RefBase, n, k)
	alignment, err := AlignToReference(qref, qin, cfg.Exponent)
	if err != nil {
		return err
	}
	if cfg.Mode == "score" && !cfg.Verbose {
		_, err = fmt.Fprintln(stdout, strconv.FormatFloat(alignment.Score, 'g', -1, 64))
		return err
	}
	fmt.Fprintf(stdout, "map:\t%s\n", joinInts(alignment.OneBased()))
	fmt.Fprintf(stdout, "scores:\t%s\n", joinFloats(alignment.Scores))
	_, err = fmt.Fprintf(stdout, "mean score:\t%f\n", alignment.Score)
	if err != nil || cfg.Mode == "score" {
		return err
	}

	qout, err := alignment.Apply(qin)
	if err != nil {
		return err
	}
	log.Debugf("first row: in %v ref %v aligned %v", qin.RawRowView(0), qref.RawRowView(0), qout.RawRowView(0))
	err = writeAligned(cfg, ".Q", qout)
	if err != nil {
		return err
	}

	pin, err := openMatrix(cfg.InBase, ".P")
	if err != nil {
		return err
	}
	pout, err := alignment.Apply(pin)
	if err != nil {
		return fmt.Errorf("%s.P: %w", cfg.InBase, err)
	}
	return writeAligned(cfg, ".P", pout)
}

func writeAligned(cfg alignConfig, ext string, m mat.Matrix) error {
	fnm := cfg.OutBase + ext
	log.Infof("writing %s", fnm)
	err := writeMatrixFile(fnm, m)
	if err != nil || !cfg.Numpy {
		return err
	}
	log.Infof("writing %s.npy", fnm)
	return writeMatrixFile(fnm+".npy", m)
}

func joinInts(x []int) string {
	s := make([]string, len(x))
	for i, v := range x {
		s[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(s, " ")
}

func joinFloats(x []float64) string {
	s := make([]string, len(x))
	for i, v := range x {
		s[i] = fmt.Sprintf("%f", v)
	}
	return strings.Join(s, " ")
}
