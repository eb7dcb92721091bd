// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package adxmatch

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type threadConfig struct {
	Inputs     []string
	Exponent   float64
	Output     string
	AlignedDir string
	Threads    int
}

type threadcmd struct{}

func (cmd *threadcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	listFilename := flags.String("i", "", "`file` listing input .Q files, one per line (in addition to any .Q files given as arguments)")
	var cfg threadConfig
	flags.Float64Var(&cfg.Exponent, "r", 3, "distance exponent `r` in sum_i |Q[i,k1]-Q[i,k2]|^r")
	flags.StringVar(&cfg.Output, "o", "-", "output `file` listing the columns in each ancestry thread")
	flags.StringVar(&cfg.AlignedDir, "aligned-dir", "", "also write each .Q file with columns in thread order to `directory`")
	flags.IntVar(&cfg.Threads, "threads", runtime.NumCPU(), "number of files to load concurrently")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *listFilename != "" {
		cfg.Inputs, err = readFileList(*listFilename)
		if err != nil {
			return 1
		}
	}
	cfg.Inputs = append(cfg.Inputs, flags.Args()...)
	if len(cfg.Inputs) == 0 {
		err = errors.New("no input files (use -i or list .Q files as arguments)")
		return 2
	}
	if err = checkExponent(cfg.Exponent); err != nil {
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if cfg.Output != "-" || cfg.AlignedDir != "" {
			err = errors.New("cannot specify output file or directory in container mode: not implemented")
			return 1
		}
		runner := arvadosContainerRunner{
			Name:        "adxmatch thread",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         8 << 30,
			VCPUs:       2,
			Priority:    *priority,
		}
		paths := make([]*string, len(cfg.Inputs))
		for i := range cfg.Inputs {
			paths[i] = &cfg.Inputs[i]
		}
		err = runner.TranslatePaths(paths...)
		if err != nil {
			return 1
		}
		runner.Args = append([]string{"thread", "-local=true",
			"-r", fmt.Sprintf("%v", cfg.Exponent),
			"-o", "/mnt/output/threads.txt",
			"-aligned-dir", "/mnt/output/aligned",
		}, cfg.Inputs...)
		var output string
		output, err = runner.Run()
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output+"/threads.txt")
		return 0
	}

	err = runThread(cfg, stdout)
	if err != nil {
		return 1
	}
	return 0
}

// readFileList returns the non-empty lines of fnm.
func readFileList(fnm string) ([]string, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			files = append(files, line)
		}
	}
	return files, scanner.Err()
}

// seriesRun is one loaded .Q file of a threading series.
type seriesRun struct {
	filename string
	q        *mat.Dense
}

// loadSeries reads all input files, using up to cfg.Threads
// goroutines, and indexes them by K.
func loadSeries(cfg threadConfig) (map[int]seriesRun, error) {
	runs := make([]seriesRun, len(cfg.Inputs))
	thr := throttle{Max: cfg.Threads}
	if thr.Max < 1 {
		thr.Max = 1
	}
	for i, fnm := range cfg.Inputs {
		i, fnm := i, fnm
		thr.Go(func() error {
			q, err := readMatrixFile(fnm)
			if err != nil {
				return err
			}
			n, k := q.Dims()
			log.Infof("%s N=%d K=%d", fnm, n, k)
			runs[i] = seriesRun{filename: fnm, q: q}
			return nil
		})
	}
	if err := thr.Wait(); err != nil {
		return nil, err
	}
	byK := make(map[int]seriesRun, len(runs))
	for _, run := range runs {
		_, k := run.q.Dims()
		if prev, ok := byK[k]; ok {
			return nil, fmt.Errorf("%s and %s both have K=%d: %w", prev.filename, run.filename, k, ErrConfig)
		}
		byK[k] = run
	}
	return byK, nil
}

// runThread loads and threads the series, then writes the thread
// file (to stdout if cfg.Output is "-") and any thread-ordered Q
// files. Nothing is written unless threading succeeds.
func runThread(cfg threadConfig, stdout io.Writer) error {
	runs, err := loadSeries(cfg)
	if err != nil {
		return err
	}
	series := make(map[int]mat.Matrix, len(runs))
	for k, run := range runs {
		series[k] = run.q
	}
	threads, err := ThreadAncestries(series, cfg.Exponent)
	if err != nil {
		return err
	}
	log.Infof("found %d ancestry threads", len(threads))

	aligned := map[string]*mat.Dense{}
	if cfg.AlignedDir != "" {
		names := alignedNames(runs)
		for k, run := range runs {
			order, err := ThreadOrder(threads, k)
			if err != nil {
				return err
			}
			aligned[filepath.Join(cfg.AlignedDir, names[k])], err = permuteColumns(run.q, order)
			if err != nil {
				return err
			}
		}
	}

	err = writeThreadFile(cfg.Output, stdout, threads)
	if err != nil {
		return err
	}
	if len(aligned) == 0 {
		return nil
	}
	err = os.MkdirAll(cfg.AlignedDir, 0777)
	if err != nil {
		return err
	}
	for fnm, q := range aligned {
		log.Infof("writing %s", fnm)
		err = writeMatrixFile(fnm, q)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeThreadFile(fnm string, stdout io.Writer, threads []Thread) error {
	if fnm == "-" {
		return WriteThreads(stdout, threads)
	}
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer f.Close()
	err = WriteThreads(f, threads)
	if err != nil {
		return err
	}
	return f.Close()
}

// alignedNames returns the output filename for the thread-ordered
// copy of each run. If two inputs share a basename (e.g. K2/admix.Q
// and K3/admix.Q) every name gets a .K<k> suffix.
func alignedNames(runs map[int]seriesRun) map[int]string {
	names := make(map[int]string, len(runs))
	used := map[string]bool{}
	collision := false
	for k, run := range runs {
		base := strings.TrimSuffix(filepath.Base(run.filename), ".gz")
		if !strings.HasSuffix(base, ".npy") {
			base = strings.TrimSuffix(base, ".Q") + ".Q"
		}
		if used[base] {
			collision = true
		}
		used[base] = true
		names[k] = base
	}
	if !collision {
		return names
	}
	for k, base := range names {
		ext := filepath.Ext(base)
		names[k] = fmt.Sprintf("%s.K%d%s", strings.TrimSuffix(base, ext), k, ext)
	}
	return names
}
