/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/continuity/fs"
	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/urfave/cli/v2"

	"github.com/spin-stack/fsck-overlay/internal/cleanup"
	"github.com/spin-stack/fsck-overlay/internal/fsck"
	"github.com/spin-stack/fsck-overlay/internal/journal"
	"github.com/spin-stack/fsck-overlay/internal/layer"
	"github.com/spin-stack/fsck-overlay/internal/mountcheck"
	"github.com/spin-stack/fsck-overlay/internal/preflight"
	"github.com/spin-stack/fsck-overlay/internal/repair"
	"github.com/spin-stack/fsck-overlay/internal/runlock"
)

// Version information - set via ldflags at build time
// Example: go build -ldflags "-X main.version=1.0.0 -X main.gitCommit=$(git rev-parse HEAD)"
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "Print version information",
	}

	app := &cli.App{
		Name:                   "fsck.overlay",
		Usage:                  "Check and repair the layers of an overlay filesystem",
		UsageText:              "fsck.overlay [-o lowerdir=<lowers>,upperdir=<upper>,workdir=<work>] [-pnyvV]",
		Version:                fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		UseShortOptionHandling: true,
		Flags:                  globalFlags(),
		Action:                 run,
		OnUsageError: func(_ *cli.Context, err error, _ bool) error {
			return cli.Exit(err.Error(), fsck.ExitUsage)
		},
		Commands: []*cli.Command{
			historyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(fsck.ExitError)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "options",
			Aliases: []string{"o"},
			Usage:   "Overlay mount options naming the layers: lowerdir=<l1:l2>,upperdir=<u>,workdir=<w>",
			EnvVars: []string{"FSCK_OVERLAY_OPTIONS"},
		},
		&cli.StringFlag{
			Name:    "lowerdir",
			Usage:   "Lower directories, top first, separated by ':'",
			EnvVars: []string{"FSCK_OVERLAY_LOWERDIR"},
		},
		&cli.StringFlag{
			Name:    "upperdir",
			Usage:   "Upper directory",
			EnvVars: []string{"FSCK_OVERLAY_UPPERDIR"},
		},
		&cli.StringFlag{
			Name:    "workdir",
			Usage:   "Work directory",
			EnvVars: []string{"FSCK_OVERLAY_WORKDIR"},
		},
		&cli.BoolFlag{
			Name:    "preen",
			Aliases: []string{"p", "a"},
			Usage:   "Automatic repair (no questions)",
		},
		&cli.BoolFlag{
			Name:    "no",
			Aliases: []string{"n"},
			Usage:   "Make no changes to the filesystem",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "Assume \"yes\" to all questions",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Print per pass counters and layer usage, and log at debug level",
			EnvVars: []string{"FSCK_OVERLAY_VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "TOML configuration file",
			EnvVars: []string{"FSCK_OVERLAY_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "journal",
			Usage:   "Database recording every run and finding",
			EnvVars: []string{"FSCK_OVERLAY_JOURNAL"},
		},
		&cli.StringFlag{
			Name:    "lock-dir",
			Usage:   "Directory holding the per overlay lock files",
			Value:   runlock.DefaultDir,
			EnvVars: []string{"FSCK_OVERLAY_LOCK_DIR"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (trace, debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"LOG_LEVEL"},
		},
	}
}

func run(cliCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cliCtx.NArg() > 0 {
		return exitError(fmt.Errorf("unexpected argument %q: %w", cliCtx.Args().First(), errdefs.ErrInvalidArgument))
	}
	opts, err := loadOptions(cliCtx)
	if err != nil {
		return exitError(err)
	}
	if err := log.SetLevel(opts.logLevel); err != nil {
		return exitError(err)
	}

	sum, err := check(ctx, opts, os.Stdin, os.Stdout)
	if err != nil {
		sum.rep.Status |= fsck.StatusAborted
		log.G(ctx).WithError(err).Error("check failed")
	}
	printSummary(os.Stdout, sum, opts.verbose)

	if code := sum.rep.Status.ExitCode(); code != fsck.ExitOK {
		return cli.Exit("", code)
	}
	return nil
}

// summary is what check hands back for printing.
type summary struct {
	rep   fsck.Report
	usage map[string]fs.Usage
}

// check runs one check of the overlay described by opts. Questions are
// read from in and prompts are written to out.
func check(ctx context.Context, opts options, in io.Reader, out io.Writer) (summary, error) {
	var sum summary

	if err := preflight.Check(len(opts.dirs.Lower)); err != nil {
		return sum, fmt.Errorf("preflight check failed: %w", err)
	}
	if !preflight.Privileged() {
		log.G(ctx).Warn("not running as root, trusted.overlay.* attributes may be invisible")
	}
	if release, err := preflight.KernelVersion(); err == nil {
		log.G(ctx).WithField("kernel", release).Debug("running kernel")
	}

	dirs := layer.Dirs{Lower: opts.dirs.Lower, Upper: opts.dirs.Upper, Work: opts.dirs.Work}
	unlock, err := runlock.Acquire(opts.lockDir, dirs.Digest())
	if err != nil {
		return sum, err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.G(ctx).WithError(err).Warn("failed to release lock")
		}
	}()

	set, err := layer.Open(ctx, dirs)
	if err != nil {
		return sum, fmt.Errorf("failed to open layers: %w", err)
	}
	defer set.Close()

	checkOpts := []fsck.Opt{
		fsck.WithDecider(repair.NewPrompter(opts.policy, in, out)),
		fsck.WithMountChecker(mountcheck.New()),
	}

	var (
		rep      fsck.Report
		runErr   error
		finalize []func(context.Context) error
	)
	if opts.journal != "" {
		j, err := journal.Open(opts.journal)
		if err != nil {
			return sum, err
		}
		jrun, err := j.Start(ctx, set.Digest(), set.Paths(), opts.policy.String())
		if err != nil {
			j.Close()
			return sum, err
		}
		log.G(ctx).WithField("run", jrun.ID()).Debug("recording run")
		checkOpts = append(checkOpts, fsck.WithRecorder(jrun))
		finalize = append(finalize,
			func(ctx context.Context) error { return jrun.Finish(ctx, rep, runErr) },
			func(context.Context) error { return j.Close() },
		)
	}

	rep, runErr = fsck.New(set, checkOpts...).Run(ctx)
	sum.rep = rep

	if err := cleanup.All(ctx, finalize...); err != nil {
		log.G(ctx).WithError(err).Warn("failed to finish journal run")
	}
	if runErr != nil {
		return sum, runErr
	}

	if opts.verbose {
		if sum.usage, err = layer.Usage(ctx, set); err != nil {
			log.G(ctx).WithError(err).Warn("failed to compute layer usage")
		}
	}
	return sum, nil
}

// exitError maps invalid arguments to the usage exit code and anything
// else to the operational error code.
func exitError(err error) error {
	if errdefs.IsInvalidArgument(err) || errors.Is(err, errUsage) {
		return cli.Exit(err.Error(), fsck.ExitUsage)
	}
	return cli.Exit(err.Error(), fsck.ExitError)
}
