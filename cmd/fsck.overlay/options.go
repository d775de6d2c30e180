package main

import (
	"errors"
	"fmt"

	"github.com/containerd/log"
	"github.com/urfave/cli/v2"

	"github.com/spin-stack/fsck-overlay/internal/config"
	"github.com/spin-stack/fsck-overlay/internal/repair"
)

var errUsage = errors.New("usage error")

// options is the merged view of the configuration file and the flags.
type options struct {
	dirs     config.Dirs
	policy   repair.Policy
	verbose  bool
	journal  string
	lockDir  string
	logLevel string
}

// loadOptions reads the configuration file, when given, and applies the
// flags on top of it. Directories come from the file, then -o, then the
// per directory flags, each replacing what the previous one set.
func loadOptions(cliCtx *cli.Context) (options, error) {
	file := &config.File{}
	if p := cliCtx.String("config"); p != "" {
		var err error
		if file, err = config.Load(p); err != nil {
			return options{}, err
		}
	}

	opts := options{
		verbose:  cliCtx.Bool("verbose") || file.Verbose,
		journal:  file.Journal,
		lockDir:  cliCtx.String("lock-dir"),
		logLevel: cliCtx.String("log-level"),
	}
	if cliCtx.IsSet("journal") {
		opts.journal = cliCtx.String("journal")
	}
	if file.LockDir != "" && !cliCtx.IsSet("lock-dir") {
		opts.lockDir = file.LockDir
	}
	if !cliCtx.IsSet("log-level") {
		switch {
		case file.LogLevel != "":
			opts.logLevel = file.LogLevel
		case opts.verbose:
			opts.logLevel = "debug"
		}
	}

	var err error
	if opts.policy, err = policyFromFlags(cliCtx, file.Policy); err != nil {
		return options{}, err
	}

	dirs := file.Overlay.Merge(config.ParseMountOptions(cliCtx.String("options")))
	dirs = dirs.Merge(config.Dirs{
		Lower: config.SplitLowerDirs(cliCtx.String("lowerdir")),
		Upper: cliCtx.String("upperdir"),
		Work:  cliCtx.String("workdir"),
	})
	if dirs, err = config.Resolve(dirs); err != nil {
		return options{}, err
	}
	dirs, dropped := config.Dedup(dirs)
	for _, p := range dropped {
		log.L.WithField("path", p).Warn("lower directory given more than once, ignoring repeat")
	}
	opts.dirs = dirs
	return opts, nil
}

// policyFromFlags returns the policy selected by -p/-a, -n or -y, falling
// back to def and then to Interactive.
func policyFromFlags(cliCtx *cli.Context, def string) (repair.Policy, error) {
	var (
		policy repair.Policy
		n      int
	)
	for _, f := range []struct {
		name   string
		policy repair.Policy
	}{
		{"preen", repair.Auto},
		{"no", repair.AssumeNo},
		{"yes", repair.AssumeYes},
	} {
		if cliCtx.Bool(f.name) {
			policy = f.policy
			n++
		}
	}
	switch {
	case n > 1:
		return 0, fmt.Errorf("only one of the options -p/-a, -n or -y can be specified: %w", errUsage)
	case n == 1:
		return policy, nil
	}
	return repair.ParsePolicy(def)
}
