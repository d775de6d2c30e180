package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/spin-stack/fsck-overlay/internal/journal"
	"github.com/spin-stack/fsck-overlay/internal/layer"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List the recorded checks of an overlay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "run",
				Usage: "Print the findings of one run instead of the run list",
			},
		},
		Action: func(cliCtx *cli.Context) error {
			opts, err := loadOptions(cliCtx)
			if err != nil {
				return exitError(err)
			}
			if opts.journal == "" {
				return exitError(fmt.Errorf("history needs --journal: %w", errUsage))
			}
			j, err := journal.Open(opts.journal)
			if err != nil {
				return exitError(err)
			}
			defer j.Close()

			dirs := layer.Dirs{Lower: opts.dirs.Lower, Upper: opts.dirs.Upper, Work: opts.dirs.Work}
			if id := cliCtx.String("run"); id != "" {
				err = printFindings(os.Stdout, j, dirs, id)
			} else {
				err = printRuns(os.Stdout, j, dirs)
			}
			if err != nil {
				return exitError(err)
			}
			return nil
		},
	}
}

func printRuns(w io.Writer, j *journal.Journal, dirs layer.Dirs) error {
	runs, err := j.Runs(dirs.Digest())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tPOLICY\tEXIT\tFINDINGS\tRESULT")
	for _, r := range runs {
		exit := "-"
		if !r.Finished.IsZero() {
			exit = fmt.Sprint(r.ExitCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Started.Local().Format(time.DateTime), r.Policy, exit, r.Findings, r.Result)
	}
	return tw.Flush()
}

func printFindings(w io.Writer, j *journal.Journal, dirs layer.Dirs, id string) error {
	findings, err := j.Findings(dirs.Digest(), id)
	if err != nil {
		return err
	}
	for _, f := range findings {
		state := "left"
		if f.Repaired {
			state = "repaired"
		}
		fmt.Fprintf(w, "%s: %q in %s (%s)", f.Kind, f.Path, f.Layer, state)
		if f.Detail != "" {
			fmt.Fprintf(w, ": %s", f.Detail)
		}
		fmt.Fprintln(w)
	}
	return nil
}
