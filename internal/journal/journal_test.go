package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/go-digest"

	"github.com/spin-stack/fsck-overlay/internal/fsck"
	"github.com/spin-stack/fsck-overlay/internal/layer"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRun(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	overlay := digest.FromString("lowerdir-0=/l0\nupperdir=/u\n")

	run, err := j.Start(ctx, overlay, []string{"/l0", "/u"}, "auto")
	if err != nil {
		t.Fatal(err)
	}

	findings := []fsck.Finding{
		{Kind: fsck.KindOrphanWhiteout, Role: layer.Lower, Layer: "lowerdir-0", Path: "foo", Repaired: true},
		{Kind: fsck.KindMissingImpure, Role: layer.Upper, Layer: "upperdir", Path: "."},
	}
	var rec fsck.Recorder = run
	for _, f := range findings {
		if err := rec.Record(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	rep := fsck.Report{
		Final:  fsck.Result{Directories: 2, MissingImpure: 1},
		Status: fsck.StatusInconsistent | fsck.StatusModified,
	}
	if err := run.Finish(ctx, rep, nil); err != nil {
		t.Fatal(err)
	}

	got, err := j.Findings(overlay, run.ID())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(findings, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}

	runs, err := j.Runs(overlay)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	m := runs[0]
	if m.ID != run.ID() || m.Policy != "auto" || m.Findings != 2 {
		t.Errorf("unexpected run meta %+v", m)
	}
	if m.ExitCode != fsck.ExitUncorrected|fsck.ExitNonDestruct {
		t.Errorf("exit code = %d", m.ExitCode)
	}
	if m.Result != rep.Final {
		t.Errorf("result = %+v, want %+v", m.Result, rep.Final)
	}
	if m.Finished.Before(m.Started) {
		t.Errorf("finished %v before started %v", m.Finished, m.Started)
	}
}

func TestJournalRunsOrdered(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	overlay := digest.FromString("a")

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := j.Start(ctx, overlay, nil, "no")
		if err != nil {
			t.Fatal(err)
		}
		if err := run.Finish(ctx, fsck.Report{}, errors.New("aborted")); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID())
	}

	runs, err := j.Runs(overlay)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range runs {
		got = append(got, r.ID)
		if r.Error != "aborted" {
			t.Errorf("run %s error = %q", r.ID, r.Error)
		}
	}
	if diff := cmp.Diff(ids, got); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}

	other, err := j.Runs(digest.FromString("b"))
	if err != nil || len(other) != 0 {
		t.Errorf("Runs of unknown overlay = %v, %v", other, err)
	}
}

func TestJournalFindingsUnknownRun(t *testing.T) {
	j := openJournal(t)
	if _, err := j.Findings(digest.FromString("a"), "nope"); !errdefs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJournalFinishCancelled(t *testing.T) {
	j := openJournal(t)
	run, err := j.Start(context.Background(), digest.FromString("a"), nil, "yes")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run.Finish(ctx, fsck.Report{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
