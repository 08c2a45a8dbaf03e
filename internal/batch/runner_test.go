package batch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sidecar/internal/batch"
	"sidecar/internal/journal"
	"sidecar/internal/logging"
	"sidecar/internal/runlock"
	"sidecar/internal/sidecar"
	"sidecar/internal/testsupport"
)

func newRunner(t *testing.T, opts ...batch.Option) (*batch.Runner, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	opts = append([]batch.Option{batch.WithRunID(sequentialIDs()), batch.WithVersion("test")}, opts...)
	return batch.NewRunner(cfg, logging.NewNop(), opts...), cfg.LockDir()
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "run-" + string(rune('0'+n))
	}
}

func structured(t *testing.T, path, body string) {
	t.Helper()
	testsupport.WritePNG(t, path, testsupport.TextChunk{Key: "parameters", Value: body})
}

func TestRunWritesSidecars(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "photo.png"), `{"prompt":"cat"}`)
	testsupport.WritePNG(t, filepath.Join(root, "plain.png"), testsupport.TextChunk{Key: "Comment", Value: "hello"})
	testsupport.WriteJPEG(t, filepath.Join(root, "bare.jpg"))
	testsupport.WriteBytes(t, filepath.Join(root, "broken.png"), []byte("not an image"))
	testsupport.WriteBytes(t, filepath.Join(root, "readme.md"), []byte("ignored"))

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root, Command: "sidecar ."})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Counts.Images != 4 {
		t.Fatalf("images = %d", summary.Counts.Images)
	}
	if summary.Counts.Created != 2 || summary.Counts.NoMetadata != 1 || summary.Counts.Errors != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	if got := testsupport.ReadFile(t, filepath.Join(root, "plain.txt")); got != "Comment: hello\n" {
		t.Fatalf("plain.txt = %q", got)
	}
	record := testsupport.ReadFile(t, filepath.Join(root, "photo.json"))
	if !strings.Contains(record, `"prompt": "cat"`) || !strings.Contains(record, `"run_id": "run-1"`) {
		t.Fatalf("photo.json = %s", record)
	}
	testsupport.RequireMissing(t, filepath.Join(root, "bare.json"))
	testsupport.RequireMissing(t, filepath.Join(root, "bare.txt"))

	failed := summary.Failed()
	if len(failed) != 1 || failed[0].Stage != batch.StageExtract || filepath.Base(failed[0].Path) != "broken.png" {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunWritesJSONFromEXIF(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteJPEGWithEXIF(t, filepath.Join(root, "photo.jpg"), testsupport.EXIFUserComment(`{"prompt":"cat"}`))

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Created != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	record := testsupport.ReadFile(t, filepath.Join(root, "photo.json"))
	if !strings.Contains(record, `"prompt": "cat"`) {
		t.Fatalf("photo.json = %s", record)
	}
	testsupport.RequireMissing(t, filepath.Join(root, "photo.txt"))
}

func TestRunSecondPassMerges(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "photo.png"), `{"prompt":"cat"}`)

	runner, _ := newRunner(t)
	for i := 0; i < 2; i++ {
		if _, err := runner.Run(context.Background(), batch.Options{Root: root}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	summary, err := runner.Run(context.Background(), batch.Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Merged != 1 {
		t.Fatalf("expected merge, got %+v", summary.Counts)
	}
	record := testsupport.ReadFile(t, filepath.Join(root, "photo.json"))
	if strings.Count(record, `"run_id"`) != 3 {
		t.Fatalf("expected three history entries:\n%s", record)
	}
}

func TestRunSameStemInOneRunIsSkipped(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "photo.png"), `{"from":"png"}`)
	structured(t, filepath.Join(root, "photo.PNG"), `{"from":"upper"}`)

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Created != 1 || summary.Counts.Skipped != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
}

func TestRunRecursive(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "top.png"), `{"a":1}`)
	structured(t, filepath.Join(root, "nested", "deep.png"), `{"b":2}`)

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Images != 1 {
		t.Fatalf("non-recursive run saw %d images", summary.Counts.Images)
	}
	testsupport.RequireMissing(t, filepath.Join(root, "nested", "deep.json"))

	summary, err = runner.Run(context.Background(), batch.Options{Root: root, Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Images != 2 {
		t.Fatalf("recursive run saw %d images", summary.Counts.Images)
	}
	testsupport.RequireExists(t, filepath.Join(root, "nested", "deep.json"))
}

func TestRunDryRunChangesNothing(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "img_1.0.png"), `{"a":1}`)
	testsupport.WriteBytes(t, filepath.Join(root, "orphan.json"), []byte(`{}`))

	runner, _ := newRunner(t)
	opts := batch.Options{Root: root, DryRun: true, FixFilenames: true, Clean: true}
	summary, err := runner.Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.DryRun || summary.Counts.Created != 1 || summary.Counts.Renamed != 1 || summary.Counts.OrphansRemoved != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	testsupport.RequireExists(t, filepath.Join(root, "img_1.0.png"))
	testsupport.RequireMissing(t, filepath.Join(root, "img_1.00.png"))
	testsupport.RequireMissing(t, filepath.Join(root, "img_1.0.json"))
	testsupport.RequireExists(t, filepath.Join(root, "orphan.json"))
}

func TestRunDryRunReportsSameDecisionsAsRealRun(t *testing.T) {
	build := func(t *testing.T) string {
		root := t.TempDir()
		structured(t, filepath.Join(root, "photo.png"), `{"a":1}`)
		structured(t, filepath.Join(root, "photo.PNG"), `{"a":2}`)
		testsupport.WritePNG(t, filepath.Join(root, "plain.png"), testsupport.TextChunk{Key: "Comment", Value: "one"})
		testsupport.WritePNG(t, filepath.Join(root, "plain.PNG"), testsupport.TextChunk{Key: "Comment", Value: "two"})
		structured(t, filepath.Join(root, "merge.png"), `{"b":1}`)
		testsupport.WriteBytes(t, filepath.Join(root, "merge.json"), []byte(`{"old":true}`))
		return root
	}
	decisions := func(t *testing.T, dryRun bool) []string {
		root := build(t)
		runner, _ := newRunner(t)
		summary, err := runner.Run(context.Background(), batch.Options{Root: root, DryRun: dryRun})
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, o := range summary.Outcomes {
			out = append(out, filepath.Base(o.Path)+":"+o.Action)
		}
		return out
	}

	planned := decisions(t, true)
	applied := decisions(t, false)
	if strings.Join(planned, " ") != strings.Join(applied, " ") {
		t.Fatalf("dry run %v, real run %v", planned, applied)
	}
	if !strings.Contains(strings.Join(applied, " "), "photo.png:skip") {
		t.Fatalf("expected same-stem skip in %v", applied)
	}
}

func TestRunFixFilenamesMovesSidecarsWithImage(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "img_1.0.png"), `{"a":1}`)
	testsupport.WriteBytes(t, filepath.Join(root, "img_1.0.json"), []byte(`{"kept":true}`))

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root, FixFilenames: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Renamed != 2 || summary.Counts.Merged != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	testsupport.RequireMissing(t, filepath.Join(root, "img_1.0.png"))
	testsupport.RequireMissing(t, filepath.Join(root, "img_1.0.json"))
	record := testsupport.ReadFile(t, filepath.Join(root, "img_1.00.json"))
	if !strings.Contains(record, `"kept": true`) || !strings.Contains(record, `"a": 1`) {
		t.Fatalf("merged record = %s", record)
	}
}

func TestRunRenameConflictKeepsOriginalPath(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "img_1.0.png"), `{"a":1}`)
	structured(t, filepath.Join(root, "img_1.00.png"), `{"b":2}`)

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root, FixFilenames: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Conflicts != 1 || summary.Counts.Created != 2 || summary.Counts.Errors != 0 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	testsupport.RequireExists(t, filepath.Join(root, "img_1.0.json"))
	testsupport.RequireExists(t, filepath.Join(root, "img_1.00.json"))
}

func TestRunCompanionConflictKeepsWholePair(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "img_1.0.png"), `{"a":1}`)
	testsupport.WriteBytes(t, filepath.Join(root, "img_1.0.json"), []byte(`{"mine":true}`))
	testsupport.WriteBytes(t, filepath.Join(root, "img_1.00.json"), []byte(`{"other":true}`))

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root, FixFilenames: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Conflicts != 1 || summary.Counts.Renamed != 0 || summary.Counts.Merged != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	testsupport.RequireExists(t, filepath.Join(root, "img_1.0.png"))
	testsupport.RequireMissing(t, filepath.Join(root, "img_1.00.png"))
	mine := testsupport.ReadFile(t, filepath.Join(root, "img_1.0.json"))
	if !strings.Contains(mine, `"mine": true`) || !strings.Contains(mine, `"a": 1`) {
		t.Fatalf("img_1.0.json = %s", mine)
	}
	if other := testsupport.ReadFile(t, filepath.Join(root, "img_1.00.json")); other != `{"other":true}` {
		t.Fatalf("unrelated record changed: %s", other)
	}
}

func TestRunCleanRemovesOrphans(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "keep.png"), `{"a":1}`)
	testsupport.WriteBytes(t, filepath.Join(root, "gone", "orphan.txt"), []byte("x"))

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root, Recursive: true, Clean: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.OrphansRemoved != 1 || summary.Counts.DirsRemoved != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	testsupport.RequireMissing(t, filepath.Join(root, "gone"))
	testsupport.RequireExists(t, filepath.Join(root, "keep.json"))
}

func TestRunFailsWhenLocked(t *testing.T) {
	root := t.TempDir()
	runner, lockDir := newRunner(t)

	abs, err := filepath.Abs(root)
	if err != nil {
		t.Fatal(err)
	}
	held, err := runlock.Acquire(lockDir, abs)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	if _, err := runner.Run(context.Background(), batch.Options{Root: root}); !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunCancelledBeforeFirstImage(t *testing.T) {
	root := t.TempDir()
	structured(t, filepath.Join(root, "photo.png"), `{"a":1}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner, _ := newRunner(t)
	summary, err := runner.Run(ctx, batch.Options{Root: root})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary == nil || !summary.Cancelled {
		t.Fatalf("expected cancelled summary, got %+v", summary)
	}
	testsupport.RequireMissing(t, filepath.Join(root, "photo.json"))
}

func TestRunRecordsJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJournal())
	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	root := t.TempDir()
	structured(t, filepath.Join(root, "photo.png"), `{"a":1}`)
	runner := batch.NewRunner(cfg, logging.NewNop(), batch.WithJournal(store), batch.WithRunID(func() string { return "journaled" }))

	if _, err := runner.Run(context.Background(), batch.Options{Root: root, Command: "sidecar " + root}); err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(context.Background(), batch.Options{Root: root, DryRun: true}); err != nil {
		t.Fatal(err)
	}

	runs, err := store.Runs(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("dry runs must not be journaled, got %d runs", len(runs))
	}
	if runs[0].Counts.Created != 1 || !runs[0].Finished() {
		t.Fatalf("unexpected run %+v", runs[0])
	}
	events, err := store.Events(context.Background(), "journaled")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Action != string(sidecar.ActionCreate) {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestRunUnreadableSidecarDirectoryIsPerFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := t.TempDir()
	sub := filepath.Join(root, "locked")
	structured(t, filepath.Join(sub, "a.png"), `{"a":1}`)
	structured(t, filepath.Join(root, "b.png"), `{"b":1}`)
	if err := os.Chmod(sub, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(sub, 0o755) })

	runner, _ := newRunner(t)
	summary, err := runner.Run(context.Background(), batch.Options{Root: root, Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Counts.Errors != 1 || summary.Counts.Created != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
}
