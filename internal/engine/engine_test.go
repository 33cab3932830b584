package engine

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/filter"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// run executes cfg with quiet logging and returns the result together with
// every delivered event.
func run(t *testing.T, cfg Config) (Result, *eventLog) {
	t.Helper()
	log := collectEvents(t)
	cfg.Events = log.ch
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	res := Run(context.Background(), cfg)
	log.wait()
	return res, log
}

func TestCopyTree(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	createTestTree(t, src)

	res, log := run(t, Config{
		Sources:   []string{src},
		Dest:      dst,
		Recursive: true,
		Preserve:  true,
		Reflink:   ReflinkNever,
	})
	require.NoError(t, res.Err)
	require.Empty(t, res.Failures)
	assert.Equal(t, 0, res.ExitCode())
	assert.NotEmpty(t, res.RunID)

	// dst did not exist, so the tree lands at dst itself.
	verifyTreeCopy(t, src, dst)

	assert.Equal(t, int64(5), res.Stats.Done, "four files and one symlink")
	assert.Equal(t, int64(3), res.Stats.DirsCreated)
	assert.Equal(t, int64(8), res.Stats.UnitsTotal)
	assert.Equal(t, res.Stats.UnitsTotal, res.Stats.Finished()+res.Stats.DirsCreated)
	assert.Equal(t, int64(320000+17+19+17), res.Stats.BytesTransferred)

	require.NotEmpty(t, log.events)
	assert.Equal(t, event.RunStarted, log.events[0].Type)
	assert.Equal(t, event.RunComplete, log.events[len(log.events)-1].Type)
}

func TestCopyDirectoryBeforeChildren(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	createTestTree(t, src)

	_, log := run(t, Config{Sources: []string{src}, Dest: filepath.Join(base, "dst"), Recursive: true})

	seen := map[string]bool{}
	for _, e := range log.events {
		if e.Type == event.DirCreated {
			seen[e.Path] = true
			continue
		}
		if !e.Type.Terminal() {
			continue
		}
		parent := filepath.ToSlash(filepath.Dir(e.Path))
		if parent != "." {
			assert.True(t, seen[parent], "%s finished before its directory %s", e.Path, parent)
		}
	}
}

func TestCopyPreservesAttributes(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	createTestTree(t, src)

	old := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chmod(filepath.Join(src, "root.txt"), 0o600))
	setMtime(t, filepath.Join(src, "root.txt"), old)
	setMtime(t, filepath.Join(src, "sub", "deep"), old)
	setMtime(t, filepath.Join(src, "sub"), old.Add(time.Hour))

	res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Recursive: true, Preserve: true})
	require.Empty(t, res.Failures)

	info, err := os.Stat(filepath.Join(dst, "root.txt"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(old))

	// Directory times survive the files written into them.
	assert.True(t, mtimeOf(t, filepath.Join(dst, "sub", "deep")).Equal(old))
	assert.True(t, mtimeOf(t, filepath.Join(dst, "sub")).Equal(old.Add(time.Hour)))
}

func TestCopyWithoutPreserveKeepsRestrictiveDirMode(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	writeFile(t, filepath.Join(src, "ro", "f.txt"), []byte("data"))
	require.NoError(t, os.Chmod(filepath.Join(src, "ro"), 0o555))
	t.Cleanup(func() { os.Chmod(filepath.Join(src, "ro"), 0o755) }) //nolint:errcheck // cleanup

	dst := filepath.Join(base, "dst")
	res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Recursive: true})
	require.Empty(t, res.Failures)
	t.Cleanup(func() { os.Chmod(filepath.Join(dst, "ro"), 0o755) }) //nolint:errcheck // cleanup

	data, err := os.ReadFile(filepath.Join(dst, "ro", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	info, err := os.Stat(filepath.Join(dst, "ro"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o555), info.Mode().Perm())
}

func TestCopyIntoExistingDirectory(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "a.txt")
	b := filepath.Join(base, "b.txt")
	writeFile(t, a, []byte("alpha"))
	writeFile(t, b, []byte("bravo"))
	dst := filepath.Join(base, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	res, _ := run(t, Config{Sources: []string{a, b}, Dest: dst})
	require.NoError(t, res.Err)
	require.Empty(t, res.Failures)

	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	data, err = os.ReadFile(filepath.Join(dst, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(data))
}

func TestCopyArgumentErrors(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	createTestTree(t, src)
	file := filepath.Join(src, "root.txt")

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no sources", Config{Dest: base}},
		{"no destination", Config{Sources: []string{file}}},
		{"multiple sources into file", Config{Sources: []string{file, file}, Dest: filepath.Join(base, "nope.txt")}},
		{"directory without recursive", Config{Sources: []string{src}, Dest: filepath.Join(base, "dst")}},
		{"into itself", Config{Sources: []string{src}, Dest: filepath.Join(src, "sub"), Recursive: true}},
		{"same file", Config{Sources: []string{file}, Dest: file}},
		{"append with strict", Config{Sources: []string{file}, Dest: base, Append: true, Strict: true}},
		{"append with strict verification", Config{Sources: []string{file}, Dest: base, Append: true, Verify: VerifyStrict}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, log := run(t, tt.cfg)
			require.Error(t, res.Err)
			assert.Equal(t, 2, res.ExitCode())
			assert.Empty(t, log.events, "nothing is traversed")
		})
	}
}

func TestCopyMissingSourceIsUnitFailure(t *testing.T) {
	base := t.TempDir()
	good := filepath.Join(base, "good.txt")
	writeFile(t, good, []byte("ok"))
	dst := filepath.Join(base, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	res, _ := run(t, Config{Sources: []string{filepath.Join(base, "ghost"), good}, Dest: dst})
	require.NoError(t, res.Err)
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, ErrSourceNotFound)
	assert.Equal(t, 1, res.ExitCode())
	assert.FileExists(t, filepath.Join(dst, "good.txt"))
}

func TestCopyConflictWithoutForce(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "a.txt")
	dst := filepath.Join(base, "b.txt")
	writeFile(t, src, []byte("new"))
	writeFile(t, dst, []byte("old content"))

	res, _ := run(t, Config{Sources: []string{src}, Dest: dst})
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, ErrTargetExists)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old content", string(data), "destination untouched")
}

func TestCopyConflictForce(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "a.txt")
	dst := filepath.Join(base, "b.txt")
	writeFile(t, src, []byte("new"))
	writeFile(t, dst, []byte("old content that is longer"))

	res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Force: true})
	require.Empty(t, res.Failures)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestCopyConfirmer(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeFile(t, filepath.Join(src, name), []byte("new "+name))
		writeFile(t, filepath.Join(dst, name), []byte("old"))
	}

	t.Run("skip", func(t *testing.T) {
		var asked atomic.Int32
		res, _ := run(t, Config{
			Sources:   []string{src + "/a.txt"},
			Dest:      filepath.Join(dst, "a.txt"),
			Confirmer: ConfirmFunc(func(_ context.Context, c Conflict) (Decision, error) {
				asked.Add(1)
				assert.Equal(t, "exists", c.Reason)
				return Skip, nil
			}),
		})
		assert.Equal(t, int32(1), asked.Load())
		assert.Empty(t, res.Failures)
		assert.Equal(t, int64(1), res.Stats.Skipped)
	})

	t.Run("abort stops dispatch", func(t *testing.T) {
		out := filepath.Join(base, "out")
		for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
			writeFile(t, filepath.Join(out, "src", name), []byte("old"))
		}
		res, _ := run(t, Config{
			Sources:   []string{src},
			Dest:      out,
			Recursive: true,
			Workers:   1,
			Confirmer: ConfirmFunc(func(context.Context, Conflict) (Decision, error) {
				return Abort, nil
			}),
		})
		// Every file conflicts; the first answer stops the run.
		assert.True(t, res.Aborted)
		assert.Empty(t, res.Failures)
		assert.Zero(t, res.Stats.Done)
		assert.GreaterOrEqual(t, res.Stats.Skipped, int64(1))
		assert.Equal(t, 0, res.ExitCode())
	})

	t.Run("yes overrides confirmer", func(t *testing.T) {
		res, _ := run(t, Config{
			Sources: []string{src + "/b.txt"},
			Dest:    filepath.Join(dst, "b.txt"),
			Yes:     true,
			Confirmer: ConfirmFunc(func(context.Context, Conflict) (Decision, error) {
				t.Error("confirmer must not be asked")
				return Skip, nil
			}),
		})
		require.Empty(t, res.Failures)
		data, err := os.ReadFile(filepath.Join(dst, "b.txt"))
		require.NoError(t, err)
		assert.Equal(t, "new b.txt", string(data))
	})
}

func TestCopyDryRun(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	out := filepath.Join(base, "out")
	dst := filepath.Join(out, "src")
	createTestTree(t, src)
	writeFile(t, filepath.Join(dst, "root.txt"), []byte("existing"))

	res, log := run(t, Config{Sources: []string{src}, Dest: out, Recursive: true, DryRun: true})
	require.Empty(t, res.Failures)

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	require.Len(t, entries, 1, "nothing written")
	data, err := os.ReadFile(filepath.Join(dst, "root.txt"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))

	// The conflicting file is reported, not failed.
	assert.Contains(t, log.paths(event.UnitSkipped), "src/root.txt")
	for _, e := range log.events {
		if e.Type.Terminal() || e.Type == event.DirCreated {
			assert.True(t, e.DryRun, "%s event not marked dry-run", e.Type)
		}
	}
}

func TestCopyExclusion(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	createTestTree(t, src)

	rules, err := filter.Compile([]string{"glob:**/deep", `\.bin$`})
	require.NoError(t, err)

	res, log := run(t, Config{Sources: []string{src}, Dest: dst, Recursive: true, Exclude: rules})
	require.Empty(t, res.Failures)

	assert.NoFileExists(t, filepath.Join(dst, "big.bin"))
	assert.NoDirExists(t, filepath.Join(dst, "sub", "deep"))
	assert.FileExists(t, filepath.Join(dst, "sub", "mid.txt"))
	assert.Equal(t, int64(2), res.Stats.Excluded)
	assert.ElementsMatch(t, []string{"src/big.bin", "src/sub/deep"}, log.paths(event.UnitExcluded))
}

func TestCopyFailFast(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	for i := range 20 {
		writeFile(t, filepath.Join(src, "f"+string(rune('a'+i))+".txt"), []byte("x"))
	}
	// The first file conflicts and fails; nothing later completes.
	writeFile(t, filepath.Join(dst, "src", "fa.txt"), []byte("existing"))

	res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Recursive: true, Workers: 1, FailFast: true})
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.ExitCode())
	assert.Zero(t, res.Stats.Done)
}

func TestCopyCancelledContext(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	createTestTree(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Run(ctx, Config{Sources: []string{src}, Dest: filepath.Join(base, "dst"), Recursive: true, Logger: quietLogger()})
	require.NoError(t, res.Err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 130, res.ExitCode())
}

func TestCopyVerifyModes(t *testing.T) {
	for _, v := range []VerifyMode{VerifySize, VerifyHash, VerifyStrict} {
		for _, algo := range []HashAlgo{HashBLAKE3, HashXXH64} {
			t.Run(v.String()+"/"+algo.String(), func(t *testing.T) {
				base := t.TempDir()
				src := filepath.Join(base, "src")
				createTestTree(t, src)

				res, _ := run(t, Config{
					Sources:   []string{src},
					Dest:      filepath.Join(base, "dst"),
					Recursive: true,
					Verify:    v,
					Hash:      algo,
					Reflink:   ReflinkNever,
				})
				require.Empty(t, res.Failures)
				assert.Equal(t, int64(4), res.Stats.Verified, "regular files only")
				assert.Zero(t, res.Stats.VerifyFailed)
			})
		}
	}
}

func TestCopySymlinkReplacesExisting(t *testing.T) {
	base := t.TempDir()
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink("target-a", link))
	dst := filepath.Join(base, "copy")
	require.NoError(t, os.Symlink("target-b", dst))

	res, _ := run(t, Config{Sources: []string{link}, Dest: dst, Force: true})
	require.Empty(t, res.Failures)
	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, "target-a", target)

	// Identical links are skipped.
	res, _ = run(t, Config{Sources: []string{link}, Dest: dst})
	require.Empty(t, res.Failures)
	assert.Equal(t, int64(1), res.Stats.Skipped)
}

func TestCopyFileOntoDirectoryFails(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	writeFile(t, filepath.Join(src, "x"), []byte("file"))
	dst := filepath.Join(base, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "src", "x"), 0o755))

	res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Recursive: true, Force: true})
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, ErrIsDirectory)
}

func TestCopyUnderFailedDirIsSkipped(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	writeFile(t, filepath.Join(src, "d", "inner.txt"), []byte("x"))
	dst := filepath.Join(base, "dst")
	// A file where the directory should go.
	writeFile(t, filepath.Join(dst, "src", "d"), []byte("blocker"))

	res, log := run(t, Config{Sources: []string{src}, Dest: dst, Recursive: true})
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, ErrTargetExists)
	assert.Contains(t, log.paths(event.UnitSkipped), "src/d/inner.txt")
}
