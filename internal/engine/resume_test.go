package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/shuttle/internal/event"
)

const testChunk = 64 << 10

// partialCopy writes the first n bytes of src to dst and stamps it with the
// source mtime, the way an interrupted resumable copy leaves it.
func partialCopy(t *testing.T, src, dst string, n int) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	writeFile(t, dst, data[:n])
	setMtime(t, dst, mtimeOf(t, src))
}

func TestResumeSecondRunSkipsEverything(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	createTestTree(t, src)
	require.NoError(t, os.Mkdir(dst, 0o755))

	cfg := Config{Sources: []string{src}, Dest: dst, Recursive: true, Resume: true, Reflink: ReflinkNever}
	res, _ := run(t, cfg)
	require.Empty(t, res.Failures)
	require.Equal(t, int64(5), res.Stats.Done)

	res, _ = run(t, cfg)
	require.Empty(t, res.Failures)
	assert.Zero(t, res.Stats.Done)
	assert.Equal(t, int64(5), res.Stats.Skipped)
	assert.Zero(t, res.Stats.BytesTransferred)
	verifyTreeCopy(t, src, filepath.Join(dst, "src"))
}

func TestResumeFromChunkBoundary(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "data.bin")
	dst := filepath.Join(base, "copy.bin")
	writeFile(t, src, patterned(250_000))
	partialCopy(t, src, dst, 2*testChunk)

	res, log := run(t, Config{
		Sources:   []string{src},
		Dest:      dst,
		Resume:    true,
		ChunkSize: testChunk,
		Reflink:   ReflinkNever,
		Verify:    VerifyHash,
	})
	require.Empty(t, res.Failures)
	assert.Equal(t, int64(250_000-2*testChunk), res.Stats.BytesTransferred)
	assert.Equal(t, int64(1), res.Stats.Verified)

	want, err := os.ReadFile(src)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for _, e := range log.events {
		if e.Type == event.UnitStarted {
			assert.Equal(t, int64(2*testChunk), e.Offset)
			assert.Equal(t, "resume", e.Reason)
		}
	}
}

func TestResumeWithDefaultReflink(t *testing.T) {
	for _, verify := range []VerifyMode{VerifyNone, VerifyHash, VerifyStrict} {
		t.Run(verify.String(), func(t *testing.T) {
			base := t.TempDir()
			src := filepath.Join(base, "data.bin")
			dst := filepath.Join(base, "copy.bin")
			writeFile(t, src, patterned(250_000))
			partialCopy(t, src, dst, 2*testChunk)

			res, _ := run(t, Config{
				Sources:   []string{src},
				Dest:      dst,
				Resume:    true,
				ChunkSize: testChunk,
				Verify:    verify,
			})
			require.Empty(t, res.Failures)

			want, err := os.ReadFile(src)
			require.NoError(t, err)
			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestRecheckResumeRestartsOnChangedPartial(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "data.bin")
	dst := filepath.Join(base, "copy.bin")
	writeFile(t, src, patterned(250_000))
	partialCopy(t, src, dst, 2*testChunk)

	r := testRunner(t, Config{Sources: []string{src}, Dest: dst, Resume: true, ChunkSize: testChunk})
	u := unitFor(t, src, dst)

	plan := Plan{Action: ActionTransfer, ResumeOffset: 2 * testChunk, Reason: "resume"}
	r.recheckResume(u, &plan)
	assert.Equal(t, int64(2*testChunk), plan.ResumeOffset, "intact partial keeps its offset")

	require.NoError(t, os.Truncate(dst, 0))
	r.recheckResume(u, &plan)
	assert.Zero(t, plan.ResumeOffset)
	assert.True(t, plan.Overwrite)
	assert.Equal(t, "restart", plan.Reason)

	written, _, err := r.stream(context.Background(), 1, u, &plan)
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), written)
	want, err := os.ReadFile(src)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResumeStampedMtimeMakesPartialResumable(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "data.bin")
	dst := filepath.Join(base, "copy.bin")
	writeFile(t, src, patterned(300_000))
	setMtime(t, src, time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC))

	res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Resume: true, Reflink: ReflinkNever})
	require.Empty(t, res.Failures)
	assert.True(t, mtimeOf(t, dst).Equal(mtimeOf(t, src)), "resumable copies carry the source mtime")
}

func TestResumeMtimeMismatchConflicts(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "data.bin")
	dst := filepath.Join(base, "copy.bin")
	writeFile(t, src, patterned(100_000))
	partialCopy(t, src, dst, 10_000)
	setMtime(t, dst, time.Now().Add(-time.Hour))

	res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Resume: true})
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, ErrTargetExists)
	assert.Contains(t, res.Failures[0].Err.Error(), "mtime differs")
}

func TestResumeLargerDestinationConflicts(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "data.bin")
	dst := filepath.Join(base, "copy.bin")
	writeFile(t, src, []byte("short"))
	writeFile(t, dst, []byte("much longer destination"))

	for _, cfg := range []Config{
		{Sources: []string{src}, Dest: dst, Resume: true},
		{Sources: []string{src}, Dest: dst, Strict: true},
		{Sources: []string{src}, Dest: dst, Append: true},
	} {
		res, _ := run(t, cfg)
		require.Len(t, res.Failures, 1)
		assert.ErrorIs(t, res.Failures[0].Err, ErrTargetExists)
	}
}

func TestResumeCorruptedPrefix(t *testing.T) {
	setup := func(t *testing.T) (string, string) {
		base := t.TempDir()
		src := filepath.Join(base, "data.bin")
		dst := filepath.Join(base, "copy.bin")
		writeFile(t, src, patterned(200_000))
		partialCopy(t, src, dst, testChunk)

		f, err := os.OpenFile(dst, os.O_WRONLY, 0)
		require.NoError(t, err)
		_, err = f.WriteAt([]byte{0xFF, 0xFE, 0xFD}, 10)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		setMtime(t, dst, mtimeOf(t, src))
		return src, dst
	}

	t.Run("strict restarts", func(t *testing.T) {
		src, dst := setup(t)
		res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Strict: true, ChunkSize: testChunk, Reflink: ReflinkNever})
		require.Empty(t, res.Failures)
		assert.Equal(t, int64(200_000), res.Stats.BytesTransferred, "whole file rewritten")
		assert.Equal(t, int64(1), res.Stats.Verified)

		want, err := os.ReadFile(src)
		require.NoError(t, err)
		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("metadata resume keeps the damage", func(t *testing.T) {
		src, dst := setup(t)
		res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Resume: true, ChunkSize: testChunk, Reflink: ReflinkNever})
		require.Empty(t, res.Failures)
		assert.Equal(t, int64(200_000-testChunk), res.Stats.BytesTransferred)

		want, err := os.ReadFile(src)
		require.NoError(t, err)
		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.NotEqual(t, want[10:13], got[10:13])
		assert.Equal(t, want[testChunk:], got[testChunk:])
	})
}

func TestResumeStrictMatchingPrefix(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "data.bin")
	dst := filepath.Join(base, "copy.bin")
	writeFile(t, src, patterned(180_000))
	partialCopy(t, src, dst, testChunk)
	// Strict mode does not care about mtime.
	setMtime(t, dst, time.Now().Add(-24*time.Hour))

	for _, algo := range []HashAlgo{HashBLAKE3, HashXXH64} {
		t.Run(algo.String(), func(t *testing.T) {
			require.NoError(t, os.Truncate(dst, testChunk))
			res, _ := run(t, Config{
				Sources:   []string{src},
				Dest:      dst,
				Strict:    true,
				Hash:      algo,
				ChunkSize: testChunk,
				Reflink:   ReflinkNever,
			})
			require.Empty(t, res.Failures)
			assert.Equal(t, int64(180_000-testChunk), res.Stats.BytesTransferred)
			assert.Equal(t, int64(1), res.Stats.Verified)

			srcSum, err := HashFile(src, algo)
			require.NoError(t, err)
			dstSum, err := HashFile(dst, algo)
			require.NoError(t, err)
			assert.Equal(t, srcSum, dstSum)
		})
	}
}

func TestAppendIgnoresMtime(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "log.txt")
	dst := filepath.Join(base, "copy.txt")
	writeFile(t, src, []byte("line one\nline two\nline three\n"))
	writeFile(t, dst, []byte("line one\n"))
	setMtime(t, dst, time.Now().Add(-time.Hour))

	res, _ := run(t, Config{Sources: []string{src}, Dest: dst, Append: true, Reflink: ReflinkNever})
	require.Empty(t, res.Failures)
	assert.Equal(t, int64(len("line two\nline three\n")), res.Stats.BytesTransferred)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\nline three\n", string(got))

	res, _ = run(t, Config{Sources: []string{src}, Dest: dst, Append: true})
	require.Empty(t, res.Failures)
	assert.Equal(t, int64(1), res.Stats.Skipped)
}

func TestInterruptLeavesChunkAlignedPartial(t *testing.T) {
	const (
		size  = 1 << 20
		chunk = 4 << 10
	)
	base := t.TempDir()
	src := filepath.Join(base, "data.bin")
	dst := filepath.Join(base, "copy.bin")
	writeFile(t, src, patterned(size))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan event.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			if e.Type == event.Progress {
				cancel()
			}
		}
	}()

	cfg := Config{
		Sources:   []string{src},
		Dest:      dst,
		Resume:    true,
		ChunkSize: chunk,
		BWLimit:   256 << 10,
		Reflink:   ReflinkNever,
		Workers:   1,
		Logger:    quietLogger(),
		Events:    events,
	}
	res := Run(ctx, cfg)
	close(events)
	<-done

	assert.True(t, res.Interrupted)
	assert.Equal(t, 130, res.ExitCode())
	assert.Equal(t, int64(1), res.Stats.Interrupted)
	assert.Empty(t, res.Failures, "interrupted units are not failures")

	info, err := os.Stat(dst)
	require.NoError(t, err)
	require.Less(t, info.Size(), int64(size))
	assert.Zero(t, info.Size()%chunk, "partial ends on a chunk boundary")
	assert.True(t, info.ModTime().Equal(mtimeOf(t, src)))

	// Resuming completes the file without rewriting the prefix.
	cfg.Events = nil
	cfg.BWLimit = 0
	res = Run(context.Background(), cfg)
	require.Empty(t, res.Failures)
	assert.Equal(t, int64(size)-info.Size(), res.Stats.BytesTransferred)

	want, err := os.ReadFile(src)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
