package engine

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

const hashBufferSize = 256 * 1024

var hashBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, hashBufferSize)
		return &b
	},
}

func newHasher(algo HashAlgo) hash.Hash {
	if algo == HashXXH64 {
		return xxhash.New()
	}
	return blake3.New()
}

// HashFile computes the digest of the file at path, returning it hex-encoded.
func HashFile(path string, algo HashAlgo) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	h := newHasher(algo)
	if err := digestRange(context.Background(), f, h, 0, info.Size()); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// digestRange feeds [off, off+n) of f into h. A file shorter than the range
// is an error.
func digestRange(ctx context.Context, f *os.File, h hash.Hash, off, n int64) error {
	bufp := hashBufPool.Get().(*[]byte) //nolint:errcheck,forcetypeassert // pool only holds *[]byte
	defer hashBufPool.Put(bufp)

	r := io.NewSectionReader(f, off, n)
	var copied int64
	for copied < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := io.CopyBuffer(h, io.LimitReader(r, hashBufferSize*16), *bufp)
		copied += m
		if err != nil {
			return err
		}
		if m == 0 {
			return fmt.Errorf("short read at %d of %d: %w", off+copied, off+n, io.ErrUnexpectedEOF)
		}
	}
	return nil
}

// hashRange opens path and digests [off, off+n) into h.
func hashRange(ctx context.Context, path string, h hash.Hash, off, n int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return digestRange(ctx, f, h, off, n)
}

// comparePrefix digests the first n bytes of src and dst concurrently. It
// returns the source digest state so a later full-file digest can continue
// from it.
func comparePrefix(ctx context.Context, algo HashAlgo, srcPath, dstPath string, n int64) (bool, hash.Hash, error) {
	srcHash, dstHash := newHasher(algo), newHasher(algo)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hashRange(gctx, srcPath, srcHash, 0, n) })
	g.Go(func() error { return hashRange(gctx, dstPath, dstHash, 0, n) })
	if err := g.Wait(); err != nil {
		return false, nil, err
	}
	return bytes.Equal(srcHash.Sum(nil), dstHash.Sum(nil)), srcHash, nil
}
