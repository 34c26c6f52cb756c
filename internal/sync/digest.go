package sync

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// digestChunkSize bounds the read buffer so large files are never loaded
	// into memory whole.
	digestChunkSize = 1 << 20

	digestCacheSize = 65536
)

type cachedDigest struct {
	size    int64
	modTime time.Time
	sum     string
}

// Digester computes streaming MD5 content digests. Results are cached keyed
// by absolute path and invalidated when size or mtime change, so unchanged
// files are hashed once rather than once per pass.
//
// MD5 is sufficient here: digests detect accidental divergence and verify
// copies, they are not a security boundary.
type Digester struct {
	cache     *lru.Cache[string, cachedDigest]
	chunkSize int
}

func NewDigester() *Digester {
	return newDigesterChunked(digestChunkSize)
}

func newDigesterChunked(chunkSize int) *Digester {
	// lru.New only errors on a non-positive size
	cache, _ := lru.New[string, cachedDigest](digestCacheSize)
	return &Digester{
		cache:     cache,
		chunkSize: chunkSize,
	}
}

// Digest returns the hex MD5 digest of the file at path, reusing a cached
// value when the file's size and mtime are unchanged since it was computed.
func (d *Digester) Digest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", path, err)
	}

	if prev, ok := d.cache.Get(path); ok {
		if prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
			return prev.sum, nil
		}
	}

	sum, err := d.hashFile(path)
	if err != nil {
		return "", err
	}

	d.cache.Add(path, cachedDigest{
		size:    info.Size(),
		modTime: info.ModTime(),
		sum:     sum,
	})
	return sum, nil
}

// hashFile always reads the file, bypassing the cache. The executor uses it
// to re-hash a freshly written replica file during verification.
func (d *Digester) hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer file.Close()

	h := md5.New()
	buf := make([]byte, d.chunkSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return "", fmt.Errorf("hash %q: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
