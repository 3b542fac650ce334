package jit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"github.com/vmihailenco/msgpack/v5"
)

// Bump when cacheEntry or the key derivation changes.
const cacheSchemaVersion uint16 = 1

// Cache keeps linked libraries across processes, keyed by everything that
// went into building them.
type Cache struct {
	dir string
}

type cacheEntry struct {
	Schema  uint16
	Key     string
	Created time.Time
	Args    []string
}

func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) Dir() string { return c.dir }

// cacheKey hashes parts together with the host platform. Each part is
// length-prefixed so that boundaries are unambiguous.
func cacheKey(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range append(parts, runtime.GOOS, runtime.GOARCH) {
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) libPath(key string) string   { return filepath.Join(c.dir, key+".so") }
func (c *Cache) entryPath(key string) string { return filepath.Join(c.dir, key+".mp") }

func (c *Cache) lock() (*flock.Flock, error) {
	lock := flock.New(filepath.Join(c.dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	return lock, nil
}

// Get copies the library stored under key to dst. It reports false when
// there is no valid entry.
func (c *Cache) Get(key, dst string) (bool, error) {
	lock, err := c.lock()
	if err != nil {
		return false, err
	}
	defer lock.Unlock()

	f, err := os.Open(c.entryPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	var entry cacheEntry
	err = msgpack.NewDecoder(f).Decode(&entry)
	f.Close()
	// stale or foreign entries are misses
	if err != nil || entry.Schema != cacheSchemaVersion || entry.Key != key {
		return false, nil
	}
	if err := copyFile(c.libPath(key), dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put stores lib under key. The entry is written last so readers never
// see an entry without its library.
func (c *Cache) Put(key, lib string, args []string) error {
	lock, err := c.lock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := copyFile(lib, c.libPath(key)); err != nil {
		return fmt.Errorf("cache library: %w", err)
	}
	entry := cacheEntry{Schema: cacheSchemaVersion, Key: key, Created: time.Now(), Args: args}
	return writeAtomic(c.entryPath(key), func(w io.Writer) error {
		return msgpack.NewEncoder(w).Encode(&entry)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(f.Name(), 0o755); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
