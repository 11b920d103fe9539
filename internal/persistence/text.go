package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/multierr"

	"github.com/lojhan/minikv/internal/store"
)

// MaxLineLength bounds a persisted line, terminator included. Content past
// MaxLineLength-1 bytes is dropped on load.
const MaxLineLength = 1024

// whitespace is what ParseLine trims: the ASCII space class, not Unicode
// spaces such as U+00A0, which stay part of a value.
const whitespace = " \t\n\v\f\r"

var (
	ErrNotFound = errors.New("data file not found")
	ErrIO       = errors.New("data file i/o error")
)

// ParseLine splits a raw line into a key and value. Blank lines, comment lines
// starting with '#' or ';', lines without '=' and lines whose key is not
// valid are rejected with ok=false.
func ParseLine(raw string) (key, value string, ok bool) {
	line := strings.Trim(raw, whitespace)
	if line == "" || line[0] == '#' || line[0] == ';' {
		return "", "", false
	}

	k, v, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}

	key = strings.Trim(k, whitespace)
	if !store.ValidKey(key) {
		return "", "", false
	}
	return key, strings.Trim(v, whitespace), true
}

// Decode applies every accepted line read from r to ht and returns how many
// pairs were applied. Rejected lines are skipped.
func Decode(r io.Reader, ht *store.HashTable) (int, error) {
	reader := bufio.NewReaderSize(r, MaxLineLength)

	applied := 0
	for {
		line, err := readLine(reader)
		if err != nil && err != io.EOF {
			return applied, fmt.Errorf("%w: failed to read line: %w", ErrIO, err)
		}
		if line != "" {
			if key, value, ok := ParseLine(line); ok {
				if ht.Set(key, value) == nil {
					applied++
				}
			}
		}
		if err == io.EOF {
			return applied, nil
		}
	}
}

// readLine returns the next line without its terminator, truncated to
// MaxLineLength-1 bytes. The remainder of an overlong line is discarded.
func readLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := r.ReadSlice('\n')
		if room := MaxLineLength - 1 - sb.Len(); room > 0 {
			if len(chunk) > room {
				sb.Write(chunk[:room])
			} else {
				sb.Write(chunk)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return strings.TrimSuffix(sb.String(), "\n"), err
	}
}

// Load reads the file at path into ht. A file that cannot be opened yields an
// error matching ErrNotFound, which callers usually treat as an empty store.
func Load(path string, ht *store.HashTable) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer file.Close()

	return Decode(file, ht)
}

// Encode writes one key=value line per entry in ht's traversal order.
func Encode(w io.Writer, ht *store.HashTable) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var err error
	ht.ForEach(func(key, value string) {
		if err != nil {
			return
		}
		buf.Reset()
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(value)
		buf.WriteByte('\n')
		_, err = w.Write(buf.B)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write entry: %w", ErrIO, err)
	}
	return nil
}

// Save replaces the file at path with the contents of ht. The data is written
// to a temporary file in the same directory and renamed over path, so a
// failed save leaves the previous file untouched.
func Save(path string, ht *store.HashTable) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", ErrIO, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			err = multierr.Append(err, removeIfExists(tmpName))
		}
	}()

	writer := bufio.NewWriter(tmp)
	if err := Encode(writer, ht); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := writer.Flush(); err != nil {
		return multierr.Append(fmt.Errorf("%w: failed to flush: %w", ErrIO, err), tmp.Close())
	}
	if err := tmp.Chmod(0644); err != nil {
		return multierr.Append(fmt.Errorf("%w: failed to chmod: %w", ErrIO, err), tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Append(fmt.Errorf("%w: failed to sync: %w", ErrIO, err), tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temp file: %w", ErrIO, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: failed to rename data file: %w", ErrIO, err)
	}
	return nil
}

func removeIfExists(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
