// Package keypatch rewrites a NUL padded key=value slot embedded in a binary,
// as used by qmake and QtCore for their install prefix paths.
package keypatch

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"
)

// MaxValueLen is the longest value a slot can hold; one byte stays reserved
// for the terminating NUL.
const MaxValueLen = 255

var (
	ErrEmptyKey     = errors.New("empty key")
	ErrKeyNotFound  = errors.New("key marker not found")
	ErrNoTerminator = errors.New("no NUL terminator after key marker")
	ErrValueTooLong = errors.New("value does not fit in slot")
)

// Result describes an applied patch
type Result struct {
	Offset   int    // first byte of the value
	SlotLen  int    // bytes available including the terminator
	OldValue string
	Kind     string // detected file type, "unknown" when not recognized
}

// Patch overwrites the value following the first "key=" marker in data. The
// slot runs from the end of the marker through the old value and the NUL
// padding after it, at most MaxValueLen+1 bytes. The new value is written
// NUL terminated and the rest of the slot is zero filled; len(data) does
// not change.
func Patch(data []byte, key, value string) (*Result, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if len(value) > MaxValueLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrValueTooLong, len(value), MaxValueLen)
	}

	marker := []byte(key + "=")
	idx := bytes.Index(data, marker)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, marker)
	}
	start := idx + len(marker)

	limit := start + MaxValueLen + 1
	if limit > len(data) {
		limit = len(data)
	}

	nul := bytes.IndexByte(data[start:limit], 0)
	if nul < 0 {
		return nil, fmt.Errorf("%w: %s at offset %d", ErrNoTerminator, marker, idx)
	}
	end := start + nul
	oldValue := string(data[start:end])

	for end < limit && data[end] == 0 {
		end++
	}
	slot := end - start

	if len(value) >= slot {
		return nil, fmt.Errorf("%w: %d bytes, slot holds %d", ErrValueTooLong, len(value), slot-1)
	}

	copy(data[start:], value)
	clear(data[start+len(value) : end])

	return &Result{Offset: start, SlotLen: slot, OldValue: oldValue}, nil
}

// PatchFile applies Patch to a file in place, keeping its permissions
func PatchFile(fs afero.Fs, path, key, value string) (*Result, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	res, err := Patch(data, key, value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Kind = detectKind(data)

	if err := afero.WriteFile(fs, path, data, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return res, nil
}

func detectKind(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "unknown"
	}
	return kind.MIME.Value
}
