// Package persist saves and loads named scenes.
//
// A scene is stored as <name>.json holding {"primitives": [...]} in
// breadth-first order, the format prim.Document describes. Names are
// trimmed and NFC-normalised before use, so visually identical names map
// to the same file.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/spheray/prim"
)

// Ext is the file extension of saved scenes.
const Ext = ".json"

var (
	// ErrNotFound reports a load or delete of a name with no saved scene.
	ErrNotFound = errors.New("persist: scene not found")

	// ErrConflict reports a save to a name that already exists.
	ErrConflict = errors.New("persist: scene already exists")

	// ErrEmptyName reports a name that is empty after trimming.
	ErrEmptyName = errors.New("persist: empty scene name")

	// ErrInvalidName reports a name containing a path separator or
	// starting with a dot.
	ErrInvalidName = errors.New("persist: invalid scene name")
)

// Store keeps scenes in one directory of a filesystem.
type Store struct {
	mu  sync.Mutex
	fs  hackpadfs.FS
	dir string
}

// NewStore returns a store rooted at dir in fsys, creating dir if needed.
// dir uses io/fs path syntax: slash separated, no leading slash, "." for
// the root.
func NewStore(fsys hackpadfs.FS, dir string) (*Store, error) {
	dir = path.Clean(dir)
	if !fs.ValidPath(dir) {
		return nil, fmt.Errorf("persist: invalid directory %q", dir)
	}
	if dir != "." {
		if err := hackpadfs.MkdirAll(fsys, dir, 0o755); err != nil {
			return nil, fmt.Errorf("create save directory: %w", err)
		}
	}
	return &Store{fs: fsys, dir: dir}, nil
}

// OpenDir returns a store over an operating system directory.
func OpenDir(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	fsys := osfs.NewFS()
	p, err := fsys.FromOSPath(abs)
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	return NewStore(fsys, p)
}

// Normalize returns the canonical form of a scene name.
func Normalize(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	switch {
	case n == "":
		return "", ErrEmptyName
	case strings.ContainsAny(n, `/\`), strings.HasPrefix(n, "."):
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return n, nil
}

func (s *Store) file(name string) string {
	return path.Join(s.dir, name+Ext)
}

// Exists reports whether a scene is saved under name.
func (s *Store) Exists(name string) (bool, error) {
	n, err := Normalize(name)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(n)
}

func (s *Store) existsLocked(n string) (bool, error) {
	_, err := hackpadfs.Stat(s.fs, s.file(n))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, hackpadfs.ErrNotExist):
		return false, nil
	}
	return false, fmt.Errorf("stat %q: %w", n, err)
}

// Save writes records under name. It fails with ErrConflict when the name
// is taken. The file appears complete or not at all.
func (s *Store) Save(name string, records []prim.Record) error {
	n, err := Normalize(name)
	if err != nil {
		return err
	}
	if err := prim.ValidateRecords(records); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prim.Document{Primitives: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %q: %w", n, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.existsLocked(n)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrConflict, n)
	}

	tmp := path.Join(s.dir, "."+n+Ext+".tmp")
	if err := s.writeFile(tmp, data); err != nil {
		_ = hackpadfs.Remove(s.fs, tmp)
		return fmt.Errorf("write %q: %w", n, err)
	}
	if err := hackpadfs.Rename(s.fs, tmp, s.file(n)); err != nil {
		_ = hackpadfs.Remove(s.fs, tmp)
		return fmt.Errorf("commit %q: %w", n, err)
	}
	return nil
}

func (s *Store) writeFile(name string, data []byte) (err error) {
	f, err := hackpadfs.OpenFile(s.fs, name, hackpadfs.FlagWriteOnly|hackpadfs.FlagCreate|hackpadfs.FlagTruncate, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = hackpadfs.WriteFile(f, data)
	return err
}

// Load reads the records saved under name. Files that do not decode or
// that break the ordering rules fail with prim.ErrMalformed.
func (s *Store) Load(name string) ([]prim.Record, error) {
	n, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	data, err := hackpadfs.ReadFile(s.fs, s.file(n))
	s.mu.Unlock()
	if errors.Is(err, hackpadfs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, n)
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", n, err)
	}

	var doc prim.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", prim.ErrMalformed, n, err)
	}
	if err := prim.ValidateRecords(doc.Primitives); err != nil {
		return nil, fmt.Errorf("load %q: %w", n, err)
	}
	return doc.Primitives, nil
}

// List returns the saved scene names in lexical order.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	entries, err := hackpadfs.ReadDir(s.fs, s.dir)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(n, Ext))
	}
	slices.Sort(names)
	return names, nil
}

// Delete removes the scene saved under name.
func (s *Store) Delete(name string) error {
	n, err := Normalize(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = hackpadfs.Remove(s.fs, s.file(n))
	if errors.Is(err, hackpadfs.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrNotFound, n)
	}
	return err
}
