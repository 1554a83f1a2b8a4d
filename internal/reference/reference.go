// Package reference loads labeled reference pose sequences from a
// person/action directory tree.
package reference

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/landmark"
	"github.com/heungbuja/motionjudge/internal/seqio"
)

var (
	// ErrDirectoryNotFound is returned when the reference root does not exist.
	ErrDirectoryNotFound = fmt.Errorf("%w: reference directory not found", errs.ErrUnavailable)
	// ErrNoReferences is returned when the root exists but holds no matching sequences.
	ErrNoReferences = fmt.Errorf("%w: no reference sequences found", errs.ErrUnavailable)
	// ErrNotDirectory is returned when the reference root is a regular file.
	ErrNotDirectory = fmt.Errorf("%w: reference path is not a directory", errs.ErrValidation)
)

// Sequence is a pre-recorded, labeled pose sequence. It is never modified after loading.
type Sequence struct {
	Path       string
	Person     string
	Action     string
	SequenceID int
	Landmarks  landmark.Sequence
}

// NormalizeActions trims, upper-cases, de-duplicates and sorts an action filter.
// It returns nil when no usable names remain.
func NormalizeActions(actions []string) []string {
	seen := make(map[string]bool, len(actions))
	var out []string
	for _, a := range actions {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// LoadDir walks root for sequence files laid out as person/action/file and
// returns them sorted by path. When actions is non-empty only files whose
// action directory matches one of them (case-insensitively) are loaded.
func LoadDir(root string, actions []string) ([]Sequence, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, root)
	}
	if err != nil {
		return nil, fmt.Errorf("stat reference directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	filter := make(map[string]bool)
	for _, a := range NormalizeActions(actions) {
		filter[a] = true
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !seqio.IsSequenceFile(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk reference directory: %w", err)
	}
	sort.Strings(paths)

	var refs []Sequence
	for _, path := range paths {
		actionDir := filepath.Dir(path)
		action := strings.ToUpper(filepath.Base(actionDir))
		if len(filter) > 0 && !filter[action] {
			continue
		}

		ref, err := loadSequence(root, path, action)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoReferences, root)
	}
	return refs, nil
}

func loadSequence(root, path, action string) (Sequence, error) {
	seq, meta, err := seqio.LoadFile(path)
	if err != nil {
		return Sequence{}, err
	}

	person := ""
	if personDir := filepath.Dir(filepath.Dir(path)); filepath.Clean(personDir) != filepath.Clean(root) {
		person = filepath.Base(personDir)
	}
	if p, ok := meta.String("person"); ok {
		person = p
	}
	if a, ok := meta.String("action"); ok {
		action = strings.ToUpper(strings.TrimSpace(a))
	}

	id, ok := meta.Int("sequence_id")
	if !ok {
		id, ok = seqio.SequenceID(filepath.Base(path))
	}
	if !ok {
		id = -1
	}

	return Sequence{
		Path:       path,
		Person:     person,
		Action:     action,
		SequenceID: id,
		Landmarks:  seq,
	}, nil
}
