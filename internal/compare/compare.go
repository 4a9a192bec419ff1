// Package compare judges a new output directory against its baseline.
//
// Names present in both directories are compared; regular files by exact
// byte content, directories recursively under the same rules. Names present
// on only one side are reported but do not affect the verdict. A comparison
// passes only when nothing differs and at least one name is shared, so an
// empty or never-populated baseline can not pass.
package compare

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
)

const chunkSize = 64 * 1024

// Result is the outcome of one directory comparison.
type Result struct {
	Passed       bool     `json:"passed"`
	Differing    []string `json:"differing,omitempty"`
	Common       []string `json:"common,omitempty"`
	OnlyNew      []string `json:"only_new,omitempty"`
	OnlyBaseline []string `json:"only_baseline,omitempty"`
}

// CommonCount returns the number of names shared by both directories.
func (r *Result) CommonCount() int { return len(r.Common) }

// Dirs compares newDir against baselineDir.
func Dirs(newDir, baselineDir string) (*Result, error) {
	r := &Result{}
	if err := walk(newDir, baselineDir, "", r, true); err != nil {
		return nil, err
	}
	r.Passed = len(r.Differing) == 0 && len(r.Common) > 0
	return r, nil
}

func walk(newDir, baseDir, prefix string, r *Result, top bool) error {
	left, err := readNames(newDir)
	if err != nil {
		return err
	}
	right, err := readNames(baseDir)
	if err != nil {
		return err
	}

	for _, name := range sortedKeys(left) {
		rel := path.Join(prefix, name)
		rmode, ok := right[name]
		if !ok {
			if top {
				r.OnlyNew = append(r.OnlyNew, rel)
			} else {
				r.Differing = append(r.Differing, rel)
			}
			continue
		}
		if top {
			r.Common = append(r.Common, rel)
		}

		lmode := left[name]
		switch {
		case lmode.IsDir() && rmode.IsDir():
			if err := walk(filepath.Join(newDir, name), filepath.Join(baseDir, name), rel, r, false); err != nil {
				return err
			}
		case lmode.IsDir() != rmode.IsDir():
			r.Differing = append(r.Differing, rel)
		default:
			same, err := sameFile(filepath.Join(newDir, name), filepath.Join(baseDir, name))
			if err != nil {
				return err
			}
			if !same {
				r.Differing = append(r.Differing, rel)
			}
		}
	}

	for _, name := range sortedKeys(right) {
		if _, ok := left[name]; ok {
			continue
		}
		rel := path.Join(prefix, name)
		if top {
			r.OnlyBaseline = append(r.OnlyBaseline, rel)
		} else {
			r.Differing = append(r.Differing, rel)
		}
	}
	return nil
}

// readNames maps entry names to their file modes. Symlinks are followed.
func readNames(dir string) (map[string]os.FileMode, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	out := make(map[string]os.FileMode, len(des))
	for _, de := range des {
		info, err := os.Stat(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", filepath.Join(dir, de.Name()), err)
		}
		out[de.Name()] = info.Mode()
	}
	return out, nil
}

func sortedKeys(m map[string]os.FileMode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sameFile reports whether a and b have identical byte content.
func sameFile(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer func() { _ = fa.Close() }()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer func() { _ = fb.Close() }()

	bufA := make([]byte, chunkSize)
	bufB := make([]byte, chunkSize)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if errA != nil && !doneA {
			return false, errA
		}
		if errB != nil && !doneB {
			return false, errB
		}
		if doneA || doneB {
			return doneA && doneB, nil
		}
	}
}
