// Package artifact decides which directory entries an engine run produced
// and moves them out of the engine's working area.
//
// Classification is time-windowed: only entries modified at or after the
// reference timestamp taken just before the engine launched are considered.
// Two policies apply, in order:
//
//   - subdirs: every direct subdirectory newer than the reference. Used when
//     the engine groups its output into per-run directories.
//   - files: regular files newer than the reference whose name ends in one
//     of the accepted output extensions. Used only when no subdirectory
//     qualifies.
//
// If neither policy selects anything the set is empty. That is not an error
// here; the comparator turns it into a failed case.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultExtensions are the output extensions accepted by the files policy.
var DefaultExtensions = []string{".asc", ".prj", ".dbf", ".shp", ".shx", ".atm", ".kmz", ".kml"}

// Policy names the rule that produced a Set.
type Policy string

const (
	PolicyNone    Policy = "none"
	PolicySubdirs Policy = "subdirs"
	PolicyFiles   Policy = "files"
)

// Entry is the subset of directory-listing data classification needs.
type Entry struct {
	Name    string
	IsDir   bool
	Regular bool
	ModTime time.Time
}

// Set is the immutable result of one classification.
type Set struct {
	policy Policy
	names  []string
}

// Policy returns the rule that selected the entries.
func (s Set) Policy() Policy {
	if s.policy == "" {
		return PolicyNone
	}
	return s.policy
}

// Names returns the selected entry names in sorted order.
func (s Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of selected entries.
func (s Set) Len() int { return len(s.names) }

// Empty reports whether nothing was selected.
func (s Set) Empty() bool { return len(s.names) == 0 }

// Contains reports whether name was selected.
func (s Set) Contains(name string) bool {
	i := sort.SearchStrings(s.names, name)
	return i < len(s.names) && s.names[i] == name
}

// Classify applies the subdirs policy, falling back to the files policy.
// It does not touch the filesystem.
func Classify(entries []Entry, ref time.Time, exts []string) Set {
	var dirs []string
	for _, e := range entries {
		if e.IsDir && !e.ModTime.Before(ref) {
			dirs = append(dirs, e.Name)
		}
	}
	if len(dirs) > 0 {
		sort.Strings(dirs)
		return Set{policy: PolicySubdirs, names: dirs}
	}

	var files []string
	for _, e := range entries {
		if !e.Regular || e.ModTime.Before(ref) {
			continue
		}
		if !HasExtension(e.Name, exts) {
			continue
		}
		files = append(files, e.Name)
	}
	if len(files) == 0 {
		return Set{policy: PolicyNone}
	}
	sort.Strings(files)
	return Set{policy: PolicyFiles, names: files}
}

// HasExtension reports whether name ends in one of exts. Matching is
// case-sensitive.
func HasExtension(name string, exts []string) bool {
	for _, ext := range exts {
		if ext != "" && strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return true
		}
	}
	return false
}

// List reads the direct entries of dir with their modification times.
// Entries that vanish between listing and stat are skipped.
func List(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", filepath.Join(dir, de.Name()), err)
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			IsDir:   info.IsDir(),
			Regular: info.Mode().IsRegular(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

// Collect lists dir and classifies its entries against ref.
func Collect(dir string, ref time.Time, exts []string) (Set, error) {
	entries, err := List(dir)
	if err != nil {
		return Set{}, err
	}
	return Classify(entries, ref, exts), nil
}
