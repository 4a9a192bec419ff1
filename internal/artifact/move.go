package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Move relocates every entry of set from srcDir into dstDir. dstDir must
// exist. Entries are renamed; when rename fails (for example across
// filesystems) the entry is copied and the source removed.
func Move(set Set, srcDir, dstDir string) error {
	for _, name := range set.names {
		src := filepath.Join(srcDir, name)
		dst := filepath.Join(dstDir, name)

		if err := os.Rename(src, dst); err == nil {
			slog.Debug("moved artifact", "name", name, "to", dstDir)
			continue
		} else if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("move %s: %w", name, err)
		} else {
			slog.Debug("rename failed, copying", "name", name, "error", err)
		}

		if err := CopyTree(src, dst); err != nil {
			return fmt.Errorf("move %s: %w", name, err)
		}
		if err := os.RemoveAll(src); err != nil {
			return fmt.Errorf("remove %s after copy: %w", src, err)
		}
	}
	return nil
}

// CopyTree copies a file or directory tree from src to dst. Regular files
// keep their permission bits; other file types are skipped.
func CopyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(src, dst, info.Mode().Perm())
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Reset removes dir and everything in it, then recreates it empty.
func Reset(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
