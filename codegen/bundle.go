package codegen

import (
	"os"
	"path/filepath"

	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
)

// rename is swapped out in tests to simulate failures half way through a bundle.
var rename = os.Rename

type staged struct {
	target string
	tmp    string
	backup string
	done   bool
}

// WriteBundle writes all files or none of them.
// Every file is written to a temporary file next to its target first. Only once all
// of them are written the temporary files are renamed over their targets. If any step
// fails, temporary files are removed and targets that existed before are restored.
//
// It returns error wrapping control.ErrIO if any of the files can not be written.
func WriteBundle(files []File) (err error) {
	if len(files) == 0 {
		return errors.Wrap(control.ErrInterface, "no files to write")
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f.Path)
		if err != nil {
			return errors.Wrapf(control.ErrIO, "%s: %v", f.Path, err)
		}
		if seen[abs] {
			return errors.Wrapf(control.ErrInterface, "duplicate file: %s", f.Path)
		}
		seen[abs] = true

		if fi, err := os.Stat(f.Path); err == nil && fi.IsDir() {
			return errors.Wrapf(control.ErrIO, "%s: is a directory", f.Path)
		}
	}

	stages := make([]*staged, 0, len(files))
	defer func() {
		if err != nil {
			rollback(stages)
		}
	}()

	for _, f := range files {
		tmp, err := writeTemp(f)
		if err != nil {
			return err
		}
		stages = append(stages, &staged{target: f.Path, tmp: tmp})
	}

	for _, s := range stages {
		if _, err := os.Lstat(s.target); err == nil {
			backup, err := reserve(s.target, ".bak-*")
			if err != nil {
				return err
			}
			if err := rename(s.target, backup); err != nil {
				os.Remove(backup)
				return errors.Wrapf(control.ErrIO, "backup %s: %v", s.target, err)
			}
			s.backup = backup
		}

		if err := rename(s.tmp, s.target); err != nil {
			return errors.Wrapf(control.ErrIO, "rename %s: %v", s.target, err)
		}
		s.done = true
	}

	for _, s := range stages {
		if s.backup != "" {
			os.Remove(s.backup)
		}
	}

	return nil
}

func writeTemp(f File) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), "."+filepath.Base(f.Path)+".tmp-*")
	if err != nil {
		return "", errors.Wrapf(control.ErrIO, "create %s: %v", f.Path, err)
	}
	defer tmp.Close()

	if _, err := tmp.Write(f.Data); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrapf(control.ErrIO, "write %s: %v", f.Path, err)
	}

	if err := tmp.Sync(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrapf(control.ErrIO, "sync %s: %v", f.Path, err)
	}

	if err := tmp.Chmod(0o644); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrapf(control.ErrIO, "chmod %s: %v", f.Path, err)
	}

	return tmp.Name(), nil
}

// reserve returns a fresh unused path next to target.
func reserve(target, pattern string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+pattern)
	if err != nil {
		return "", errors.Wrapf(control.ErrIO, "reserve %s: %v", target, err)
	}
	name := f.Name()
	f.Close()

	return name, nil
}

func rollback(stages []*staged) {
	for i := len(stages) - 1; i >= 0; i-- {
		s := stages[i]
		if s.done {
			os.Remove(s.target)
		} else {
			os.Remove(s.tmp)
		}
		if s.backup != "" {
			os.Rename(s.backup, s.target)
		}
	}
}
