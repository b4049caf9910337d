// Package filex prepares the on-disk locations the client writes to.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirMode is the permission used for directories holding vault data.
const DirMode os.FileMode = 0o700

// EnsureDir creates dir (and parents) with DirMode if it does not exist and
// returns its absolute path. An existing directory keeps its permissions.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, DirMode); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// EnsureSubdDir is EnsureDir for a directory under the working directory.
func EnsureSubdDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}
	return EnsureDir(filepath.Join(cwd, dirName))
}
