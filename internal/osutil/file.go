package osutil

import (
	"errors"
	"os"
	"path/filepath"
)

var errNamedUserHome = errors.New("cannot expand another user's home dir")

// FileExists returns whether or not a file exists on the filesystem. We
// consider any error returned by os.Stat to indicate that the file doesn't
// exist. We could be specific and use os.IsNotExist(err), but most other
// errors also indicate that the file isn't there (or isn't available) so we'll
// just catch them all.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// NormalizeFilePath normalizes a path and returns a clean absolute version.
// It expands environment variables inside paths, converts "~/" into the
// user's home directory, and replaces "./" with the current working
// directory.
func NormalizeFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path, err := ExpandHome(os.ExpandEnv(path))
	if err != nil {
		return "", err
	}

	return filepath.Abs(path)
}

// NormalizeCommand has very similar semantics to NormalizeFilePath, except
// the path only becomes absolute when it exists on the filesystem. That way
// "./bin/gateway" normalizes to a full path while "curl" stays a bare
// command for PATH lookup.
func NormalizeCommand(commandPath string) (string, error) {
	if commandPath == "" {
		return "", nil
	}

	commandPath, err := ExpandHome(os.ExpandEnv(commandPath))
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(commandPath); err == nil {
		return filepath.Abs(commandPath)
	}
	return commandPath, nil
}

// ExpandHome expands the path to the home directory when it is prefixed
// with "~". Any other path comes back untouched.
func ExpandHome(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	if len(path) > 1 && path[1] != '/' && path[1] != '\\' {
		return "", errNamedUserHome
	}

	home, err := UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// UserHomeDir is like os.UserHomeDir, but an explicit $HOME wins even on
// platforms where the stdlib would look elsewhere (USERPROFILE on Windows).
func UserHomeDir() (string, error) {
	if h := os.Getenv("HOME"); h != "" {
		return h, nil
	}
	return os.UserHomeDir()
}
