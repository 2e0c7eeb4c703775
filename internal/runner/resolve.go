package runner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveExecutable locates the binary to launch. Absolute paths are checked
// as given. Anything else is looked up in appDir (the launcher's own
// directory), then the working directory, and finally, for bare names, the
// system PATH. On Windows a missing ".exe" suffix is tried as well.
func ResolveExecutable(name, appDir string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: no executable configured", ErrExecutableNotFound)
	}

	variants := []string{name}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		variants = append(variants, name+".exe")
	}

	if filepath.IsAbs(name) {
		for _, v := range variants {
			if isExecutable(v) {
				return v, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
	}

	var dirs []string
	if appDir != "" {
		dirs = append(dirs, appDir)
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	for _, dir := range dirs {
		for _, v := range variants {
			p := filepath.Join(dir, v)
			if isExecutable(p) {
				return filepath.Abs(p)
			}
		}
	}

	if !strings.ContainsAny(name, `/\`) {
		if p, err := exec.LookPath(name); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", fmt.Errorf("%w: %s (searched %s, the working directory and PATH)", ErrExecutableNotFound, name, appDir)
}
