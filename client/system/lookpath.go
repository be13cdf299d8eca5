package system

import (
	"os"
	"os/exec"
)

// LookPath is used to stub exec.LookPath in tests
var LookPath = exec.LookPath

// ResolveExecutable returns the first usable path for the tool: explicitly configured paths
// first, then the PATH lookup of name, then the fallback locations. Returns "" if none exist.
func ResolveExecutable(configured []string, name string, fallbacks []string) string {
	for _, p := range configured {
		if isExecutableFile(p) {
			return p
		}
	}

	if p, err := LookPath(name); err == nil {
		return p
	}

	for _, p := range fallbacks {
		if isExecutableFile(p) {
			return p
		}
	}
	return ""
}

func isExecutableFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return isExecutableMode(info)
}
