//go:build !windows
// +build !windows

package system

import "os"

func isExecutableMode(info os.FileInfo) bool {
	return info.Mode().Perm()&0111 != 0
}
