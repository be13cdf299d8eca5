//go:build windows
// +build windows

package system

var codePageCommand = []string{"cmd", "/c", "chcp"}
