//go:build !windows
// +build !windows

package system

// consoles outside windows are utf-8, no detection needed
var codePageCommand []string
