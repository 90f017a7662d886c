//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package network

import "net"

// ReuseAddrListenConfig returns a default net.ListenConfig on platforms
// without SO_REUSEADDR support in the syscall package.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
