//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

func peerCredentials(conn *net.UnixConn) (pid int32, uid uint32, ok bool) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, false
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return 0, 0, false
	}
	return cred.Pid, cred.Uid, true
}
