//go:build linux

// Package ipc provides the parent/child synchronization primitive the
// engine uses to hold the child at the jail/exec boundary until cgroup
// attachment has completed in the parent. Adapted from the teacher's
// sandbox/pipe.go.
package ipc

import (
	"golang.org/x/sys/unix"
)

// MakeSyncPipe creates the pipe for a one-shot, one-byte handshake: the
// child blocks reading until the parent writes, then both ends close their
// half.
func MakeSyncPipe() (rfd, wfd int, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}

// waitOne blocks until a single byte arrives on fd, then closes it.
func waitOne(fd int) error {
	var one [1]byte
	_, err := unix.Read(fd, one[:])
	_ = unix.Close(fd)
	return err
}

// signalOne writes a single byte to fd, then closes it.
func signalOne(fd int) error {
	_, err := unix.Write(fd, []byte{1})
	cerr := unix.Close(fd)
	if err != nil {
		return err
	}
	return cerr
}

// WaitForParent blocks the calling (child) process until the parent
// signals over the pipe, then closes the read end.
func WaitForParent(rfd int) error {
	return waitOne(rfd)
}

// SignalChild releases a child blocked in WaitForParent, then closes the
// write end.
func SignalChild(wfd int) error {
	return signalOne(wfd)
}

// SignalParent is the child-to-parent direction of the same one-shot
// handshake: the child uses it to tell the parent its network namespace
// now exists (child-created via unshare) and is ready for the parent to
// enter via GetFromPid and attach a bridged veth.
func SignalParent(wfd int) error {
	return signalOne(wfd)
}

// WaitForChild blocks the parent until the child signals readiness over
// the pipe, then closes the read end.
func WaitForChild(rfd int) error {
	return waitOne(rfd)
}

// ClosePipe closes both ends, for error paths where the handshake never
// completes.
func ClosePipe(rfd, wfd int) {
	_ = unix.Close(rfd)
	_ = unix.Close(wfd)
}
