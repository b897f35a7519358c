//go:build linux

// Package seccomp installs the system-call allow-list of §4.3: a
// default-deny filter that kills the process via SIGSYS for any syscall
// outside the allow-list. Built on the same library as the teacher's
// sandbox/seccomp.go, but with the default action and rule polarity
// inverted: the teacher defaults to ActAllow with an ERRNO deny-list
// (Docker-style); this spec requires a default-deny allow-list
// (contest-judge style). See DESIGN.md for why both are legitimate
// postures for the same library.
package seccomp

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// Install constructs a seccomp filter whose default action is to kill the
// calling process (delivering SIGSYS), adds an ActAllow rule for every
// syscall named in allowed, and loads it into the kernel for the calling
// thread and its future descendants. Must be called in the child after
// filesystem/cgroup/uid/capability setup; the engine runs only its
// RLIMIT_CPU step between Install and exec. Once installed, the filter can
// never be loosened.
func Install(allowed []string) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil && err != unix.EINVAL {
		return fmt.Errorf("prctl(NO_NEW_PRIVS): %w", err)
	}

	filter, err := libseccomp.NewFilter(libseccomp.ActKill)
	if err != nil {
		return fmt.Errorf("seccomp: new filter: %w", err)
	}
	defer filter.Release()

	for _, name := range allowed {
		sc, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			// Unknown on this architecture/kernel: skip rather than fail
			// the whole filter, matching the teacher's best-effort style
			// for per-syscall lookups.
			continue
		}
		if err := filter.AddRule(sc, libseccomp.ActAllow); err != nil {
			return fmt.Errorf("seccomp: allow %s: %w", name, err)
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("seccomp: load: %w", err)
	}
	return nil
}
