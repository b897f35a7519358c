//go:build linux

package jail

import (
	"errors"
	"os"
	"path"

	"golang.org/x/sys/unix"
)

// devAllowlist lists the device files bind-mounted from the host into the
// jail's /dev — the minimal set a compiled program or interpreter expects.
var devAllowlist = []string{
	"/dev/null",
	"/dev/zero",
	"/dev/random",
	"/dev/urandom",
}

func linkDev(src, dest string) error {
	if src == "" || dest == "" {
		return unix.EINVAL
	}
	_ = os.Remove(dest)
	if err := os.Symlink(src, dest); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return nil
}

// MountDev populates base/dev with a tmpfs, the standard fd/stdin/stdout/
// stderr symlinks, and the devAllowlist device nodes bind-mounted from the
// host.
func MountDev(base string) error {
	if base == "" {
		return unix.EINVAL
	}

	dev := path.Join(base, "/dev")
	if err := os.MkdirAll(dev, 0o755); err != nil {
		return err
	}
	if err := unix.Mount("tmpfs", dev, "tmpfs", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_STRICTATIME, "mode=755,size=65536k"); err != nil {
		return err
	}

	shm := path.Join(base, "/dev/shm")
	if err := os.MkdirAll(shm, 0o777); err != nil {
		return err
	}
	if err := unix.Mount("tmpfs", shm, "tmpfs", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, "mode=1777,size=65536k"); err != nil {
		return err
	}

	if err := linkDev("/proc/self/fd", path.Join(base, "/dev/fd")); err != nil {
		return err
	}
	if err := linkDev("/proc/self/fd/0", path.Join(base, "/dev/stdin")); err != nil {
		return err
	}
	if err := linkDev("/proc/self/fd/1", path.Join(base, "/dev/stdout")); err != nil {
		return err
	}
	if err := linkDev("/proc/self/fd/2", path.Join(base, "/dev/stderr")); err != nil {
		return err
	}

	for _, p := range devAllowlist {
		spec := MountSpec{Host: p, Dest: p, RO: false}
		if err := BindMount(base, spec); err != nil {
			continue
		}
	}

	return nil
}
