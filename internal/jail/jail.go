//go:build linux

// Package jail implements the filesystem jail primitive of §4.1: rebasing
// a process's root filesystem onto a directory and, optionally, preparing
// that directory with a minimal proc/dev/tmp/etc skeleton so it is a
// self-contained root rather than a pre-built one. Adapted from the
// teacher's fs package (fs/fs.go, fs/procfs.go, fs/devfs.go, fs/tmp.go,
// fs/etc.go); the pivot_root plumbing is kept close to verbatim since it
// is exactly what the spec's jail primitive needs.
package jail

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MountSpec describes one bind mount from the host into the jail.
type MountSpec struct {
	Host string
	Dest string
	RO   bool
}

// Mode selects how the jail's root filesystem is constructed.
type Mode int

const (
	// ModeRootfs overlays a read-only lower directory (Path) with a
	// writable tmpfs upper layer.
	ModeRootfs Mode = iota
	// ModeTmpfs builds an empty, ephemeral tmpfs root.
	ModeTmpfs
)

// Options configures Prepare.
type Options struct {
	Mode        Mode
	Path        string // lower directory, required for ModeRootfs
	ReadOnly    bool
	Storage     uint64 // tmpfs size budget in bytes
	Nameservers []string
	MountRO     []MountSpec
	MountRW     []MountSpec
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Enter is the spec's enter_jail(path) operation: it changes the calling
// process's root to path and resets the working directory to / in the new
// root. path must already be a fully self-contained root (binaries,
// libraries, /proc, /dev as needed) — callers that don't have one prepared
// ahead of time call Prepare instead, which builds a root and enters it
// itself. Irreversible for the calling
// process; must be called in the child after fork, before exec.
func Enter(path string) error {
	if path == "" {
		return unix.EINVAL
	}
	if !isDir(path) {
		return fmt.Errorf("jail: %q is not a directory", path)
	}
	return pivotTo(path)
}

// pivotTo performs the actual pivot_root dance, adapted verbatim from the
// teacher's fs.pivotTo.
func pivotTo(newRoot string) error {
	if err := os.Chdir(newRoot); err != nil {
		return err
	}

	if err := os.MkdirAll(".old_root", 0o700); err != nil {
		return err
	}

	if err := unix.PivotRoot(".", "./.old_root"); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}

	if err := os.Chdir("/"); err != nil {
		return err
	}

	if err := unix.Unmount("/.old_root", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach old root: %w", err)
	}

	return os.Remove("/.old_root")
}

// Prepare builds a jail directory tree according to opts and pivots the
// calling process into it — the composition of overlay/tmpfs setup,
// proc/dev/tmp/etc population, user bind mounts and the final Enter, as a
// single call. Mirrors the teacher's SetupFS dispatch across
// setupRootfs/setupTmpfsRoot, minus the teacher's host-fs mode (see
// DESIGN.md: a judge jail must never be the host's root).
func Prepare(opts Options) error {
	switch opts.Mode {
	case ModeRootfs:
		return prepareRootfs(opts)
	case ModeTmpfs:
		return prepareTmpfsRoot(opts)
	default:
		return unix.EINVAL
	}
}

func prepareRootfs(opts Options) error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make root private: %w", err)
	}
	if !isDir(opts.Path) {
		return fmt.Errorf("jail rootfs %q not a directory", opts.Path)
	}

	const scratch = "/box"
	if err := createTmpfs(scratch, opts.Storage); err != nil {
		return err
	}

	overlayMP := filepath.Join(scratch, "overlay")
	if err := os.MkdirAll(overlayMP, 0o755); err != nil {
		return err
	}

	ov, err := createOverlay(opts.Path, overlayMP)
	if err != nil {
		return fmt.Errorf("create overlay: %w", err)
	}

	if err := populate(ov.merge, opts); err != nil {
		return err
	}

	if err := Enter(ov.merge); err != nil {
		return err
	}

	if opts.ReadOnly {
		if err := unix.Mount("", "/", "", unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			return fmt.Errorf("remount root read-only: %w", err)
		}
	}
	return nil
}

func prepareTmpfsRoot(opts Options) error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make root private: %w", err)
	}

	const base = "/box"
	if err := createTmpfs(base, opts.Storage); err != nil {
		return err
	}

	if err := populate(base, opts); err != nil {
		return err
	}

	if err := Enter(base); err != nil {
		return err
	}

	if opts.ReadOnly {
		if err := unix.Mount("", "/", "", unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			return fmt.Errorf("remount root read-only: %w", err)
		}
	}
	return nil
}

func populate(base string, opts Options) error {
	if err := MountProc(base); err != nil {
		return fmt.Errorf("mount /proc: %w", err)
	}
	if err := MountDev(base); err != nil {
		return fmt.Errorf("mount /dev: %w", err)
	}
	if err := MountTmp(base); err != nil {
		return fmt.Errorf("mount /tmp: %w", err)
	}
	if err := SetupEtc(base, opts.Nameservers); err != nil {
		return fmt.Errorf("setup /etc: %w", err)
	}
	for _, m := range opts.MountRO {
		if err := BindMount(base, MountSpec{Host: m.Host, Dest: m.Dest, RO: true}); err != nil {
			return err
		}
	}
	for _, m := range opts.MountRW {
		if err := BindMount(base, MountSpec{Host: m.Host, Dest: m.Dest, RO: false}); err != nil {
			return err
		}
	}
	return nil
}

// BindMount bind-mounts a host path onto a target path within the jail,
// creating the target if needed. Adapted verbatim from fs.BindMount.
func BindMount(base string, spec MountSpec) error {
	if base == "" || spec.Host == "" || spec.Dest == "" {
		return unix.EINVAL
	}
	target := filepath.Join(base, spec.Dest)

	st := &unix.Stat_t{}
	if err := unix.Stat(spec.Host, st); err != nil {
		return err
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
	case unix.S_IFREG, unix.S_IFCHR, unix.S_IFBLK, unix.S_IFIFO, unix.S_IFSOCK:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		_ = f.Close()
	case unix.S_IFLNK:
		return fmt.Errorf("bind-mounting symlinks is not supported: %s", spec.Host)
	default:
		return fmt.Errorf("unsupported source file type: %s", spec.Host)
	}

	if err := unix.Mount(spec.Host, target, "", unix.MS_BIND|unix.MS_REC|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return err
	}
	if spec.RO {
		if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
			return err
		}
	}
	return nil
}

type overlayFS struct {
	lower string
	upper string
	work  string
	merge string
}

func createTmpfs(path string, storage uint64) error {
	if path == "" {
		return unix.EINVAL
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	size := storage
	if size == 0 {
		size = 512 * 1024 * 1024
	}
	return unix.Mount("tmpfs", path, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, fmt.Sprintf("mode=755,size=%d", size))
}

func createOverlay(src, mountpoint string) (*overlayFS, error) {
	if src == "" || mountpoint == "" {
		return nil, unix.EINVAL
	}

	fs := &overlayFS{
		lower: src,
		upper: filepath.Join(mountpoint, "upper"),
		work:  filepath.Join(mountpoint, "work"),
		merge: filepath.Join(mountpoint, "merged"),
	}

	for _, dir := range []string{fs.upper, fs.work, fs.merge} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", fs.lower, fs.upper, fs.work)
	if err := unix.Mount("overlay", fs.merge, "overlay", 0, opts); err != nil {
		return nil, err
	}
	return fs, nil
}
