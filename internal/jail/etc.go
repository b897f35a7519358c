//go:build linux

package jail

import (
	"fmt"
	"os"
	"path"

	"golang.org/x/sys/unix"
)

// defaultNameservers is used when a jail is prepared without an explicit
// nameserver list.
var defaultNameservers = []string{
	"8.8.8.8",
	"8.8.4.4",
}

// SetResolvers writes base/etc/resolv.conf with the given nameservers. A
// judge jail gets its own resolv.conf rather than a bind mount of the
// host's, since judge sandboxes commonly run with network isolation and
// the host's resolver config (e.g. a local stub resolver) would be
// meaningless or misleading inside the jail.
func SetResolvers(base string, nameservers []string) error {
	if base == "" {
		return unix.EINVAL
	}

	if err := os.MkdirAll(path.Join(base, "/etc"), 0o755); err != nil {
		return fmt.Errorf("create /etc: %w", err)
	}

	resolvPath := path.Join(base, "/etc/resolv.conf")
	if info, err := os.Lstat(resolvPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(resolvPath); err != nil {
			return fmt.Errorf("remove symlink resolv.conf: %w", err)
		}
	}

	if len(nameservers) == 0 {
		nameservers = defaultNameservers
	}

	var content string
	for _, ns := range nameservers {
		content += fmt.Sprintf("nameserver %s\n", ns)
	}

	return os.WriteFile(resolvPath, []byte(content), 0o644)
}

// SetupEtc populates the minimal /etc files a jailed program expects.
func SetupEtc(base string, nameservers []string) error {
	if base == "" {
		return unix.EINVAL
	}

	if err := os.MkdirAll(path.Join(base, "/etc"), 0o755); err != nil {
		return err
	}

	if err := SetResolvers(base, nameservers); err != nil {
		return fmt.Errorf("set resolvers: %w", err)
	}

	if _, err := os.Stat("/etc/hosts"); err == nil {
		spec := MountSpec{Host: "/etc/hosts", Dest: "/etc/hosts", RO: true}
		if err := BindMount(base, spec); err != nil {
			return fmt.Errorf("bind /etc/hosts: %w", err)
		}
	}

	return nil
}
