package jail

import (
	"os"
	"path"
)

// MountTmp ensures base/tmp exists with the usual world-writable sticky
// mode (1777) that a program running inside the jail expects of /tmp.
func MountTmp(base string) error {
	if base == "" {
		return nil
	}

	tmp := path.Join(base, "/tmp")
	if err := os.MkdirAll(tmp, 0o1777); err != nil {
		return err
	}
	return os.Chmod(tmp, 0o1777)
}
