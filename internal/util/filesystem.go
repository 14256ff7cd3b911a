package util

import (
	"os"
	"syscall"

	"github.com/rotisserie/eris"
)

// SameDevice reports whether two existing paths share a device, so a
// rename between them cannot fail with EXDEV. When the platform exposes no
// device IDs it reports false and callers fall back to copying.
func SameDevice(a, b string) (bool, error) {
	da, ok, err := deviceOf(a)
	if err != nil || !ok {
		return false, err
	}
	db, ok, err := deviceOf(b)
	if err != nil || !ok {
		return false, err
	}
	return da == db, nil
}

func deviceOf(path string) (uint64, bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, false, eris.Wrapf(err, "stat %s", path)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false, nil
	}
	return uint64(st.Dev), true, nil
}
