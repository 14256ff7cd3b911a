package dispatch

import (
	"io"
	"os"
	"path/filepath"

	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
)

// linkInto symlinks src into dir under name, so tools see a fixed input name
func linkInto(dir, name, src string) (string, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", eris.Wrapf(err, "resolve %s", src)
	}
	dst := filepath.Join(dir, name)
	if err := os.Symlink(abs, dst); err != nil {
		return "", eris.Wrapf(err, "link %s", filepath.Base(src))
	}
	return dst, nil
}

// moveFile renames src to dst, copying when they sit on different devices
func moveFile(src, dst string) error {
	if same, err := util.SameDevice(src, filepath.Dir(dst)); err == nil && same {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return eris.Wrapf(err, "copy to %s", dst)
	}
	if err := out.Close(); err != nil {
		return eris.Wrapf(err, "close %s", dst)
	}
	return os.Remove(src)
}
