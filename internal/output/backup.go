package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// backupLayout is rendered without its dot: 2024-01-02_130405123456.
const backupLayout = "2006-01-02_150405.000000"

// BackupName returns "<prefix>_<timestamp><ext>".
func BackupName(prefix, ext string, t time.Time) string {
	return prefix + "_" + strings.ReplaceAll(t.Format(backupLayout), ".", "") + ext
}

// Backup copies src into dir as BackupName(prefix, ext of src, t) and
// returns the new path.
func Backup(src, dir, prefix string, t time.Time) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("backup: open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	dst := filepath.Join(dir, BackupName(prefix, filepath.Ext(src), t))
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("backup: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("backup: copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("backup: sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("backup: close %s: %w", dst, err)
	}
	return dst, nil
}
