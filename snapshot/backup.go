package snapshot

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Backup copies a snapshot file into <backupRoot>/<sourceID>/, keeping the
// original filename. Backups are best-effort: every failure is logged and
// swallowed, because a disconnected backup drive must never fail a run.
// Returns the backup path, or "" when nothing was written.
func Backup(logger *slog.Logger, backupRoot, sourceID, snapshotPath string) string {
	if logger == nil {
		logger = slog.Default()
	}
	if backupRoot == "" {
		return ""
	}

	dir := filepath.Join(backupRoot, sourceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("backup: mkdir failed", "source_id", sourceID, "dir", dir, "error", err)
		return ""
	}

	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		logger.Warn("backup: copy failed", "source_id", sourceID, "path", snapshotPath, "error", err)
		return ""
	}

	logger.Info("backup: saved", "source_id", sourceID, "path", dst)
	return dst
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
