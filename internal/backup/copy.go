package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ByteCounter counts bytes without a UI bar.
type ByteCounter struct {
	Count int64
}

func (bc *ByteCounter) Write(p []byte) (int, error) {
	n := len(p)
	bc.Count += int64(n)
	return n, nil
}

// copyFile streams src into a temp file next to dst and renames it into
// place, so dst is either the old file or the complete new one. The source
// mode bits are applied; ownership and ACLs are not.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // Cleanup if we fail

	var counter ByteCounter
	if _, err := io.Copy(io.MultiWriter(tmp, &counter), in); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush data: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("failed to finalize file (rename): %w", err)
	}

	return counter.Count, nil
}
