package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// DefaultQemuImg is the qemu-img binary looked up on PATH.
const DefaultQemuImg = "qemu-img"

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// QemuImg converts disk streams to qcow2 with qemu-img.
//
// The source stream is staged in a scratch directory, converted next to
// it, and the result is handed back as a reader whose Close removes the
// scratch directory.
type QemuImg struct {
	binary     string
	scratchDir string
	run        runFunc
}

// NewQemuImg returns a converter that runs binary (DefaultQemuImg when
// empty) and stages files under scratchDir (os.TempDir when empty).
func NewQemuImg(binary, scratchDir string) *QemuImg {
	if binary == "" {
		binary = DefaultQemuImg
	}
	return &QemuImg{binary: binary, scratchDir: scratchDir, run: runCommand}
}

// convertedDisk is a qcow2 file in a scratch directory.
type convertedDisk struct {
	*os.File
	dir string
}

// Close closes the file and removes its scratch directory.
func (c *convertedDisk) Close() error {
	err := c.File.Close()
	if rmErr := os.RemoveAll(c.dir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// Convert writes r to a scratch file, converts it from format to qcow2 and
// returns the qcow2 data with its length. Closing the reader removes the
// scratch files.
func (q *QemuImg) Convert(ctx context.Context, r io.Reader, format VolumeFormat) (io.ReadCloser, uint64, error) {
	dir, err := os.MkdirTemp(q.scratchDir, "vlab-convert-")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	disk, size, err := q.convertIn(ctx, dir, r, format)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, 0, err
	}
	return disk, size, nil
}

func (q *QemuImg) convertIn(ctx context.Context, dir string, r io.Reader, format VolumeFormat) (*convertedDisk, uint64, error) {
	src := filepath.Join(dir, "source."+string(format))
	dst := filepath.Join(dir, "disk.qcow2")

	f, err := os.Create(src)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create %s: %w", src, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stage disk: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to stage disk: %w", err)
	}

	output, err := q.run(ctx, q.binary, "convert", "-f", string(format), "-O", string(VolumeFormatQCOW2), src, dst)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to convert disk to qcow2: %w\nOutput: %s", err, string(output))
	}

	// The staged source can be large; drop it before the upload.
	if err := os.Remove(src); err != nil {
		return nil, 0, fmt.Errorf("failed to remove %s: %w", src, err)
	}

	out, err := os.Open(dst)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open converted disk: %w", err)
	}
	info, err := out.Stat()
	if err != nil {
		out.Close()
		return nil, 0, fmt.Errorf("failed to stat converted disk: %w", err)
	}

	return &convertedDisk{File: out, dir: dir}, uint64(info.Size()), nil
}
