package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"golang.org/x/sync/semaphore"
)

// extractWorkers bounds the number of concurrent blocking filesystem
// operations performed while unpacking an archive, so a large archive
// cannot monopolize every OS thread in the blocking pool.
const extractWorkers = 4

// Extract detects the container format of data and unpacks it under destRoot,
// writing entries one at a time in the calling goroutine. The
// caller is responsible for having already capped len(data) at
// MAX_ARCHIVE_BYTES. Returns errdefs.ErrInvalidArgument on any structural
// problem (the caller maps this to the single opaque InvalidArchive
// response); the concrete cause is only logged server-side.
func Extract(ctx context.Context, data []byte, destRoot string) error {
	switch DetectFormat(data) {
	case FormatTarGz:
		return extractTarGz(ctx, data, destRoot)
	case FormatZip:
		return extractZip(ctx, data, destRoot)
	default:
		return errdefs.ErrInvalidArgument(fmt.Errorf("unrecognized archive format"))
	}
}

func extractTarGz(ctx context.Context, data []byte, destRoot string) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return errdefs.ErrInvalidArgument(fmt.Errorf("open gzip stream: %w", err))
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	sem := semaphore.NewWeighted(extractWorkers)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errdefs.ErrInvalidArgument(fmt.Errorf("read tar entry: %w", err))
		}

		target, err := safeJoin(destRoot, hdr.Name)
		if err != nil {
			return errdefs.ErrInvalidArgument(err)
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0o755)
		case tar.TypeReg:
			err = writeRegularFile(target, tr, hdr.Size)
		default:
			// symlinks and other special types are skipped; tasks only
			// need plain files and directories.
		}
		sem.Release(1)

		if err != nil {
			return errdefs.ErrInvalidArgument(fmt.Errorf("unpack %s: %w", hdr.Name, err))
		}
	}
	return nil
}

func extractZip(ctx context.Context, data []byte, destRoot string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errdefs.ErrInvalidArgument(fmt.Errorf("open zip stream: %w", err))
	}

	sem := semaphore.NewWeighted(extractWorkers)

	for _, f := range zr.File {
		target, err := safeJoin(destRoot, f.Name)
		if err != nil {
			return errdefs.ErrInvalidArgument(err)
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}

		err = func() error {
			defer sem.Release(1)
			if f.FileInfo().IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			rc, err := f.Open()
			if err != nil {
				return err
			}
			defer rc.Close()
			return writeRegularFile(target, rc, int64(f.UncompressedSize64))
		}()

		if err != nil {
			return errdefs.ErrInvalidArgument(fmt.Errorf("unpack %s: %w", f.Name, err))
		}
	}
	return nil
}

// safeJoin resolves name against root and rejects any path that would
// escape root (zip-slip / tar path traversal).
func safeJoin(root, name string) (string, error) {
	cleanRoot := filepath.Clean(root)
	target := filepath.Join(cleanRoot, name)
	if !strings.HasPrefix(target, cleanRoot+string(os.PathSeparator)) && target != cleanRoot {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return target, nil
}

func writeRegularFile(target string, r io.Reader, size int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyN(f, r, size)
	if err == io.EOF {
		err = nil
	}
	return err
}
