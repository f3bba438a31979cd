package builder

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Pack writes files (relative to root) as a tar+zstd archive into w.
// Entries keep their slash-separated relative paths.
func Pack(ctx context.Context, root string, files []string, w io.Writer) error {
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	tw := tar.NewWriter(encoder)

	for _, rel := range files {
		if err = ctx.Err(); err != nil {
			_ = tw.Close()
			_ = encoder.Close()

			return err
		}

		if err = addFile(tw, root, rel); err != nil {
			_ = tw.Close()
			_ = encoder.Close()

			return err
		}
	}

	if err = tw.Close(); err != nil {
		_ = encoder.Close()

		return fmt.Errorf("close tar: %w", err)
	}

	if err = encoder.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}

	return nil
}

func addFile(tw *tar.Writer, root, rel string) error {
	path := filepath.Join(root, filepath.FromSlash(rel))

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}

	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}

	header := &tar.Header{
		Name:    filepath.ToSlash(rel),
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC().Truncate(time.Second),
	}

	if err = tw.WriteHeader(header); err != nil {
		return fmt.Errorf("tar header %s: %w", rel, err)
	}

	if _, err = io.Copy(tw, file); err != nil {
		return fmt.Errorf("tar write %s: %w", rel, err)
	}

	return nil
}
