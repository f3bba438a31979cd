package builder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LibrariesFilename lists Arduino libraries the server must install, one per line.
const LibrariesFilename = "libraries.txt"

// ReadLibraries returns the non-empty, non-comment lines of libraries.txt in root.
// A missing file yields no libraries.
func ReadLibraries(root string) ([]string, error) {
	file, err := os.Open(filepath.Join(root, LibrariesFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("open %s: %w", LibrariesFilename, err)
	}

	defer func() {
		_ = file.Close()
	}()

	var libs []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		libs = append(libs, line)
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", LibrariesFilename, err)
	}

	return libs, nil
}
