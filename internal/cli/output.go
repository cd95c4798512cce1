package cli

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// partialSuffix is appended to the output path when a run stops early.
const partialSuffix = ".partial"

// partialPath returns where the successful prefix of a failed run is written.
func partialPath(output string) string {
	return output + partialSuffix
}

// readInput reads the whole transcript. Invalid UTF-8 is rejected so that
// chunk sizes measured in characters stay meaningful.
func readInput(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-specified input file
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("cannot read input file: %v: %w", err, ErrFileIO)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("input file is not valid UTF-8: %s: %w", path, ErrFileIO)
	}
	return string(data), nil
}

// checkOutput fails fast when path exists and overwriting is not allowed.
func checkOutput(path string, force bool) error {
	if force {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w (use --force to overwrite)", path, ErrOutputExists)
	}
	return nil
}

// writeFileAtomic writes content to path.
// Without force it fails if the file already exists (O_EXCL), preventing
// accidental overwrites. On write failure, the partial file is removed.
func writeFileAtomic(path, content string, force bool) error {
	flags := os.O_CREATE | os.O_WRONLY
	if force {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}

	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w (use --force to overwrite)", path, ErrOutputExists)
		}
		return fmt.Errorf("cannot create output file: %v: %w", err, ErrFileIO)
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		if _, err := f.WriteString(content); err != nil {
			return fmt.Errorf("failed to write output: %v: %w", err, ErrFileIO)
		}
		return nil
	}()

	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}

	return nil
}
