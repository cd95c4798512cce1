package cli

import "errors"

// CLI-specific sentinel errors.
// These are configuration and file errors that don't belong to domain packages.

var (
	// ErrAPIKeyMissing indicates no API key was given by flag or environment.
	ErrAPIKeyMissing = errors.New("OpenAI API key not set")

	// ErrInvalidModel indicates an empty or malformed model name.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrInvalidSetting indicates an out-of-range flag or environment value.
	ErrInvalidSetting = errors.New("invalid setting")

	// ErrFileNotFound indicates the specified input file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrOutputExists indicates the output file already exists.
	ErrOutputExists = errors.New("output file already exists")

	// ErrFileIO indicates the input could not be read or the output could not be written.
	ErrFileIO = errors.New("file I/O failed")
)
