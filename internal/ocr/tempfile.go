package ocr

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docintake/constants"
)

// spill writes data into a fresh temp dir so the CLI tools can read it.
// Call cleanup to remove the directory.
func spill(data []byte, mime string) (dir, path string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "docintake-ocr-*")
	if err != nil {
		return "", "", nil, err
	}
	cleanup = func() { _ = os.RemoveAll(dir) }
	ext := constants.ExtForMIME(mime)
	if ext == "" {
		ext = ".bin"
	}
	path = filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("write temp input: %w", err)
	}
	return dir, path, cleanup, nil
}
