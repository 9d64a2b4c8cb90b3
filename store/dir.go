package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/digitorus/pdfreport"
)

// Dir resolves references as slash-separated paths below a root directory.
// References that would leave the root are treated as not found.
type Dir struct {
	Root string
}

// Fetch implements pdfreport.AttachmentSource.
func (d Dir) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, ok := d.resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", pdfreport.ErrAttachmentNotFound, ref)
	}

	data, err := os.ReadFile(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", pdfreport.ErrAttachmentNotFound, ref)
	case err != nil:
		return nil, fmt.Errorf("failed to read attachment %s: %w", ref, err)
	}
	return data, nil
}

func (d Dir) resolve(ref string) (string, bool) {
	ref = strings.ReplaceAll(ref, "\\", "/")
	clean := path.Clean("/" + ref)
	if clean == "/" || strings.Contains(ref, "\x00") {
		return "", false
	}
	if !fs.ValidPath(strings.TrimPrefix(clean, "/")) {
		return "", false
	}
	return filepath.Join(d.Root, filepath.FromSlash(clean)), true
}
