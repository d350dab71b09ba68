package source

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
)

// Load reads a source unit from a local path or any URL afs understands.
//
// The descriptor name is the base name of the URL. Loaded units are never
// marked internal.
func Load(ctx context.Context, url string) (Descriptor, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, url)
	if err != nil {
		return Descriptor{}, fmt.Errorf("source: load %s: %w", url, err)
	}
	return Descriptor{
		Name: path.Base(strings.TrimSuffix(url, "/")),
		Path: url,
		Text: string(data),
	}, nil
}
