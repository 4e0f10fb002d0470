package loader

import (
	"io/fs"
	"os"
	"slices"

	"github.com/yalue/merged_fs"

	gwfs "github.com/gatewaykit/gwbundle/internal/fs"
)

// SourceFS overlays the given source roots, later roots taking precedence
// over earlier ones, and hides the files matching excludedFiles.
func SourceFS(roots []string, excludedFiles []string) (fs.FS, error) {
	layers := make([]fs.FS, 0, len(roots))
	for _, root := range slices.Backward(roots) {
		layers = append(layers, os.DirFS(root))
	}

	var fsys fs.FS
	switch len(layers) {
	case 0:
		fsys = merged_fs.MergeMultiple()
	case 1:
		fsys = layers[0]
	default:
		fsys = merged_fs.MergeMultiple(layers...)
	}

	return gwfs.NewFilterFS(fsys, nil, excludedFiles)
}
