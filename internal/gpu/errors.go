package gpu

import (
	"github.com/cockroachdb/errors"
)

// None of these conditions is retried: GPU resource failures are
// deterministic for fixed inputs.
var (
	// ErrResourceCreation marks a buffer, image, view, pipeline or other
	// handle the driver refused to create.
	ErrResourceCreation = errors.New("gpu resource creation failed")
	// ErrMemoryTypeNotFound marks a memory type search with no match.
	ErrMemoryTypeNotFound = errors.New("no suitable memory type")
	// ErrShaderLoad marks a shader blob that could not be loaded.
	ErrShaderLoad = errors.New("shader load failed")
	// ErrModelImport marks a mesh file the importer could not turn into a scene.
	ErrModelImport = errors.New("model import failed")
	// ErrUnsupportedLayoutTransition marks a programmer error: an image layout
	// transition pair that has no barrier recipe.
	ErrUnsupportedLayoutTransition = errors.New("unsupported image layout transition")
)

// CreationFailed wraps err with context and marks it as ErrResourceCreation.
func CreationFailed(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrResourceCreation)
}
