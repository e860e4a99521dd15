package pipeline

import (
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// ShaderLoader returns compiled SPIR-V for a shader name.
type ShaderLoader interface {
	Load(name string) ([]uint32, error)
}

// FSLoader reads SPIR-V blobs from a file system. Root is only used to
// report where a missing shader was looked for.
type FSLoader struct {
	FS   fs.FS
	Root string
}

// DirLoader reads shaders from a directory on disk.
func DirLoader(dir string) FSLoader {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return FSLoader{FS: os.DirFS(dir), Root: abs}
}

func (l FSLoader) Load(name string) ([]uint32, error) {
	b, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "shader %s not found in %s", name, l.Root),
			gpu.ErrShaderLoad,
		)
	}
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Mark(
			errors.Newf("shader %s is %d bytes, not whole SPIR-V words", name, len(b)),
			gpu.ErrShaderLoad,
		)
	}
	return spirvWords(b), nil
}

// spirvWords reads b as little-endian 32-bit words. A trailing partial word
// is ignored; Load rejects such blobs before getting here.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, 0, len(b)/4)
	for ; len(b) >= 4; b = b[4:] {
		words = append(words, binary.LittleEndian.Uint32(b))
	}
	return words
}
