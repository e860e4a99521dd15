package model

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Mesh is one submesh. TexCoords is either empty or parallel to Positions,
// and Indices holds triangles as triples of indices into Positions.
type Mesh struct {
	Positions []mgl32.Vec3
	TexCoords []mgl32.Vec2
	Indices   []uint32
}

type Scene struct {
	Meshes []Mesh
}

// Importer turns a mesh file into a scene. A nil scene with a nil error
// means the file held no scene.
type Importer interface {
	Import(path string) (*Scene, error)
}

// ObjImporter reads Wavefront OBJ files, with the material library next to
// the mesh when one exists. Faces are triangulated as fans and texture V is
// flipped so that V=0 is the top row of the image.
type ObjImporter struct{}

func (ObjImporter) Import(path string) (*Scene, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open mesh %s", path)
	}
	defer meshFile.Close()

	var matReader io.Reader = strings.NewReader("")
	matFile, err := os.Open(strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl")
	if err == nil {
		defer matFile.Close()
		matReader = matFile
	}

	decoder, err := obj.DecodeReader(meshFile, matReader)
	if err != nil {
		return nil, errors.Wrapf(err, "decode mesh %s", path)
	}

	scene := &Scene{}
	for _, decodedObj := range decoder.Objects {
		mesh := meshFromObject(decoder, decodedObj)
		if len(mesh.Indices) > 0 {
			scene.Meshes = append(scene.Meshes, mesh)
		}
	}
	return scene, nil
}

type objCorner struct {
	vertex int
	uv     int
}

func meshFromObject(decoder *obj.Decoder, decodedObj obj.Object) Mesh {
	var mesh Mesh
	uniqueVertices := make(map[objCorner]uint32)

	addVertex := func(face obj.Face, faceIndex int) {
		corner := objCorner{vertex: face.Vertices[faceIndex], uv: -1}
		if faceIndex < len(face.Uvs) {
			corner.uv = face.Uvs[faceIndex]
		}

		index, exists := uniqueVertices[corner]
		if !exists {
			index = uint32(len(mesh.Positions))
			mesh.Positions = append(mesh.Positions, mgl32.Vec3{
				decoder.Vertices[corner.vertex*3],
				decoder.Vertices[corner.vertex*3+1],
				decoder.Vertices[corner.vertex*3+2],
			})
			uv := mgl32.Vec2{}
			if corner.uv >= 0 && corner.uv*2+1 < len(decoder.Uvs) {
				uv = mgl32.Vec2{decoder.Uvs[corner.uv*2], 1.0 - decoder.Uvs[corner.uv*2+1]}
			}
			mesh.TexCoords = append(mesh.TexCoords, uv)
			uniqueVertices[corner] = index
		}
		mesh.Indices = append(mesh.Indices, index)
	}

	for _, face := range decodedObj.Faces {
		for i := 2; i < len(face.Vertices); i++ {
			addVertex(face, 0)
			addVertex(face, i-1)
			addVertex(face, i)
		}
	}
	return mesh
}

// Combine flattens every submesh into one vertex array and one index array.
// Each submesh's indices are offset by the number of vertices before it.
func Combine(scene *Scene) ([]Vertex, []uint32, error) {
	vertexCount, indexCount := 0, 0
	for _, mesh := range scene.Meshes {
		vertexCount += len(mesh.Positions)
		indexCount += len(mesh.Indices)
	}

	vertices := make([]Vertex, 0, vertexCount)
	indices := make([]uint32, 0, indexCount)
	for m, mesh := range scene.Meshes {
		if len(mesh.Indices)%3 != 0 {
			return nil, nil, errors.Mark(errors.Newf("submesh %d has %d indices, not whole triangles", m, len(mesh.Indices)), gpu.ErrModelImport)
		}
		if len(mesh.TexCoords) != 0 && len(mesh.TexCoords) != len(mesh.Positions) {
			return nil, nil, errors.Mark(errors.Newf("submesh %d has %d texture coordinates for %d positions", m, len(mesh.TexCoords), len(mesh.Positions)), gpu.ErrModelImport)
		}

		base := uint32(len(vertices))
		for i, pos := range mesh.Positions {
			v := Vertex{Position: pos, Color: mgl32.Vec3{1, 1, 1}}
			if len(mesh.TexCoords) != 0 {
				v.TexCoord = mesh.TexCoords[i]
			}
			vertices = append(vertices, v)
		}
		for _, idx := range mesh.Indices {
			if int(idx) >= len(mesh.Positions) {
				return nil, nil, errors.Mark(errors.Newf("submesh %d index %d out of range of %d vertices", m, idx, len(mesh.Positions)), gpu.ErrModelImport)
			}
			indices = append(indices, base+idx)
		}
	}
	return vertices, indices, nil
}
