package model

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/gputest"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/transfer"
)

type fakeImporter struct {
	scenes map[string]*Scene
	err    error
}

func (f *fakeImporter) Import(path string) (*Scene, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scenes[path], nil
}

func gridMesh(vertexCount, faceCount int) Mesh {
	mesh := Mesh{}
	for i := 0; i < vertexCount; i++ {
		mesh.Positions = append(mesh.Positions, mgl32.Vec3{float32(i), 0, 0})
		mesh.TexCoords = append(mesh.TexCoords, mgl32.Vec2{0, 1})
	}
	for f := 0; f < faceCount; f++ {
		mesh.Indices = append(mesh.Indices,
			uint32(f%vertexCount), uint32((f+1)%vertexCount), uint32((f+2)%vertexCount))
	}
	return mesh
}

type fixture struct {
	dev   *gputest.Device
	batch *Batch
	imp   *fakeImporter
}

func newFixture() *fixture {
	dev := gputest.NewDevice()
	pipe := transfer.New(memory.NewAllocator(dev, nil), gputest.NewCommandPool(dev), gputest.NewQueue(dev), nil)
	imp := &fakeImporter{scenes: map[string]*Scene{}}
	return &fixture{dev: dev, batch: NewBatch(imp, pipe, nil), imp: imp}
}

func TestVertexLayout(t *testing.T) {
	require.Equal(t, 32, VertexSize)

	attrs := AttributeDescriptions()
	require.Len(t, attrs, 3)
	assert.Equal(t, 0, attrs[0].Offset)
	assert.Equal(t, 12, attrs[1].Offset)
	assert.Equal(t, 24, attrs[2].Offset)
	assert.Equal(t, core1_0.FormatR32G32SignedFloat, attrs[2].Format)
	assert.Equal(t, VertexSize, BindingDescriptions()[0].Stride)
	assert.Equal(t, core1_0.RateVertex, BindingDescriptions()[0].InputRate)
}

func TestLoadThousandVerticesThousandFaces(t *testing.T) {
	f := newFixture()
	f.imp.scenes["mesh.obj"] = &Scene{Meshes: []Mesh{gridMesh(1000, 1000)}}

	require.NoError(t, f.batch.Load("Mesh", "mesh.obj"))
	require.Equal(t, 1, f.batch.Len())

	m := f.batch.Models()[0]
	assert.Equal(t, "Mesh", m.Name)
	assert.Equal(t, 1000, m.VertexCount)
	assert.Equal(t, 3000, m.IndexCount)
	assert.Equal(t, 1000*VertexSize, m.VertexBuffer.Size)
	assert.Equal(t, 3000*IndexSize, m.IndexBuffer.Size)

	indexBytes := m.IndexBuffer.Buffer.(*gputest.Buffer).Contents()
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(indexBytes[8:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(indexBytes[3*IndexSize*999+4:]))

	f.batch.UnloadAll()
	require.Empty(t, f.dev.LiveTotal())
}

func TestRenderAllInLoadOrder(t *testing.T) {
	f := newFixture()
	f.imp.scenes["a.obj"] = &Scene{Meshes: []Mesh{gridMesh(3, 1)}}
	f.imp.scenes["b.obj"] = &Scene{Meshes: []Mesh{gridMesh(4, 2)}}
	require.NoError(t, f.batch.Load("A", "a.obj"))
	require.NoError(t, f.batch.Load("B", "b.obj"))

	cb, err := gputest.NewCommandPool(f.dev).AllocateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin(false))
	f.batch.RenderAll(cb)
	require.NoError(t, cb.End())

	fake := cb.(*gputest.CommandBuffer)
	require.Equal(t, []string{
		"BindVertexBuffer", "BindIndexBuffer", "DrawIndexed",
		"BindVertexBuffer", "BindIndexBuffer", "DrawIndexed",
	}, fake.Names())

	models := f.batch.Models()
	assert.Same(t, models[0].VertexBuffer.Buffer, fake.Commands[0].Src)
	assert.Equal(t, core1_0.IndexTypeUInt32, fake.Commands[1].IndexType)
	assert.Equal(t, 3, fake.Commands[2].IndexCount)
	assert.Same(t, models[1].VertexBuffer.Buffer, fake.Commands[3].Src)
	assert.Equal(t, 6, fake.Commands[5].IndexCount)
}

func TestUnloadAllIdempotent(t *testing.T) {
	f := newFixture()
	f.batch.UnloadAll()

	f.imp.scenes["a.obj"] = &Scene{Meshes: []Mesh{gridMesh(3, 1)}}
	require.NoError(t, f.batch.Load("A", "a.obj"))
	f.batch.UnloadAll()
	f.batch.UnloadAll()

	require.Zero(t, f.batch.Len())
	require.Empty(t, f.dev.LiveTotal())
	require.Empty(t, f.dev.Violations())
}

func TestLoadFailures(t *testing.T) {
	f := newFixture()

	err := f.batch.Load("Missing", "missing.obj")
	require.True(t, errors.Is(err, gpu.ErrModelImport))

	f.imp.scenes["empty.obj"] = &Scene{}
	err = f.batch.Load("Empty", "empty.obj")
	require.True(t, errors.Is(err, gpu.ErrModelImport))

	f.imp.err = errors.New("corrupt")
	err = f.batch.Load("Bad", "bad.obj")
	require.True(t, errors.Is(err, gpu.ErrModelImport))

	require.Zero(t, f.batch.Len())
	require.Empty(t, f.dev.LiveTotal())
}

func TestLoadIndexUploadFailureReleasesVertices(t *testing.T) {
	f := newFixture()
	f.imp.scenes["a.obj"] = &Scene{Meshes: []Mesh{gridMesh(3, 1)}}

	// Each upload creates a staging buffer then the destination buffer.
	f.dev.Fail("CreateBuffer", 3)
	require.Error(t, f.batch.Load("A", "a.obj"))
	require.Zero(t, f.batch.Len())
	require.Empty(t, f.dev.LiveTotal())
}

func TestCombineRebasesSubmeshes(t *testing.T) {
	scene := &Scene{Meshes: []Mesh{
		{Positions: make([]mgl32.Vec3, 3), Indices: []uint32{0, 1, 2}},
		{Positions: make([]mgl32.Vec3, 4), Indices: []uint32{0, 1, 2, 2, 3, 0}},
	}}
	vertices, indices, err := Combine(scene)
	require.NoError(t, err)
	require.Len(t, vertices, 7)
	require.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 5, 6, 3}, indices)
	require.Equal(t, mgl32.Vec3{1, 1, 1}, vertices[0].Color)
}

func TestCombineRejectsBadIndices(t *testing.T) {
	_, _, err := Combine(&Scene{Meshes: []Mesh{{Positions: make([]mgl32.Vec3, 2), Indices: []uint32{0, 1, 2}}}})
	require.True(t, errors.Is(err, gpu.ErrModelImport))

	_, _, err = Combine(&Scene{Meshes: []Mesh{{Positions: make([]mgl32.Vec3, 3), Indices: []uint32{0, 1}}}})
	require.True(t, errors.Is(err, gpu.ErrModelImport))
}

const quadObj = `o Quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
f 1/1 2/2 3/3 4/4
`

func TestObjImporterTriangulatesQuad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.obj")
	require.NoError(t, os.WriteFile(path, []byte(quadObj), 0o644))

	scene, err := ObjImporter{}.Import(path)
	require.NoError(t, err)
	require.Len(t, scene.Meshes, 1)

	mesh := scene.Meshes[0]
	require.Len(t, mesh.Positions, 4)
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
	assert.Equal(t, mgl32.Vec3{1, 1, 0}, mesh.Positions[2])
	assert.Equal(t, mgl32.Vec2{0, 1}, mesh.TexCoords[0])
	assert.Equal(t, mgl32.Vec2{1, 0}, mesh.TexCoords[2])
}

func TestObjImporterMissingFile(t *testing.T) {
	_, err := ObjImporter{}.Import(filepath.Join(t.TempDir(), "nope.obj"))
	require.Error(t, err)
}
