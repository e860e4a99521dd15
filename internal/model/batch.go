// Package model loads meshes into device-local vertex and index buffers and
// draws them in load order.
package model

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/transfer"
)

// Model is immutable once loaded.
type Model struct {
	Name string

	VertexBuffer *memory.Buffer
	VertexCount  int
	IndexBuffer  *memory.Buffer
	IndexCount   int
}

func (m *Model) destroy() {
	m.IndexBuffer.Destroy()
	m.VertexBuffer.Destroy()
}

// Batch is an append-only list of models drawn in the order they were
// loaded.
type Batch struct {
	importer Importer
	transfer *transfer.Pipeline
	logger   *slog.Logger

	models []*Model
}

func NewBatch(importer Importer, pipe *transfer.Pipeline, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{importer: importer, transfer: pipe, logger: logger}
}

// Load imports the mesh at path, uploads its combined vertices and indices
// and appends it under name. It blocks until both uploads complete.
func (b *Batch) Load(name, path string) (err error) {
	scene, err := b.importer.Import(path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "import model %q", name), gpu.ErrModelImport)
	}
	if scene == nil {
		return errors.Mark(errors.Newf("model %q: no scene in %s", name, path), gpu.ErrModelImport)
	}

	vertices, indices, err := Combine(scene)
	if err != nil {
		return errors.Wrapf(err, "model %q", name)
	}
	if len(vertices) == 0 || len(indices) == 0 {
		return errors.Mark(errors.Newf("model %q: no geometry in %s", name, path), gpu.ErrModelImport)
	}

	vertexData, err := transfer.Encode(vertices)
	if err != nil {
		return err
	}
	indexData, err := transfer.Encode(indices)
	if err != nil {
		return err
	}

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)

	vertexBuffer, err := b.transfer.Upload(vertexData, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrapf(err, "model %q vertex buffer", name)
	}
	scope.Add(vertexBuffer.Destroy)

	indexBuffer, err := b.transfer.Upload(indexData, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrapf(err, "model %q index buffer", name)
	}

	b.models = append(b.models, &Model{
		Name:         name,
		VertexBuffer: vertexBuffer,
		VertexCount:  len(vertices),
		IndexBuffer:  indexBuffer,
		IndexCount:   len(indices),
	})

	b.logger.Info("loaded model",
		slog.String("Name", name),
		slog.String("Path", path),
		slog.Int("Vertices", len(vertices)),
		slog.Int("Indices", len(indices)),
	)
	return nil
}

func (b *Batch) Len() int {
	return len(b.models)
}

// Models returns the loaded models in load order.
func (b *Batch) Models() []*Model {
	return append([]*Model(nil), b.models...)
}

// RenderAll records one vertex bind, index bind and indexed draw per model,
// in load order, into a command buffer inside a render pass.
func (b *Batch) RenderAll(cb gpu.CommandBuffer) {
	for _, m := range b.models {
		cb.CmdBindVertexBuffer(m.VertexBuffer.Buffer)
		cb.CmdBindIndexBuffer(m.IndexBuffer.Buffer, core1_0.IndexTypeUInt32)
		cb.CmdDrawIndexed(m.IndexCount)
	}
}

// UnloadAll destroys every model's buffers and empties the batch. It is a
// no-op on an empty batch.
func (b *Batch) UnloadAll() {
	for _, m := range b.models {
		m.destroy()
	}
	b.models = nil
}
