package model

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/core1_0"
)

// Vertex is the per-vertex record the vertex shader reads: 32 bytes with
// position at 0, colour at 12 and texture coordinate at 24.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

const VertexSize = int(unsafe.Sizeof(Vertex{}))

// IndexSize is the size of one index; every index buffer holds uint32s.
const IndexSize = 4

func BindingDescriptions() []core1_0.VertexInputBindingDescription {
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    VertexSize,
			InputRate: core1_0.RateVertex,
		},
	}
}

func AttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}
