// Package shader provides the WGSL shader that samples a virtual texture
// through its indirection texture, and its uniform block layout.
package shader

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/naga"
	"github.com/gogpu/vtex"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/virtual_texture.wgsl
var virtualTextureWGSL string

// Entry points of the virtual texture shader.
const (
	VertexEntryPoint   = "vs_main"
	FragmentEntryPoint = "fs_main"
)

// Bind group 0 layout.
const (
	BindingParams       = 0 // uniform Params
	BindingIndirection  = 1 // texture_2d<u32>
	BindingCache        = 2 // texture_2d<f32>
	BindingCacheSampler = 3 // sampler
)

// UniformSize is the size of the Params uniform block in bytes.
const UniformSize = 32

// Source returns the WGSL source of the virtual texture shader.
func Source() string {
	return virtualTextureWGSL
}

// Compile compiles the shader to SPIR-V words.
func Compile() ([]uint32, error) {
	spirvBytes, err := naga.Compile(virtualTextureWGSL)
	if err != nil {
		return nil, fmt.Errorf("shader: compile virtual texture shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// CreateShaderModule compiles the shader and creates a HAL shader module.
func CreateShaderModule(device hal.Device, label string) (hal.ShaderModule, error) {
	spirv, err := Compile()
	if err != nil {
		return nil, err
	}
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
}

// Uniforms mirrors the shader's Params block.
type Uniforms struct {
	VirtualSize float32
	PageSize    float32
	CacheSize   float32
	Levels      uint32
	Offset      mgl32.Vec2
	Scale       mgl32.Vec2
}

// NewUniforms returns the uniforms for drawing texture id of an engine.
func NewUniforms(e *vtex.Engine, id int) (Uniforms, bool) {
	p, ok := e.TextureParams(id)
	if !ok {
		return Uniforms{}, false
	}
	cfg := e.Config()
	return Uniforms{
		VirtualSize: float32(cfg.VirtualSize),
		PageSize:    float32(cfg.PageSize),
		CacheSize:   float32(e.CacheSide() * cfg.PageSize),
		Levels:      uint32(e.Indirection().Levels()), //nolint:gosec // G115: at most 32 levels
		Offset:      p.Offset,
		Scale:       p.Scale,
	}, true
}

// Bytes encodes the uniforms in std140 layout for a uniform buffer upload.
func (u Uniforms) Bytes() []byte {
	buf := make([]byte, UniformSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], math.Float32bits(u.VirtualSize))
	le.PutUint32(buf[4:], math.Float32bits(u.PageSize))
	le.PutUint32(buf[8:], math.Float32bits(u.CacheSize))
	le.PutUint32(buf[12:], u.Levels)
	le.PutUint32(buf[16:], math.Float32bits(u.Offset.X()))
	le.PutUint32(buf[20:], math.Float32bits(u.Offset.Y()))
	le.PutUint32(buf[24:], math.Float32bits(u.Scale.X()))
	le.PutUint32(buf[28:], math.Float32bits(u.Scale.Y()))
	return buf
}
