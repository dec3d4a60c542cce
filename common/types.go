// Package common holds the math helpers, key codes and plain staging structs shared by the engine packages.
package common

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// TextureStagingData is a 2D texture waiting for upload by Renderer.InitTextureView.
type TextureStagingData struct {
	// Pixels holds tightly packed rows of 4 bytes per texel.
	Pixels []byte
	Width  uint32
	Height uint32
	// Format defaults to wgpu.TextureFormatRGBA8UnormSrgb. Data textures such as the dissolve noise use
	// wgpu.TextureFormatRGBA8Unorm so shaders read the stored values unchanged.
	Format wgpu.TextureFormat
}

// SamplerStagingData describes a sampler for Renderer.InitSampler.
// Zero address modes become repeat, a zero LodMaxClamp becomes 32 and a zero MaxAnisotropy becomes 1. Filter modes
// are passed through unchanged, so set them explicitly.
type SamplerStagingData struct {
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode

	MagFilter, MinFilter wgpu.FilterMode
	MipmapFilter         wgpu.MipmapFilterMode

	LodMinClamp, LodMaxClamp float32

	// Compare turns the sampler into a comparison sampler when set.
	Compare       wgpu.CompareFunction
	MaxAnisotropy uint16
}
