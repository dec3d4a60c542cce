package bind_group_provider

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBindGroupProviderKeepsLabel(t *testing.T) {
	p := NewBindGroupProvider("simulate")
	assert.Equal(t, "simulate", p.Label())
	assert.Empty(t, p.Buffers())
	assert.Nil(t, p.BindGroup())
}

func TestSharedResources(t *testing.T) {
	cmd := &wgpu.Buffer{}
	view := &wgpu.TextureView{}
	sampler := &wgpu.Sampler{}

	p := NewBindGroupProvider("emission",
		WithSharedBuffers(map[int]*wgpu.Buffer{2: cmd}),
		WithSharedTextureView(4, view),
		WithSharedSampler(6, sampler),
	)

	assert.Same(t, cmd, p.Buffer(2))
	assert.Same(t, view, p.TextureView(4))
	assert.Same(t, sampler, p.Sampler(6))
	for _, b := range []int{2, 4, 6} {
		assert.True(t, p.Bound(b))
		assert.True(t, p.Shared(b))
	}
	assert.False(t, p.Bound(0))
	assert.False(t, p.Shared(0))
}

func TestSetAfterShareTakesOwnership(t *testing.T) {
	p := NewBindGroupProvider("x")
	p.ShareBuffer(1, &wgpu.Buffer{})
	require.True(t, p.Shared(1))

	p.SetBuffer(1, nil)
	assert.False(t, p.Shared(1))
	assert.False(t, p.Bound(1))
}

func TestUnbound(t *testing.T) {
	p := NewBindGroupProvider("composite",
		WithSharedTextureView(3, &wgpu.TextureView{}),
		WithSharedSampler(4, &wgpu.Sampler{}),
	)
	desc := wgpu.BindGroupLayoutDescriptor{Entries: []wgpu.BindGroupLayoutEntry{
		{Binding: 4}, {Binding: 1}, {Binding: 0}, {Binding: 3}, {Binding: 2},
	}}

	assert.Equal(t, []uint32{0, 1, 2}, p.Unbound(desc))
	assert.Empty(t, p.Unbound(wgpu.BindGroupLayoutDescriptor{}))
}

func TestReleaseForgetsSharedWithoutReleasing(t *testing.T) {
	p := NewBindGroupProvider("particles",
		WithSharedBuffers(map[int]*wgpu.Buffer{2: {}, 3: {}}),
		WithSharedTextureView(5, &wgpu.TextureView{}),
	)
	p.SetIndexCount(12)

	// The zero-value handles would crash if Release tried to free them.
	p.Release()

	assert.Empty(t, p.Buffers())
	assert.Empty(t, p.TextureViews())
	assert.False(t, p.Shared(2))
	assert.Zero(t, p.IndexCount())

	p.ReleaseBindGroup()
	assert.Nil(t, p.BindGroupLayout())
}
