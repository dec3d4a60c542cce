package renderer

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseMSAASampleCount(t *testing.T) {
	for _, n := range []int{1, 4, 8, 16} {
		got, ok := ParseMSAASampleCount(n)
		assert.True(t, ok, "count %d", n)
		assert.Equal(t, MSAASampleCount(n), got)
	}
	for _, n := range []int{0, 2, 3, 32, -4} {
		got, ok := ParseMSAASampleCount(n)
		assert.False(t, ok, "count %d", n)
		assert.Equal(t, MSAAOff, got)
	}
}

func TestSampleCountFor(t *testing.T) {
	assert.Equal(t, uint32(4), sampleCountFor(pipeline.RenderTargetSurface, MSAA4x))
	assert.Equal(t, uint32(1), sampleCountFor(pipeline.RenderTargetSurface, MSAAOff))
	assert.Equal(t, uint32(1), sampleCountFor(pipeline.RenderTargetSceneColor, MSAA8x))
	assert.Equal(t, uint32(1), sampleCountFor(pipeline.RenderTargetParticleColor, MSAA4x))
	assert.Equal(t, uint32(1), sampleCountFor(pipeline.RenderTargetDepthOnly, MSAA16x))
}

func TestOrderedLayouts(t *testing.T) {
	layouts, err := orderedLayouts(map[int]wgpu.BindGroupLayoutDescriptor{
		1: {Label: "one"},
		0: {Label: "zero"},
	})
	require.NoError(t, err)
	require.Len(t, layouts, 2)
	assert.Equal(t, "zero", layouts[0].Label)
	assert.Equal(t, "one", layouts[1].Label)

	empty, err := orderedLayouts(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = orderedLayouts(map[int]wgpu.BindGroupLayoutDescriptor{0: {}, 2: {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind group 1 is not declared but group 2 is")
}

func TestBufferUsageFor(t *testing.T) {
	uniform := wgpu.BindGroupLayoutEntry{Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}}
	storage := wgpu.BindGroupLayoutEntry{Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}}
	readOnly := wgpu.BindGroupLayoutEntry{Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}}

	assert.Equal(t, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, bufferUsageFor(uniform))
	assert.Equal(t, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, bufferUsageFor(storage))
	assert.Equal(t, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, bufferUsageFor(readOnly))
	assert.Zero(t, bufferUsageFor(wgpu.BindGroupLayoutEntry{}))
}

func TestCheckPassCompatibility(t *testing.T) {
	particles := pipeline.NewPipeline("particles", pipeline.PipelineTypeRender,
		pipeline.WithTarget(pipeline.RenderTargetParticleColor),
		pipeline.WithDepthWriteEnabled(false),
	)
	composite := pipeline.NewPipeline("composite", pipeline.PipelineTypeRender,
		pipeline.WithDepthTestEnabled(false),
		pipeline.WithDepthWriteEnabled(false),
	)
	simulate := pipeline.NewPipeline("simulate", pipeline.PipelineTypeCompute)

	tests := []struct {
		name    string
		p       pipeline.Pipeline
		opts    RenderPassOptions
		wantErr string
	}{
		{
			name: "matching offscreen pass",
			p:    particles,
			opts: RenderPassOptions{Target: pipeline.RenderTargetParticleColor, UseDepth: true},
		},
		{
			name: "matching surface pass",
			p:    composite,
			opts: RenderPassOptions{Target: pipeline.RenderTargetSurface},
		},
		{
			name:    "wrong target",
			p:       particles,
			opts:    RenderPassOptions{Target: pipeline.RenderTargetSceneColor, UseDepth: true},
			wantErr: "targets particle_color but the open pass targets scene_color",
		},
		{
			name:    "missing depth",
			p:       particles,
			opts:    RenderPassOptions{Target: pipeline.RenderTargetParticleColor},
			wantErr: "depth usage",
		},
		{
			name:    "compute pipeline",
			p:       simulate,
			opts:    RenderPassOptions{Target: pipeline.RenderTargetSurface},
			wantErr: "not a render pipeline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkPassCompatibility(tt.p, tt.opts)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func newTestRenderer(options ...RendererBuilderOption) *renderer {
	r := &renderer{
		mu:            &sync.Mutex{},
		logger:        zap.NewNop(),
		pipelineCache: make(map[string]pipeline.Pipeline),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func TestRendererBuilderOptions(t *testing.T) {
	logger := zap.NewExample()
	p := pipeline.NewPipeline("mesh", pipeline.PipelineTypeRender)

	r := newTestRenderer(
		WithPipeline("mesh", p),
		WithPresentMode(PresentModeUncapped),
		WithMSAA(MSAAOff),
		WithForceSoftwareRenderer(true),
		WithShaderValidation(true),
		WithLogger(logger),
	)

	assert.Same(t, p, r.Pipeline("mesh"))
	require.NotNil(t, r.pendingPresentMode)
	assert.Equal(t, PresentModeUncapped, *r.pendingPresentMode)
	require.NotNil(t, r.pendingMSAA)
	assert.Equal(t, MSAAOff, *r.pendingMSAA)
	assert.True(t, r.forceFallbackAdapter)
	assert.True(t, r.validateShaders)
	assert.Same(t, logger, r.logger)

	kept := newTestRenderer(WithLogger(nil))
	assert.NotNil(t, kept.logger)
}

func TestRegisterPipelinesSkipsCachedKeys(t *testing.T) {
	cached := pipeline.NewPipeline("mesh", pipeline.PipelineTypeRender)
	r := newTestRenderer(WithPipeline("mesh", cached))

	// Same key with an invalid configuration: the cached pipeline wins before Validate runs.
	require.NoError(t, r.RegisterPipelines(pipeline.NewPipeline("mesh", pipeline.PipelineTypeRender)))
	assert.Same(t, cached, r.Pipeline("mesh"))
	assert.Len(t, r.Pipelines(), 1)
}

func TestRegisterPipelinesRejectsInvalid(t *testing.T) {
	r := newTestRenderer()
	err := r.RegisterPipelines(pipeline.NewPipeline("derive", pipeline.PipelineTypeCompute))
	require.Error(t, err)
	assert.Nil(t, r.Pipeline("derive"))
}

func TestKeyedCallsRequireRegisteredPipeline(t *testing.T) {
	r := newTestRenderer()

	assert.ErrorContains(t, r.DispatchCompute("simulate", nil, [3]uint32{1, 1, 1}), `"simulate" not found`)
	assert.ErrorContains(t, r.DispatchComputeIndirect("simulate", nil, nil, 0), "not found")
	assert.ErrorContains(t, r.DrawCall("mesh", nil, 1, nil), "not found")
	assert.ErrorContains(t, r.Draw("composite", 3, nil), "not found")
	assert.ErrorContains(t, r.DrawIndirect("particles", nil, 0, nil), "not found")
}

func TestBeginRenderPassWithoutDepthBuffer(t *testing.T) {
	// A frame is open but the targets are gone, as after a failed resize. The encoder is never touched.
	b := &wgpuRendererBackendImpl{
		mu:           &sync.Mutex{},
		offscreen:    make(map[pipeline.RenderTarget]*renderTarget),
		frameEncoder: &wgpu.CommandEncoder{},
	}

	for _, target := range []pipeline.RenderTarget{pipeline.RenderTargetDepthOnly, pipeline.RenderTargetParticleColor} {
		err := b.BeginRenderPass(RenderPassOptions{Target: target, UseDepth: true})
		assert.ErrorIs(t, err, ErrNoDepth, target)
	}
	assert.Nil(t, b.renderPass)

	b.frameEncoder = nil
	assert.ErrorIs(t, b.BeginRenderPass(RenderPassOptions{Target: pipeline.RenderTargetDepthOnly, UseDepth: true}), ErrNoFrame)
}
