/*
Copyright 2025 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pso_test

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goarrg.com/rhi/pso"
)

func TestComputeFingerprintsDeterministic(t *testing.T) {
	in := pso.FingerprintInput{
		BindPoint:     pso.BindPointGraphics,
		Stages:        []uint64{1, 2},
		States:        []uint64{3, 0, 0, 4, 5, 6, 0, 7},
		DynamicStates: []pso.DynamicState{pso.DynamicStateScissor, pso.DynamicStateViewport},
		Layout:        9,
	}
	a := pso.ComputeFingerprints(in)
	b := pso.ComputeFingerprints(in)
	assert.Equal(t, a, b)
	assert.NotZero(t, a.Fingerprint)
	assert.NotEqual(t, a.Fingerprint, a.State)
}

func TestComputeFingerprintsIgnoresNonSemanticFlags(t *testing.T) {
	base := pso.FingerprintInput{BindPoint: pso.BindPointCompute, Stages: []uint64{42}, Layout: 7}
	want := pso.ComputeFingerprints(base)

	for _, f := range []pso.PipelineCreateFlags{
		pso.PipelineCreateDisableOptimization,
		pso.PipelineCreateAllowDerivatives,
		pso.PipelineCreateDerivative,
		pso.PipelineCreateDisableOptimization | pso.PipelineCreateAllowDerivatives | pso.PipelineCreateDerivative,
	} {
		in := base
		in.Flags = f
		assert.Equal(t, want, pso.ComputeFingerprints(in), f.String())
	}

	in := base
	in.Flags = pso.PipelineCreateDispatchBase
	assert.NotEqual(t, want.Fingerprint, pso.ComputeFingerprints(in).Fingerprint)
}

func TestComputeFingerprintsOrderAndPresence(t *testing.T) {
	base := pso.FingerprintInput{
		Stages: []uint64{1, 2},
		States: []uint64{1, 2, 3, 4, 5, 6, 7, 8},
	}
	want := pso.ComputeFingerprints(base)

	swapped := base
	swapped.Stages = []uint64{2, 1}
	got := pso.ComputeFingerprints(swapped)
	assert.NotEqual(t, want.Fingerprint, got.Fingerprint, "stage order is significant")
	assert.Equal(t, want.State, got.State)

	dyn := base
	dyn.DynamicStates = []pso.DynamicState{pso.DynamicStateViewport, pso.DynamicStateScissor}
	dynReordered := base
	dynReordered.DynamicStates = []pso.DynamicState{pso.DynamicStateScissor, pso.DynamicStateViewport, pso.DynamicStateScissor}
	assert.Equal(t, pso.ComputeFingerprints(dyn), pso.ComputeFingerprints(dynReordered))
	assert.NotEqual(t, want.State, pso.ComputeFingerprints(dyn).State)

	rt := base
	rt.HasRenderTarget = true
	assert.NotEqual(t, want.Fingerprint, pso.ComputeFingerprints(rt).Fingerprint, "present zero render target differs from absent")
	assert.Equal(t, want.State, pso.ComputeFingerprints(rt).State)

	ext := base
	ext.HasExtensions = true
	ext.Extensions = 5
	assert.NotEqual(t, want.Fingerprint, pso.ComputeFingerprints(ext).Fingerprint)
}

func TestShaderStageHash(t *testing.T) {
	a := stage(pso.ShaderStageVertex, module("a", 10), "main")
	sameCode := stage(pso.ShaderStageVertex, module("renamed", 10), "main")
	otherEntry := stage(pso.ShaderStageVertex, module("a", 10), "main2")
	otherCode := stage(pso.ShaderStageVertex, module("a", 11), "main")

	assert.Equal(t, a.Hash(), sameCode.Hash(), "module name is not content")
	assert.NotEqual(t, a.Hash(), otherEntry.Hash())
	assert.NotEqual(t, a.Hash(), otherCode.Hash())

	spec := a
	spec.Specialization = &pso.SpecializationInfo{
		MapEntries: []pso.SpecializationMapEntry{{ConstantID: 0, Offset: 0, Size: 4}},
		Data:       []byte{1, 0, 0, 0},
	}
	assert.NotEqual(t, a.Hash(), spec.Hash())

	spec2 := a
	spec2.Specialization = &pso.SpecializationInfo{
		MapEntries: []pso.SpecializationMapEntry{{ConstantID: 0, Offset: 0, Size: 4}},
		Data:       []byte{2, 0, 0, 0},
	}
	assert.NotEqual(t, spec.Hash(), spec2.Hash())
}

func TestStateBlockHashes(t *testing.T) {
	a := &pso.RasterizationState{CullMode: gputypes.CullModeNone, LineWidth: 1}
	b := &pso.RasterizationState{CullMode: gputypes.CullModeNone, LineWidth: 1}
	assert.Equal(t, a.Hash(), b.Hash())
	b.DepthBias.Enable = true
	assert.NotEqual(t, a.Hash(), b.Hash())

	premul := gputypes.BlendStatePremultiplied()
	opaque := &pso.ColorBlendState{Attachments: []pso.ColorBlendAttachment{{WriteMask: gputypes.ColorWriteMaskAll}}}
	blended := &pso.ColorBlendState{Attachments: []pso.ColorBlendAttachment{{Blend: &premul, WriteMask: gputypes.ColorWriteMaskAll}}}
	assert.NotEqual(t, opaque.Hash(), blended.Hash())

	v1 := &pso.ViewportState{Viewports: []pso.Viewport{{Width: 1}}}
	v2 := &pso.ViewportState{Viewports: []pso.Viewport{{Width: 1}, {}}}
	assert.NotEqual(t, v1.Hash(), v2.Hash())
}

func TestGraphicsFingerprintSplit(t *testing.T) {
	d, _ := newDevice(t, pso.Features{})
	b := d.NewGraphicsBatch()

	base := graphicsInfo("base")

	otherShader := graphicsInfo("other_shader")
	otherShader.Stages[1].Module = module("fs2", 99)

	otherState := graphicsInfo("other_state")
	otherState.Rasterization = &pso.RasterizationState{CullMode: gputypes.CullModeBack, LineWidth: 1}

	flagsOnly := graphicsInfo("flags_only")
	flagsOnly.Flags = pso.PipelineCreateDisableOptimization | pso.PipelineCreateAllowDerivatives

	otherLabel := graphicsInfo("a different label")

	addAll(t, b, base, otherShader, otherState, flagsOnly, otherLabel)

	f := func(i int) pso.Fingerprints { return b.Fingerprints(i) }
	assert.NotEqual(t, f(0).Fingerprint, f(1).Fingerprint)
	assert.Equal(t, f(0).State, f(1).State, "shaders do not change the state fingerprint")

	assert.NotEqual(t, f(0).Fingerprint, f(2).Fingerprint)
	assert.NotEqual(t, f(0).State, f(2).State)

	assert.Equal(t, f(0), f(3))
	assert.Equal(t, f(0), f(4), "labels are not part of the fingerprint")

	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestSingleAndBatchFingerprintsAgree(t *testing.T) {
	d, _ := newDevice(t, pso.Features{})

	p, err := d.NewGraphicsPipeline(graphicsInfo("single"), pso.CreateOptions{})
	require.NoError(t, err)
	defer p.Destroy()

	b := d.NewGraphicsBatch()
	addAll(t, b, graphicsInfo("batched"))
	assert.Equal(t, p.Fingerprints(), b.Fingerprints(0))
	b.Reset()
}
