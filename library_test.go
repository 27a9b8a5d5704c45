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
	"goarrg.com/rhi/pso/psotest"
)

func fragmentInfos() map[pso.LibrarySubset]pso.LibraryFragmentCreateInfo {
	return map[pso.LibrarySubset]pso.LibraryFragmentCreateInfo{
		pso.LibrarySubsetVertexInputInterface: {
			Label:         "vertex_input",
			InputAssembly: &pso.InputAssemblyState{Topology: gputypes.PrimitiveTopologyTriangleList},
		},
		pso.LibrarySubsetPreRasterizationShaders: {
			Label:         "pre_rasterization",
			Stages:        []pso.ShaderStageInfo{stage(pso.ShaderStageVertex, vertexModule, "vs_main")},
			Rasterization: &pso.RasterizationState{CullMode: gputypes.CullModeBack, LineWidth: 1},
		},
		pso.LibrarySubsetFragmentShader: {
			Label:       "fragment_shader",
			Stages:      []pso.ShaderStageInfo{stage(pso.ShaderStageFragment, fragmentModule, "fs_main")},
			Multisample: &pso.MultisampleState{MultisampleState: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF}},
		},
		pso.LibrarySubsetFragmentOutputInterface: {
			Label:        "fragment_output",
			ColorBlend:   &pso.ColorBlendState{Attachments: []pso.ColorBlendAttachment{{WriteMask: gputypes.ColorWriteMaskAll}}},
			RenderTarget: &pso.RenderTargetInfo{ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm}},
		},
	}
}

var subsetOrder = []pso.LibrarySubset{
	pso.LibrarySubsetVertexInputInterface,
	pso.LibrarySubsetPreRasterizationShaders,
	pso.LibrarySubsetFragmentShader,
	pso.LibrarySubsetFragmentOutputInterface,
}

func newLibrary(t *testing.T, d *pso.Device, subsets ...pso.LibrarySubset) (*pso.PipelineLibrary, []*pso.LibraryFragment) {
	t.Helper()
	l, err := d.NewPipelineLibrary("lib")
	require.NoError(t, err)
	infos := fragmentInfos()
	fragments := make([]*pso.LibraryFragment, len(subsets))
	for i, s := range subsets {
		fragments[i], err = l.CompileFragment(s, infos[s], pso.CreateOptions{})
		require.NoError(t, err, s.String())
		assert.Equal(t, s, fragments[i].Subset())
	}
	return l, fragments
}

func TestLibraryFragmentStageValidation(t *testing.T) {
	d, drv := newDevice(t, allFeatures)
	l, err := d.NewPipelineLibrary("lib")
	require.NoError(t, err)
	defer l.Destroy()

	vertex := stage(pso.ShaderStageVertex, vertexModule, "vs_main")
	fragment := stage(pso.ShaderStageFragment, fragmentModule, "fs_main")

	for _, tc := range []struct {
		name   string
		subset pso.LibrarySubset
		edit   func(*pso.LibraryFragmentCreateInfo)
	}{
		{"vertex stage in fragment shader", pso.LibrarySubsetFragmentShader, func(i *pso.LibraryFragmentCreateInfo) {
			i.Stages = []pso.ShaderStageInfo{vertex}
		}},
		{"fragment stage in pre rasterization", pso.LibrarySubsetPreRasterizationShaders, func(i *pso.LibraryFragmentCreateInfo) {
			i.Stages = append(i.Stages, fragment)
		}},
		{"stages in vertex input", pso.LibrarySubsetVertexInputInterface, func(i *pso.LibraryFragmentCreateInfo) {
			i.Stages = []pso.ShaderStageInfo{vertex}
		}},
		{"stages in fragment output", pso.LibrarySubsetFragmentOutputInterface, func(i *pso.LibraryFragmentCreateInfo) {
			i.Stages = []pso.ShaderStageInfo{fragment}
		}},
		{"compute stage", pso.LibrarySubsetPreRasterizationShaders, func(i *pso.LibraryFragmentCreateInfo) {
			i.Stages = []pso.ShaderStageInfo{stage(pso.ShaderStageCompute, computeModule, "cs_main")}
		}},
		{"color blend in pre rasterization", pso.LibrarySubsetPreRasterizationShaders, func(i *pso.LibraryFragmentCreateInfo) {
			i.ColorBlend = &pso.ColorBlendState{}
		}},
		{"layout in vertex input", pso.LibrarySubsetVertexInputInterface, func(i *pso.LibraryFragmentCreateInfo) {
			i.Layout = &pso.PipelineLayout{}
		}},
		{"missing rasterization", pso.LibrarySubsetPreRasterizationShaders, func(i *pso.LibraryFragmentCreateInfo) {
			i.Rasterization = nil
		}},
		{"missing fragment stage", pso.LibrarySubsetFragmentShader, func(i *pso.LibraryFragmentCreateInfo) {
			i.Stages = nil
		}},
		{"empty vertex input", pso.LibrarySubsetVertexInputInterface, func(i *pso.LibraryFragmentCreateInfo) {
			i.InputAssembly = nil
		}},
		{"unknown subset", pso.LibrarySubset(42), func(*pso.LibraryFragmentCreateInfo) {}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			info := fragmentInfos()[tc.subset]
			tc.edit(&info)
			f, err := l.CompileFragment(tc.subset, info, pso.CreateOptions{})
			assert.Nil(t, f)
			require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
			assert.Zero(t, drv.Calls().Library, "nothing reaches the driver")
		})
	}
	assert.Empty(t, l.Fragments())
}

func TestLibraryLinkAllSubsets(t *testing.T) {
	d, drv := newDevice(t, allFeatures)
	l, fragments := newLibrary(t, d, subsetOrder...)
	assert.Equal(t, 4, drv.Calls().Library)
	assert.Equal(t, fragments, l.Fragments())

	seen := map[uint64]bool{}
	for _, f := range fragments {
		assert.NotZero(t, f.Handle())
		assert.False(t, seen[f.Fingerprints().Fingerprint], "fragment fingerprints are distinct")
		seen[f.Fingerprints().Fingerprint] = true
	}

	info := pso.GraphicsPipelineCreateInfo{
		PipelineCreateInfo: pso.PipelineCreateInfo{
			Label:      "linked",
			Extensions: pso.PipelineExtensions{Libraries: []*pso.LibraryFragment{fragments[3], fragments[1], fragments[0], fragments[2]}},
		},
	}
	drv.OnGraphics = func(requests []pso.GraphicsPipelineRequest) {
		assert.ElementsMatch(t, []pso.PipelineHandle{
			fragments[0].Handle(), fragments[1].Handle(), fragments[2].Handle(), fragments[3].Handle(),
		}, requests[0].Extensions.Libraries)
		assert.Empty(t, requests[0].Stages)
	}
	p, err := d.NewGraphicsPipeline(info, pso.CreateOptions{})
	require.NoError(t, err)
	assert.Len(t, p.Links(), 4)

	reordered := info
	reordered.Extensions.Libraries = []*pso.LibraryFragment{fragments[0], fragments[1], fragments[2], fragments[3]}
	b := d.NewGraphicsBatch()
	addAll(t, b, reordered)
	assert.Equal(t, p.Fingerprints(), b.Fingerprints(0), "link order does not change the fingerprint")
	b.Reset()

	p.Destroy()
	l.Destroy()
	assert.Empty(t, drv.Live(), "destroying the library releases every fragment")
	assert.Equal(t, 1, drv.LiveLayouts())

	_, err = d.NewGraphicsPipeline(info, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{}, "fragments of a destroyed library can not be linked")
}

func TestLibraryLinkedFragmentChangesFingerprint(t *testing.T) {
	d, _ := newDevice(t, allFeatures)
	l, fragments := newLibrary(t, d, subsetOrder...)
	defer l.Destroy()

	other := fragmentInfos()[pso.LibrarySubsetFragmentOutputInterface]
	other.ColorBlend.BlendConstants = [4]float32{1, 1, 1, 1}
	otherOutput, err := l.CompileFragment(pso.LibrarySubsetFragmentOutputInterface, other, pso.CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, fragments[3].Fingerprints(), otherOutput.Fingerprints())

	b := d.NewGraphicsBatch()
	for _, output := range []*pso.LibraryFragment{fragments[3], otherOutput} {
		_, err := b.AddRequest(pso.GraphicsPipelineCreateInfo{
			PipelineCreateInfo: pso.PipelineCreateInfo{
				Extensions: pso.PipelineExtensions{Libraries: []*pso.LibraryFragment{fragments[0], fragments[1], fragments[2], output}},
			},
		})
		require.NoError(t, err)
	}
	assert.NotEqual(t, b.Fingerprints(0).Fingerprint, b.Fingerprints(1).Fingerprint)
	assert.Equal(t, b.Fingerprints(0).State, b.Fingerprints(1).State)
	b.Reset()
}

func TestLibraryLinkErrors(t *testing.T) {
	d, drv := newDevice(t, allFeatures)
	l, fragments := newLibrary(t, d, subsetOrder...)
	defer l.Destroy()

	second, err := l.CompileFragment(pso.LibrarySubsetPreRasterizationShaders, fragmentInfos()[pso.LibrarySubsetPreRasterizationShaders], pso.CreateOptions{})
	require.NoError(t, err)

	duplicate := pso.GraphicsPipelineCreateInfo{}
	duplicate.Extensions.Libraries = []*pso.LibraryFragment{fragments[0], fragments[1], second}
	_, err = d.NewGraphicsPipeline(duplicate, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})

	overlap := graphicsInfo("overlap")
	overlap.Extensions.Libraries = []*pso.LibraryFragment{fragments[1]}
	_, err = d.NewGraphicsPipeline(overlap, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{}, "request describes the linked subset itself")

	compute := computeInfo("compute")
	compute.Extensions.Libraries = []*pso.LibraryFragment{fragments[0]}
	_, err = d.NewComputePipeline(compute, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})

	_, err = d.NewComputePipeline(computeInfo("compute"), pso.CreateOptions{Library: l})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})

	nested, err := d.NewPipelineLibrary("nested")
	require.NoError(t, err)
	_, err = nested.CompileFragment(pso.LibrarySubsetVertexInputInterface, fragmentInfos()[pso.LibrarySubsetVertexInputInterface], pso.CreateOptions{Library: l})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
	nested.Destroy()

	assert.Zero(t, drv.Calls().Graphics)
	assert.Zero(t, drv.Calls().Compute)
}

func TestLibraryCompletesIncompleteRequests(t *testing.T) {
	d, drv := newDevice(t, allFeatures)
	l, fragments := newLibrary(t, d, subsetOrder...)
	defer l.Destroy()

	// describes pre rasterization and fragment shader, the rest comes from l
	shaders := graphicsInfo("shaders_only")
	shaders.InputAssembly = nil
	shaders.ColorBlend = nil
	shaders.RenderTarget = nil

	b := d.NewGraphicsBatch()
	addAll(t, b, shaders, graphicsInfo("complete"))

	_, err := b.Commit(pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
	assert.Zero(t, drv.Calls().Graphics)
	assert.Equal(t, 2, b.Len(), "errors before the driver call keep the batch")

	drv.OnGraphics = func(requests []pso.GraphicsPipelineRequest) {
		assert.Equal(t, []pso.PipelineHandle{fragments[0].Handle(), fragments[3].Handle()}, requests[0].Extensions.Libraries)
		assert.Empty(t, requests[1].Extensions.Libraries, "complete requests link nothing")
	}
	pipelines, err := b.Commit(pso.CreateOptions{Library: l})
	drv.OnGraphics = nil
	require.NoError(t, err)
	defer destroyAll(pipelines)

	assert.Equal(t, []*pso.LibraryFragment{fragments[0], fragments[3]}, pipelines[0].Links())
	assert.Empty(t, pipelines[1].Links())

	p, err := d.NewGraphicsPipeline(shaders, pso.CreateOptions{Library: l})
	require.NoError(t, err)
	assert.Equal(t, pipelines[0].Fingerprints(), p.Fingerprints(), "libraries given at create time are not fingerprinted")
	p.Destroy()

	_, err = d.NewGraphicsPipeline(shaders, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
}

func TestLibraryRequiresCapability(t *testing.T) {
	d, drv := newDevice(t, pso.Features{})
	_, err := d.NewPipelineLibrary("lib")
	require.ErrorIs(t, err, pso.ErrorCapabilityUnavailable{})

	incomplete := graphicsInfo("incomplete")
	incomplete.ColorBlend = nil
	incomplete.RenderTarget = nil
	incomplete.InputAssembly = nil
	_, err = d.NewGraphicsBatch().AddRequest(incomplete)
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})

	withLib, _ := newDevice(t, allFeatures)
	l, fragments := newLibrary(t, withLib, pso.LibrarySubsetVertexInputInterface)
	defer l.Destroy()

	linked := graphicsInfo("linked")
	linked.InputAssembly = nil
	linked.Extensions.Libraries = fragments
	_, err = d.NewGraphicsPipeline(linked, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorCapabilityUnavailable{})

	_, err = d.NewGraphicsPipeline(graphicsInfo("opts"), pso.CreateOptions{Library: l})
	require.ErrorIs(t, err, pso.ErrorCapabilityUnavailable{})
	assert.Zero(t, drv.Calls().Graphics)

	hidden := pso.NewDevice(psotest.New(allFeatures).WithoutLibraries(), func() pso.Config {
		c := pso.DefaultConfig()
		c.Features = allFeatures
		return c
	}())
	defer hidden.Destroy()
	assert.False(t, hidden.Features().PipelineLibrary)
	_, err = hidden.NewPipelineLibrary("lib")
	require.ErrorIs(t, err, pso.ErrorCapabilityUnavailable{})
}

func TestLibraryForeignDevice(t *testing.T) {
	a, _ := newDevice(t, allFeatures)
	b, drv := newDevice(t, allFeatures)
	l, _ := newLibrary(t, a, subsetOrder...)
	defer l.Destroy()

	_, err := b.NewGraphicsPipeline(graphicsInfo("foreign"), pso.CreateOptions{Library: l})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
	assert.Zero(t, drv.Calls().Graphics)
}

func TestLibraryDestroyedBeforeCommit(t *testing.T) {
	d, drv := newDevice(t, allFeatures)
	l, fragments := newLibrary(t, d, subsetOrder...)

	linked := pso.GraphicsPipelineCreateInfo{
		PipelineCreateInfo: pso.PipelineCreateInfo{
			Label:      "linked",
			Extensions: pso.PipelineExtensions{Libraries: fragments},
		},
	}
	b := d.NewGraphicsBatch()
	addAll(t, b, graphicsInfo("complete"), linked)

	l.Destroy()
	require.Empty(t, drv.Live())

	pipelines, err := b.Commit(pso.CreateOptions{})
	assert.Nil(t, pipelines)
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
	assert.Contains(t, err.Error(), "Request [1]")
	assert.Zero(t, drv.Calls().Graphics, "no stale handle reaches the driver")
	assert.Equal(t, 2, b.Len(), "errors before the driver call keep the batch")
	b.Reset()
	assert.Equal(t, 1, drv.LiveLayouts())
}

func TestLibraryFragmentDriverFailure(t *testing.T) {
	d, drv := newDevice(t, allFeatures, func(c *pso.Config) {
		c.Diagnostics = true
	})
	l, err := d.NewPipelineLibrary("lib")
	require.NoError(t, err)
	defer l.Destroy()

	drv.Status = pso.StatusErrorOutOfDeviceMemory
	f, err := l.CompileFragment(pso.LibrarySubsetFragmentShader, fragmentInfos()[pso.LibrarySubsetFragmentShader], pso.CreateOptions{})
	assert.Nil(t, f)
	require.ErrorIs(t, err, pso.ErrorCreationFailed{})

	var failed pso.ErrorCreationFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, pso.StatusErrorOutOfDeviceMemory, failed.Status)
	assert.Equal(t, "fragment_shader", failed.Label)
	assert.Contains(t, failed.Dump, "fs_main")
	assert.Empty(t, l.Fragments())
	assert.Equal(t, 1, drv.LiveLayouts(), "the fragment's layout reference is dropped")
}

func TestLibraryFragmentLayoutLifetime(t *testing.T) {
	d, drv := newDevice(t, allFeatures)
	layout, err := d.NewPipelineLayout(pso.PipelineLayoutCreateInfo{
		Label:      "fragment_layout",
		SetLayouts: []pso.DescriptorSetLayout{{Handle: 100, Hash: 7}},
	})
	require.NoError(t, err)

	l, err := d.NewPipelineLibrary("lib")
	require.NoError(t, err)

	info := fragmentInfos()[pso.LibrarySubsetFragmentShader]
	info.Layout = layout
	withLayout, err := l.CompileFragment(pso.LibrarySubsetFragmentShader, info, pso.CreateOptions{})
	require.NoError(t, err)
	withoutLayout, err := l.CompileFragment(pso.LibrarySubsetFragmentShader, fragmentInfos()[pso.LibrarySubsetFragmentShader], pso.CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, withLayout.Fingerprints().Fingerprint, withoutLayout.Fingerprints().Fingerprint)

	layouts := drv.LiveLayouts()
	layout.Destroy()
	assert.Equal(t, layouts, drv.LiveLayouts(), "the fragment keeps its layout alive")
	l.Destroy()
	assert.Equal(t, layouts-1, drv.LiveLayouts())
}
