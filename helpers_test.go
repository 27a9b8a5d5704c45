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
	"github.com/stretchr/testify/require"

	"goarrg.com/rhi/pso"
	"goarrg.com/rhi/pso/psotest"
)

var allFeatures = pso.Features{
	PipelineLibrary:    true,
	CreationFeedback:   true,
	CompilerControl:    true,
	RayTracing:         true,
	PipelineRobustness: true,
}

func newDevice(t *testing.T, features pso.Features, edit ...func(*pso.Config)) (*pso.Device, *psotest.Driver) {
	t.Helper()
	drv := psotest.New(allFeatures)
	cfg := pso.DefaultConfig()
	cfg.Features = features
	for _, e := range edit {
		e(&cfg)
	}
	d := pso.NewDevice(drv, cfg)
	t.Cleanup(d.Destroy)
	return d, drv
}

func module(name string, words ...uint32) *pso.ShaderModule {
	return pso.NewShaderModule(name, append([]uint32{0x07230203, 0x00010500}, words...), nil)
}

func stage(s pso.ShaderStage, m *pso.ShaderModule, entry string) pso.ShaderStageInfo {
	return pso.ShaderStageInfo{Stage: s, Module: m, EntryPoint: entry}
}

var (
	vertexModule   = module("vs", 1)
	fragmentModule = module("fs", 2)
	computeModule  = module("cs", 3)
)

func graphicsInfo(label string) pso.GraphicsPipelineCreateInfo {
	return pso.GraphicsPipelineCreateInfo{
		PipelineCreateInfo: pso.PipelineCreateInfo{Label: label},
		Stages: []pso.ShaderStageInfo{
			stage(pso.ShaderStageVertex, vertexModule, "vs_main"),
			stage(pso.ShaderStageFragment, fragmentModule, "fs_main"),
		},
		InputAssembly: &pso.InputAssemblyState{Topology: gputypes.PrimitiveTopologyTriangleList},
		Rasterization: &pso.RasterizationState{CullMode: gputypes.CullModeNone, LineWidth: 1},
		Multisample:   &pso.MultisampleState{MultisampleState: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF}},
		ColorBlend: &pso.ColorBlendState{
			Attachments: []pso.ColorBlendAttachment{{WriteMask: gputypes.ColorWriteMaskAll}},
		},
		RenderTarget: &pso.RenderTargetInfo{ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm}},
	}
}

func computeInfo(label string) pso.ComputePipelineCreateInfo {
	return pso.ComputePipelineCreateInfo{
		PipelineCreateInfo: pso.PipelineCreateInfo{Label: label},
		Stage:              stage(pso.ShaderStageCompute, computeModule, "cs_main"),
	}
}

func destroyAll(pipelines []*pso.Pipeline) {
	for _, p := range pipelines {
		p.Destroy()
	}
}

func addAll[I, R any](t *testing.T, b *pso.Batch[I, R], infos ...I) {
	t.Helper()
	for i, info := range infos {
		idx, err := b.AddRequest(info)
		require.NoError(t, err)
		require.Equal(t, i, idx)
	}
}
