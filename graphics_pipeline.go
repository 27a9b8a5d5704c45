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

package pso

import (
	"slices"

	"goarrg.com/debug"
)

type GraphicsPipelineCreateInfo struct {
	PipelineCreateInfo
	Stages []ShaderStageInfo

	// nil blocks are absent from the pipeline, either because the stages do
	// not use them or because a linked library fragment provides them.
	VertexInput   *VertexInputState
	InputAssembly *InputAssemblyState
	Tessellation  *TessellationState
	Viewport      *ViewportState
	Rasterization *RasterizationState
	Multisample   *MultisampleState
	DepthStencil  *DepthStencilState
	ColorBlend    *ColorBlendState

	DynamicStates []DynamicState
	RenderTarget  *RenderTargetInfo
}

// GraphicsPipelineRequest is what the driver receives, every pointer refers
// to the copy held by the device until the driver call returns.
type GraphicsPipelineRequest struct {
	RequestCommon
	Stages []ShaderStageRequest

	VertexInput   *VertexInputState
	InputAssembly *InputAssemblyState
	Tessellation  *TessellationState
	Viewport      *ViewportState
	Rasterization *RasterizationState
	Multisample   *MultisampleState
	DepthStencil  *DepthStencilState
	ColorBlend    *ColorBlendState

	DynamicStates []DynamicState
	RenderTarget  *RenderTargetInfo
}

type graphicsKind struct{}

func (graphicsKind) bindPoint() BindPoint {
	return BindPointGraphics
}

func (graphicsKind) common(info *GraphicsPipelineCreateInfo) *PipelineCreateInfo {
	return &info.PipelineCreateInfo
}

func (graphicsKind) stages(info *GraphicsPipelineCreateInfo) []ShaderStageInfo {
	return info.Stages
}

// librarySubsets reports the library subsets info describes by itself.
func (graphicsKind) librarySubsets(info *GraphicsPipelineCreateInfo) LibrarySubsetFlags {
	var stages ShaderStage
	for _, s := range info.Stages {
		stages |= s.Stage
	}

	var flags LibrarySubsetFlags
	if info.VertexInput != nil || info.InputAssembly != nil || hasBits(stages, ShaderStageMesh) {
		flags |= LibrarySubsetVertexInputInterface.flag()
	}
	if stages&(ShaderStageVertex|ShaderStageMesh) != 0 && info.Rasterization != nil {
		flags |= LibrarySubsetPreRasterizationShaders.flag()
	}
	if hasBits(stages, ShaderStageFragment) {
		flags |= LibrarySubsetFragmentShader.flag()
	}
	if info.ColorBlend != nil {
		flags |= LibrarySubsetFragmentOutputInterface.flag()
	}
	return flags
}

func (graphicsKind) prepare(d *Device, info *GraphicsPipelineCreateInfo) (FingerprintInput, error) {
	if err := validateGraphics(d, info); err != nil {
		return FingerprintInput{}, ErrorInvalidUsage{Err: debug.ErrorWrapf(err, "Invalid graphics pipeline %q", info.Label)}
	}

	info.Stages = slices.Clone(info.Stages)
	for i := range info.Stages {
		info.Stages[i] = info.Stages[i].clone()
	}
	if info.VertexInput != nil {
		info.VertexInput = info.VertexInput.clone()
	}
	info.InputAssembly = clonePtr(info.InputAssembly)
	info.Tessellation = clonePtr(info.Tessellation)
	if info.Viewport != nil {
		info.Viewport = info.Viewport.clone()
	}
	info.Rasterization = clonePtr(info.Rasterization)
	info.Multisample = clonePtr(info.Multisample)
	info.DepthStencil = clonePtr(info.DepthStencil)
	if info.ColorBlend != nil {
		info.ColorBlend = info.ColorBlend.clone()
	}
	info.DynamicStates = slices.Clone(info.DynamicStates)

	input := FingerprintInput{
		Stages: hashStages(info.Stages),
		States: graphicsStateHashes(
			info.VertexInput, info.InputAssembly, info.Tessellation, info.Viewport,
			info.Rasterization, info.Multisample, info.DepthStencil, info.ColorBlend,
		),
		DynamicStates: info.DynamicStates,
	}
	if info.RenderTarget != nil {
		info.RenderTarget = info.RenderTarget.clone()
		input.HasRenderTarget = true
		input.RenderTarget = info.RenderTarget.Hash()
	}
	return input, nil
}

func validateGraphics(d *Device, info *GraphicsPipelineCreateInfo) error {
	if err := validateStages(info.Stages, ShaderStageGraphics); err != nil {
		return err
	}

	var stages ShaderStage
	for _, s := range info.Stages {
		stages |= s.Stage
	}
	if hasBits(stages, ShaderStageVertex) && stages&(ShaderStageTask|ShaderStageMesh) != 0 {
		return debug.Errorf("Vertex and Task/Mesh stages are mutually exclusive")
	}
	if hasBits(stages, ShaderStageTask) && !hasBits(stages, ShaderStageMesh) {
		return debug.Errorf("Task stage requires a Mesh stage")
	}
	if err := validatePreRasterization(stages, info.InputAssembly, info.Tessellation); err != nil {
		return err
	}

	if info.VertexInput != nil {
		if err := info.VertexInput.validate(); err != nil {
			return err
		}
		if uint32(len(info.VertexInput.Buffers)) > d.config.limits.MaxVertexInputBindings {
			return debug.Errorf("VertexInputState has [%d] buffers, more than Limits.MaxVertexInputBindings [%d]",
				len(info.VertexInput.Buffers), d.config.limits.MaxVertexInputBindings)
		}
	}
	if info.InputAssembly != nil {
		if err := info.InputAssembly.validate(); err != nil {
			return err
		}
	}
	if info.Multisample != nil {
		if err := info.Multisample.validate(); err != nil {
			return err
		}
	}
	if err := validateRenderTarget(d, info.ColorBlend, info.RenderTarget); err != nil {
		return err
	}
	return validateDynamicStates(info.DynamicStates, BindPointGraphics)
}

// validatePreRasterization checks that tessellation stages, state and
// topology agree with each other.
func validatePreRasterization(stages ShaderStage, inputAssembly *InputAssemblyState, tessellation *TessellationState) error {
	tessStages := ShaderStageTessellationControl | ShaderStageTessellationEvaluation
	switch {
	case stages&tessStages != 0:
		if !hasBits(stages, tessStages) {
			return debug.Errorf("Tessellation requires both TessellationControl and TessellationEvaluation stages, have: %q", stages.String())
		}
		if tessellation == nil || tessellation.PatchControlPoints == 0 {
			return debug.Errorf("Tessellation stages require a TessellationState with PatchControlPoints >= 1")
		}
		if inputAssembly != nil && inputAssembly.Topology != PrimitiveTopologyPatchList {
			return debug.Errorf("Tessellation stages require the PatchList topology, have [%d]", inputAssembly.Topology)
		}
	case inputAssembly != nil && inputAssembly.Topology == PrimitiveTopologyPatchList:
		return debug.Errorf("PatchList topology requires tessellation stages")
	}
	return nil
}

func validateRenderTarget(d *Device, colorBlend *ColorBlendState, renderTarget *RenderTargetInfo) error {
	limit := d.config.limits.MaxColorAttachments
	if colorBlend != nil && uint32(len(colorBlend.Attachments)) > limit {
		return debug.Errorf("ColorBlendState has [%d] attachments, more than Limits.MaxColorAttachments [%d]", len(colorBlend.Attachments), limit)
	}
	if renderTarget != nil {
		if uint32(len(renderTarget.ColorFormats)) > limit {
			return debug.Errorf("RenderTargetInfo has [%d] color formats, more than Limits.MaxColorAttachments [%d]", len(renderTarget.ColorFormats), limit)
		}
		if colorBlend != nil && len(colorBlend.Attachments) != len(renderTarget.ColorFormats) {
			return debug.Errorf("ColorBlendState has [%d] attachments but RenderTargetInfo has [%d] color formats",
				len(colorBlend.Attachments), len(renderTarget.ColorFormats))
		}
	}
	return nil
}

func validateDynamicStates(states []DynamicState, bindPoint BindPoint) error {
	for i, s := range states {
		rayTracing := s == DynamicStateRayTracingPipelineStackSize
		if rayTracing != (bindPoint == BindPointRayTracing) {
			return debug.Errorf("DynamicStates [%d]: %s is not valid for %s pipelines", i, s.String(), bindPoint.String())
		}
	}
	return nil
}

func (graphicsKind) request(p *pending[GraphicsPipelineCreateInfo], common RequestCommon) GraphicsPipelineRequest {
	info := &p.info
	r := GraphicsPipelineRequest{
		RequestCommon: common,
		Stages:        make([]ShaderStageRequest, len(info.Stages)),
		VertexInput:   info.VertexInput,
		InputAssembly: info.InputAssembly,
		Tessellation:  info.Tessellation,
		Viewport:      info.Viewport,
		Rasterization: info.Rasterization,
		Multisample:   info.Multisample,
		DepthStencil:  info.DepthStencil,
		ColorBlend:    info.ColorBlend,
		DynamicStates: info.DynamicStates,
		RenderTarget:  info.RenderTarget,
	}
	for i := range info.Stages {
		r.Stages[i] = info.Stages[i].request()
	}
	return r
}

func (graphicsKind) create(d *Device, opts *CreateOptions, requests []GraphicsPipelineRequest, pipelines []PipelineHandle) Status {
	if opts.Deferred != NullHandle {
		instance.logger.VPrintf("Deferred operation %s ignored for graphics pipelines", toHex(opts.Deferred))
	}
	return d.driver.CreateGraphicsPipelines(opts.Cache, requests, opts.Allocator, pipelines)
}
