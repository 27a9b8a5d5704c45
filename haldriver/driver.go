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

// Package haldriver implements pso.Driver on top of a gogpu/wgpu hal.Device.
// Requests are created one at a time, items the device can not express
// fail with a null handle while the rest of the call still succeeds.
package haldriver

import (
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"goarrg.com/debug"
	"golang.org/x/exp/maps"

	"goarrg.com/rhi/pso"
)

var instance = struct {
	logger *debug.Logger
}{
	logger: debug.NewLogger("pso", "haldriver"),
}

type pipeline struct {
	render  hal.RenderPipeline
	compute hal.ComputePipeline
}

type Driver struct {
	mu         sync.Mutex
	device     hal.Device
	next       uint64
	pipelines  map[pso.PipelineHandle]pipeline
	layouts    map[pso.PipelineLayoutHandle]hal.PipelineLayout
	setLayouts map[pso.DescriptorSetLayoutHandle]hal.BindGroupLayout
	modules    *moduleCache
}

// New wraps device, moduleCacheSize bounds the number of shader modules kept
// alive between calls.
func New(device hal.Device, moduleCacheSize int) (*Driver, error) {
	if device == nil {
		return nil, debug.Errorf("nil hal.Device")
	}
	modules, err := newModuleCache(device, moduleCacheSize)
	if err != nil {
		return nil, debug.ErrorWrapf(err, "Failed to create shader module cache")
	}
	return &Driver{
		device:     device,
		pipelines:  map[pso.PipelineHandle]pipeline{},
		layouts:    map[pso.PipelineLayoutHandle]hal.PipelineLayout{},
		setLayouts: map[pso.DescriptorSetLayoutHandle]hal.BindGroupLayout{},
		modules:    modules,
	}, nil
}

// SupportedFeatures reports none of the optional features, hal has no
// pipeline libraries, creation feedback or ray tracing.
func (d *Driver) SupportedFeatures() pso.Features {
	return pso.Features{}
}

func (d *Driver) handle() uint64 {
	d.next++
	return d.next
}

// RegisterBindGroupLayout makes a hal bind group layout usable as a
// descriptor set layout. The caller keeps ownership of l.
func (d *Driver) RegisterBindGroupLayout(l hal.BindGroupLayout) pso.DescriptorSetLayoutHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := pso.DescriptorSetLayoutHandle(d.handle())
	d.setLayouts[h] = l
	return h
}

func (d *Driver) CreatePipelineLayout(request *pso.PipelineLayoutRequest, _ pso.HostAllocator) (pso.PipelineLayoutHandle, pso.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(request.PushConstantRanges) > 0 {
		instance.logger.EPrintf("PipelineLayout %q: push constants are not supported", request.Label)
		return pso.NullHandle, pso.StatusErrorFeatureNotPresent
	}
	desc := hal.PipelineLayoutDescriptor{
		Label:            request.Label,
		BindGroupLayouts: make([]hal.BindGroupLayout, len(request.SetLayouts)),
	}
	for i, h := range request.SetLayouts {
		l, ok := d.setLayouts[h]
		if !ok {
			instance.logger.EPrintf("PipelineLayout %q: unknown set layout [%d] 0x%X", request.Label, i, uint64(h))
			return pso.NullHandle, pso.StatusErrorInitializationFailed
		}
		desc.BindGroupLayouts[i] = l
	}

	layout, err := d.device.CreatePipelineLayout(&desc)
	if err != nil {
		instance.logger.EPrintf("PipelineLayout %q: %s", request.Label, err)
		return pso.NullHandle, pso.StatusErrorInitializationFailed
	}
	h := pso.PipelineLayoutHandle(d.handle())
	d.layouts[h] = layout
	return h, pso.StatusSuccess
}

func (d *Driver) DestroyPipelineLayout(h pso.PipelineLayoutHandle, _ pso.HostAllocator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.layouts[h]; ok {
		d.device.DestroyPipelineLayout(l)
		delete(d.layouts, h)
	}
}

// createEach runs create for every request and reports the first failure.
// EarlyReturnOnFailure stops at the failing request, the rest stay null.
func createEach[R any](requests []R, pipelines []pso.PipelineHandle, flags func(*R) pso.PipelineCreateFlags, create func(*R) (pso.PipelineHandle, pso.Status)) pso.Status {
	status := pso.StatusSuccess
	for i := range requests {
		h, s := create(&requests[i])
		pipelines[i] = h
		if s.Succeeded() {
			continue
		}
		if status == pso.StatusSuccess {
			status = s
		}
		if flags(&requests[i])&pso.PipelineCreateEarlyReturnOnFailure != 0 {
			break
		}
	}
	return status
}

func (d *Driver) CreateGraphicsPipelines(_ pso.PipelineCacheHandle, requests []pso.GraphicsPipelineRequest, _ pso.HostAllocator, pipelines []pso.PipelineHandle) pso.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return createEach(requests, pipelines,
		func(r *pso.GraphicsPipelineRequest) pso.PipelineCreateFlags { return r.Flags },
		d.createGraphics,
	)
}

func (d *Driver) CreateComputePipelines(_ pso.PipelineCacheHandle, requests []pso.ComputePipelineRequest, _ pso.HostAllocator, pipelines []pso.PipelineHandle) pso.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return createEach(requests, pipelines,
		func(r *pso.ComputePipelineRequest) pso.PipelineCreateFlags { return r.Flags },
		d.createCompute,
	)
}

// CreateRayTracingPipelines fails every request, hal has no ray tracing.
func (d *Driver) CreateRayTracingPipelines(_ pso.DeferredOperationHandle, _ pso.PipelineCacheHandle, requests []pso.RayTracingPipelineRequest, _ pso.HostAllocator, pipelines []pso.PipelineHandle) pso.Status {
	clear(pipelines)
	if len(requests) > 0 {
		instance.logger.EPrintf("Ray tracing pipelines are not supported")
	}
	return pso.StatusErrorFeatureNotPresent
}

func (d *Driver) DestroyPipeline(h pso.PipelineHandle, _ pso.HostAllocator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyPipeline(h)
}

func (d *Driver) destroyPipeline(h pso.PipelineHandle) {
	p, ok := d.pipelines[h]
	if !ok {
		return
	}
	if p.render != nil {
		d.device.DestroyRenderPipeline(p.render)
	}
	if p.compute != nil {
		d.device.DestroyComputePipeline(p.compute)
	}
	delete(d.pipelines, h)
}

// Live returns the number of pipelines not yet destroyed.
func (d *Driver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipelines)
}

// Destroy releases everything still alive in handle order, then every
// cached shader module. Registered set layouts are left to their owner.
func (d *Driver) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	handles := maps.Keys(d.pipelines)
	slices.Sort(handles)
	if len(handles) > 0 {
		instance.logger.WPrintf("Destroying [%d] leaked pipelines", len(handles))
	}
	for _, h := range handles {
		d.destroyPipeline(h)
	}

	layouts := maps.Keys(d.layouts)
	slices.Sort(layouts)
	for _, h := range layouts {
		d.device.DestroyPipelineLayout(d.layouts[h])
		delete(d.layouts, h)
	}
	d.modules.purge()
}

func (d *Driver) layout(label string, h pso.PipelineLayoutHandle) (hal.PipelineLayout, pso.Status) {
	l, ok := d.layouts[h]
	if !ok {
		instance.logger.EPrintf("%q: unknown pipeline layout 0x%X", label, uint64(h))
		return nil, pso.StatusErrorInitializationFailed
	}
	return l, pso.StatusSuccess
}

func (d *Driver) stage(label string, s *pso.ShaderStageRequest) (hal.ShaderModule, pso.Status) {
	if s.Specialization != nil && len(s.Specialization.MapEntries) > 0 {
		instance.logger.EPrintf("%q: specialization constants are not supported", label)
		return nil, pso.StatusErrorFeatureNotPresent
	}
	m, err := d.modules.get(s)
	if err != nil {
		instance.logger.EPrintf("%q: %s stage %q: %s", label, s.Stage.String(), s.Name, err)
		return nil, pso.StatusErrorInvalidShader
	}
	return m, pso.StatusSuccess
}

func (d *Driver) createCompute(r *pso.ComputePipelineRequest) (pso.PipelineHandle, pso.Status) {
	layout, status := d.layout(r.Label, r.Layout)
	if !status.Succeeded() {
		return pso.NullHandle, status
	}
	module, status := d.stage(r.Label, &r.Stage)
	if !status.Succeeded() {
		return pso.NullHandle, status
	}

	p, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  r.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: r.Stage.EntryPoint,
		},
	})
	if err != nil {
		instance.logger.EPrintf("%q: %s", r.Label, err)
		return pso.NullHandle, pso.StatusErrorInitializationFailed
	}
	h := pso.PipelineHandle(d.handle())
	d.pipelines[h] = pipeline{compute: p}
	return h, pso.StatusSuccess
}

func (d *Driver) createGraphics(r *pso.GraphicsPipelineRequest) (pso.PipelineHandle, pso.Status) {
	if len(r.Extensions.Libraries) > 0 {
		instance.logger.EPrintf("%q: pipeline libraries are not supported", r.Label)
		return pso.NullHandle, pso.StatusErrorFeatureNotPresent
	}
	layout, status := d.layout(r.Label, r.Layout)
	if !status.Succeeded() {
		return pso.NullHandle, status
	}

	desc := hal.RenderPipelineDescriptor{
		Label:  r.Label,
		Layout: layout,
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}

	for i := range r.Stages {
		s := &r.Stages[i]
		module, status := d.stage(r.Label, s)
		if !status.Succeeded() {
			return pso.NullHandle, status
		}
		switch s.Stage {
		case pso.ShaderStageVertex:
			desc.Vertex = hal.VertexState{Module: module, EntryPoint: s.EntryPoint}
		case pso.ShaderStageFragment:
			targets, status := colorTargets(r)
			if !status.Succeeded() {
				return pso.NullHandle, status
			}
			desc.Fragment = &hal.FragmentState{Module: module, EntryPoint: s.EntryPoint, Targets: targets}
		default:
			instance.logger.EPrintf("%q: %s stage is not supported", r.Label, s.Stage.String())
			return pso.NullHandle, pso.StatusErrorFeatureNotPresent
		}
	}

	if r.VertexInput != nil {
		desc.Vertex.Buffers = r.VertexInput.Buffers
	}
	if r.InputAssembly != nil {
		if r.InputAssembly.Topology == pso.PrimitiveTopologyPatchList {
			instance.logger.EPrintf("%q: tessellation is not supported", r.Label)
			return pso.NullHandle, pso.StatusErrorFeatureNotPresent
		}
		desc.Primitive.Topology = r.InputAssembly.Topology
	}
	if r.Rasterization != nil {
		if r.Rasterization.PolygonMode != pso.PolygonModeFill || r.Rasterization.RasterizerDiscard {
			instance.logger.EPrintf("%q: polygon mode %s and rasterizer discard are not supported", r.Label, r.Rasterization.PolygonMode.String())
			return pso.NullHandle, pso.StatusErrorFeatureNotPresent
		}
		desc.Primitive.CullMode = r.Rasterization.CullMode
		desc.Primitive.FrontFace = r.Rasterization.FrontFace
	}
	if r.Multisample != nil {
		desc.Multisample = r.Multisample.MultisampleState
	}
	if r.RenderTarget != nil && r.RenderTarget.DepthFormat != gputypes.TextureFormatUndefined {
		desc.DepthStencil = depthStencil(r.RenderTarget.DepthFormat, r.DepthStencil)
	}

	p, err := d.device.CreateRenderPipeline(&desc)
	if err != nil {
		instance.logger.EPrintf("%q: %s", r.Label, err)
		return pso.NullHandle, pso.StatusErrorInitializationFailed
	}
	h := pso.PipelineHandle(d.handle())
	d.pipelines[h] = pipeline{render: p}
	return h, pso.StatusSuccess
}

func colorTargets(r *pso.GraphicsPipelineRequest) ([]gputypes.ColorTargetState, pso.Status) {
	if r.RenderTarget == nil {
		instance.logger.EPrintf("%q: fragment stage without RenderTarget", r.Label)
		return nil, pso.StatusErrorInitializationFailed
	}
	targets := make([]gputypes.ColorTargetState, len(r.RenderTarget.ColorFormats))
	for i, f := range r.RenderTarget.ColorFormats {
		targets[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
		if r.ColorBlend != nil && i < len(r.ColorBlend.Attachments) {
			targets[i].Blend = r.ColorBlend.Attachments[i].Blend
			targets[i].WriteMask = r.ColorBlend.Attachments[i].WriteMask
		}
	}
	return targets, pso.StatusSuccess
}

func depthStencil(format gputypes.TextureFormat, s *pso.DepthStencilState) *hal.DepthStencilState {
	if s == nil {
		return &hal.DepthStencilState{Format: format, DepthCompare: gputypes.CompareFunctionAlways}
	}
	compare := gputypes.CompareFunctionAlways
	if s.DepthTest {
		compare = s.DepthCompare
	}
	ds := &hal.DepthStencilState{
		Format:            format,
		DepthWriteEnabled: s.DepthTest && s.DepthWrite,
		DepthCompare:      compare,
	}
	if s.StencilTest {
		ds.StencilFront = stencilFace(s.Front)
		ds.StencilBack = stencilFace(s.Back)
		ds.StencilReadMask = s.Front.CompareMask
		ds.StencilWriteMask = s.Front.WriteMask
	}
	return ds
}

func stencilFace(f pso.StencilFaceState) hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     f.Compare,
		FailOp:      stencilOperation(f.FailOp),
		DepthFailOp: stencilOperation(f.DepthFailOp),
		PassOp:      stencilOperation(f.PassOp),
	}
}

func stencilOperation(o pso.StencilOperation) hal.StencilOperation {
	switch o {
	case pso.StencilOperationZero:
		return hal.StencilOperationZero
	case pso.StencilOperationReplace:
		return hal.StencilOperationReplace
	case pso.StencilOperationIncrementClamp:
		return hal.StencilOperationIncrementClamp
	case pso.StencilOperationDecrementClamp:
		return hal.StencilOperationDecrementClamp
	case pso.StencilOperationInvert:
		return hal.StencilOperationInvert
	case pso.StencilOperationIncrementWrap:
		return hal.StencilOperationIncrementWrap
	case pso.StencilOperationDecrementWrap:
		return hal.StencilOperationDecrementWrap
	default:
		return hal.StencilOperationKeep
	}
}
