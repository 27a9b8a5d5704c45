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

// Package psotest provides a recording pso.Driver for tests.
package psotest

import (
	"slices"
	"sync"

	"goarrg.com/rhi/pso"
)

// Calls counts driver calls by kind.
type Calls struct {
	Graphics, Compute, RayTracing int
	Library                       int
	DestroyPipeline               int
	CreateLayout, DestroyLayout   int
}

// Driver hands out sequential handles and remembers which are alive. The
// exported fields configure the next calls and may be changed between them.
type Driver struct {
	mu sync.Mutex

	// Supported is returned by SupportedFeatures.
	Supported pso.Features
	// Status is returned by every bulk call, zero is success.
	Status pso.Status
	// NullAt lists request indices of a bulk call that come back null.
	NullAt []int
	// Feedback is written to every creation feedback record requested.
	Feedback pso.CreationFeedback
	// OnGraphics, OnCompute and OnRayTracing run inside the matching call
	// while every request pointer is still valid.
	OnGraphics   func([]pso.GraphicsPipelineRequest)
	OnCompute    func([]pso.ComputePipelineRequest)
	OnRayTracing func(pso.DeferredOperationHandle, []pso.RayTracingPipelineRequest)

	next    uint64
	live    map[pso.PipelineHandle]bool
	layouts map[pso.PipelineLayoutHandle]bool
	calls   Calls
}

func New(supported pso.Features) *Driver {
	return &Driver{
		Supported: supported,
		live:      map[pso.PipelineHandle]bool{},
		layouts:   map[pso.PipelineLayoutHandle]bool{},
	}
}

// WithoutLibraries hides the LibraryDriver and FeatureReporter methods of d.
func (d *Driver) WithoutLibraries() pso.Driver {
	return struct{ pso.Driver }{d}
}

func (d *Driver) SupportedFeatures() pso.Features {
	return d.Supported
}

func (d *Driver) Calls() Calls {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Live returns the pipelines and fragments not yet destroyed, sorted.
func (d *Driver) Live() []pso.PipelineHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]pso.PipelineHandle, 0, len(d.live))
	for h := range d.live {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	return handles
}

func (d *Driver) LiveLayouts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.layouts)
}

func (d *Driver) fill(pipelines []pso.PipelineHandle) pso.Status {
	for i := range pipelines {
		if slices.Contains(d.NullAt, i) {
			pipelines[i] = pso.NullHandle
			continue
		}
		d.next++
		pipelines[i] = pso.PipelineHandle(d.next)
		d.live[pipelines[i]] = true
	}
	return d.Status
}

func (d *Driver) feedback(r *pso.CreationFeedbackRecord) {
	if r == nil {
		return
	}
	r.Pipeline = d.Feedback
	for i := range r.Stages {
		r.Stages[i] = d.Feedback
	}
}

func (d *Driver) CreateGraphicsPipelines(_ pso.PipelineCacheHandle, requests []pso.GraphicsPipelineRequest, _ pso.HostAllocator, pipelines []pso.PipelineHandle) pso.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls.Graphics++
	if d.OnGraphics != nil {
		d.OnGraphics(requests)
	}
	for i := range requests {
		d.feedback(requests[i].Extensions.Feedback)
	}
	return d.fill(pipelines)
}

func (d *Driver) CreateComputePipelines(_ pso.PipelineCacheHandle, requests []pso.ComputePipelineRequest, _ pso.HostAllocator, pipelines []pso.PipelineHandle) pso.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls.Compute++
	if d.OnCompute != nil {
		d.OnCompute(requests)
	}
	for i := range requests {
		d.feedback(requests[i].Extensions.Feedback)
	}
	return d.fill(pipelines)
}

func (d *Driver) CreateRayTracingPipelines(deferred pso.DeferredOperationHandle, _ pso.PipelineCacheHandle, requests []pso.RayTracingPipelineRequest, _ pso.HostAllocator, pipelines []pso.PipelineHandle) pso.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls.RayTracing++
	if d.OnRayTracing != nil {
		d.OnRayTracing(deferred, requests)
	}
	for i := range requests {
		d.feedback(requests[i].Extensions.Feedback)
	}
	return d.fill(pipelines)
}

func (d *Driver) DestroyPipeline(h pso.PipelineHandle, _ pso.HostAllocator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls.DestroyPipeline++
	delete(d.live, h)
}

func (d *Driver) CreatePipelineLayout(*pso.PipelineLayoutRequest, pso.HostAllocator) (pso.PipelineLayoutHandle, pso.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls.CreateLayout++
	d.next++
	h := pso.PipelineLayoutHandle(d.next)
	d.layouts[h] = true
	return h, pso.StatusSuccess
}

func (d *Driver) DestroyPipelineLayout(h pso.PipelineLayoutHandle, _ pso.HostAllocator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls.DestroyLayout++
	delete(d.layouts, h)
}

func (d *Driver) fragment() (pso.PipelineHandle, pso.Status) {
	d.calls.Library++
	if d.Status != pso.StatusSuccess {
		return pso.NullHandle, d.Status
	}
	d.next++
	h := pso.PipelineHandle(d.next)
	d.live[h] = true
	return h, pso.StatusSuccess
}

func (d *Driver) CreateVertexInputInterface(pso.PipelineCacheHandle, *pso.VertexInputInterfaceRequest, pso.HostAllocator) (pso.PipelineHandle, pso.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fragment()
}

func (d *Driver) CreatePreRasterizationShaders(pso.PipelineCacheHandle, *pso.PreRasterizationShadersRequest, pso.HostAllocator) (pso.PipelineHandle, pso.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fragment()
}

func (d *Driver) CreateFragmentShader(pso.PipelineCacheHandle, *pso.FragmentShaderRequest, pso.HostAllocator) (pso.PipelineHandle, pso.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fragment()
}

func (d *Driver) CreateFragmentOutputInterface(pso.PipelineCacheHandle, *pso.FragmentOutputInterfaceRequest, pso.HostAllocator) (pso.PipelineHandle, pso.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fragment()
}
