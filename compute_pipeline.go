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
	"goarrg.com/debug"
	"goarrg.com/gmath"
)

type ComputePipelineCreateInfo struct {
	PipelineCreateInfo
	Stage ShaderStageInfo
}

type ComputePipelineRequest struct {
	RequestCommon
	Stage ShaderStageRequest
}

type computeKind struct{}

func (computeKind) bindPoint() BindPoint {
	return BindPointCompute
}

func (computeKind) common(info *ComputePipelineCreateInfo) *PipelineCreateInfo {
	return &info.PipelineCreateInfo
}

func (computeKind) stages(info *ComputePipelineCreateInfo) []ShaderStageInfo {
	return []ShaderStageInfo{info.Stage}
}

func (computeKind) librarySubsets(*ComputePipelineCreateInfo) LibrarySubsetFlags {
	return 0
}

func (computeKind) prepare(d *Device, info *ComputePipelineCreateInfo) (FingerprintInput, error) {
	if err := validateCompute(d, &info.Stage); err != nil {
		return FingerprintInput{}, ErrorInvalidUsage{Err: debug.ErrorWrapf(err, "Invalid compute pipeline %q", info.Label)}
	}
	info.Stage = info.Stage.clone()
	return FingerprintInput{
		Stages: []uint64{info.Stage.Hash()},
		States: []uint64{},
	}, nil
}

func validateCompute(d *Device, stage *ShaderStageInfo) error {
	if err := validateStages([]ShaderStageInfo{*stage}, ShaderStageCompute); err != nil {
		return err
	}
	r := stage.Module.reflection
	if r == nil {
		return nil
	}
	e, _ := r.lookup(stage.EntryPoint)
	size := e.Workgroup
	limits := d.config.limits
	if !size.InRange(gmath.Extent3[uint32]{}, limits.MaxComputeWorkgroupSize) {
		return debug.Errorf("Entry point %q workgroup size [%d,%d,%d] is greater than Limits.MaxComputeWorkgroupSize [%d,%d,%d]",
			stage.EntryPoint, size.X, size.Y, size.Z,
			limits.MaxComputeWorkgroupSize.X, limits.MaxComputeWorkgroupSize.Y, limits.MaxComputeWorkgroupSize.Z)
	}
	if size.Volume() > limits.MaxComputeWorkgroupInvocations {
		return debug.Errorf("Entry point %q workgroup size [%d*%d*%d] is greater than Limits.MaxComputeWorkgroupInvocations [%d]",
			stage.EntryPoint, size.X, size.Y, size.Z, limits.MaxComputeWorkgroupInvocations)
	}
	return nil
}

func (computeKind) request(p *pending[ComputePipelineCreateInfo], common RequestCommon) ComputePipelineRequest {
	return ComputePipelineRequest{
		RequestCommon: common,
		Stage:         p.info.Stage.request(),
	}
}

func (computeKind) create(d *Device, opts *CreateOptions, requests []ComputePipelineRequest, pipelines []PipelineHandle) Status {
	if opts.Deferred != NullHandle {
		instance.logger.VPrintf("Deferred operation %s ignored for compute pipelines", toHex(opts.Deferred))
	}
	return d.driver.CreateComputePipelines(opts.Cache, requests, opts.Allocator, pipelines)
}
