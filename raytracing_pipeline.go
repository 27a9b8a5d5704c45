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

type ShaderGroupType uint32

const (
	ShaderGroupGeneral ShaderGroupType = iota
	ShaderGroupTrianglesHitGroup
	ShaderGroupProceduralHitGroup
)

func (t ShaderGroupType) String() string {
	switch t {
	case ShaderGroupGeneral:
		return "General"
	case ShaderGroupTrianglesHitGroup:
		return "TrianglesHitGroup"
	case ShaderGroupProceduralHitGroup:
		return "ProceduralHitGroup"
	default:
		return "ShaderGroupType(" + toHex(uint32(t)) + ")"
	}
}

// ShaderUnused marks a shader group slot without a stage.
const ShaderUnused = ^uint32(0)

// ShaderGroup refers to stages by their index in Stages.
type ShaderGroup struct {
	Type         ShaderGroupType
	General      uint32
	ClosestHit   uint32
	AnyHit       uint32
	Intersection uint32
}

type RayTracingPipelineCreateInfo struct {
	PipelineCreateInfo
	Stages            []ShaderStageInfo
	Groups            []ShaderGroup
	MaxRecursionDepth uint32
	DynamicStates     []DynamicState
}

type RayTracingPipelineRequest struct {
	RequestCommon
	Stages            []ShaderStageRequest
	Groups            []ShaderGroup
	MaxRecursionDepth uint32
	DynamicStates     []DynamicState
}

type rayTracingKind struct{}

func (rayTracingKind) bindPoint() BindPoint {
	return BindPointRayTracing
}

func (rayTracingKind) common(info *RayTracingPipelineCreateInfo) *PipelineCreateInfo {
	return &info.PipelineCreateInfo
}

func (rayTracingKind) stages(info *RayTracingPipelineCreateInfo) []ShaderStageInfo {
	return info.Stages
}

func (rayTracingKind) librarySubsets(*RayTracingPipelineCreateInfo) LibrarySubsetFlags {
	return 0
}

func (rayTracingKind) prepare(d *Device, info *RayTracingPipelineCreateInfo) (FingerprintInput, error) {
	if !d.config.features.RayTracing {
		return FingerprintInput{}, ErrorCapabilityUnavailable{Capability: "RayTracing"}
	}
	if err := validateRayTracing(d, info); err != nil {
		return FingerprintInput{}, ErrorInvalidUsage{Err: debug.ErrorWrapf(err, "Invalid ray tracing pipeline %q", info.Label)}
	}

	info.Stages = slices.Clone(info.Stages)
	for i := range info.Stages {
		info.Stages[i] = info.Stages[i].clone()
	}
	info.Groups = slices.Clone(info.Groups)
	info.DynamicStates = slices.Clone(info.DynamicStates)

	return FingerprintInput{
		Stages:        hashStages(info.Stages),
		States:        []uint64{rayTracingStateHash(info.Groups, info.MaxRecursionDepth)},
		DynamicStates: info.DynamicStates,
	}, nil
}

// rayTracingStateHash is the one fixed function block of a ray tracing
// pipeline, its shader groups and recursion depth.
func rayTracingStateHash(groups []ShaderGroup, maxRecursionDepth uint32) uint64 {
	h := newHasher()
	h.uint32(uint32(len(groups)))
	for _, g := range groups {
		h.uint32(uint32(g.Type))
		h.uint32(g.General)
		h.uint32(g.ClosestHit)
		h.uint32(g.AnyHit)
		h.uint32(g.Intersection)
	}
	h.uint32(maxRecursionDepth)
	return h.sum()
}

func validateRayTracing(d *Device, info *RayTracingPipelineCreateInfo) error {
	if err := validateStages(info.Stages, ShaderStageRayTracing); err != nil {
		return err
	}
	if !slices.ContainsFunc(info.Stages, func(s ShaderStageInfo) bool { return s.Stage == ShaderStageRayGen }) {
		return debug.Errorf("No RayGen stage")
	}
	if len(info.Groups) == 0 {
		return debug.Errorf("No shader groups")
	}
	if limit := d.config.limits.MaxRayRecursionDepth; info.MaxRecursionDepth > limit {
		return debug.Errorf("MaxRecursionDepth [%d] is greater than Limits.MaxRayRecursionDepth [%d]", info.MaxRecursionDepth, limit)
	}

	// slot checks that index refers to a stage of one of the wanted kinds.
	slot := func(group int, name string, index uint32, want ShaderStage, required bool) error {
		if index == ShaderUnused {
			if required {
				return debug.Errorf("Group [%d]: %s is required", group, name)
			}
			return nil
		}
		if want == 0 {
			return debug.Errorf("Group [%d]: %s must be ShaderUnused for %s groups", group, name, info.Groups[group].Type.String())
		}
		if int(index) >= len(info.Stages) {
			return debug.Errorf("Group [%d]: %s index [%d] out of range, have [%d] stages", group, name, index, len(info.Stages))
		}
		if s := info.Stages[index].Stage; !hasBits(want, s) {
			return debug.Errorf("Group [%d]: %s index [%d] is a %s stage, want: %q", group, name, index, s.String(), want.String())
		}
		return nil
	}

	for i, g := range info.Groups {
		var err error
		switch g.Type {
		case ShaderGroupGeneral:
			err = firstError(
				slot(i, "General", g.General, ShaderStageRayGen|ShaderStageMiss|ShaderStageCallable, true),
				slot(i, "ClosestHit", g.ClosestHit, 0, false),
				slot(i, "AnyHit", g.AnyHit, 0, false),
				slot(i, "Intersection", g.Intersection, 0, false),
			)
		case ShaderGroupTrianglesHitGroup:
			err = firstError(
				slot(i, "General", g.General, 0, false),
				slot(i, "ClosestHit", g.ClosestHit, ShaderStageClosestHit, false),
				slot(i, "AnyHit", g.AnyHit, ShaderStageAnyHit, false),
				slot(i, "Intersection", g.Intersection, 0, false),
			)
		case ShaderGroupProceduralHitGroup:
			err = firstError(
				slot(i, "General", g.General, 0, false),
				slot(i, "ClosestHit", g.ClosestHit, ShaderStageClosestHit, false),
				slot(i, "AnyHit", g.AnyHit, ShaderStageAnyHit, false),
				slot(i, "Intersection", g.Intersection, ShaderStageIntersection, true),
			)
		default:
			err = debug.Errorf("Group [%d]: unknown type %s", i, g.Type.String())
		}
		if err != nil {
			return err
		}
	}

	return validateDynamicStates(info.DynamicStates, BindPointRayTracing)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (rayTracingKind) request(p *pending[RayTracingPipelineCreateInfo], common RequestCommon) RayTracingPipelineRequest {
	info := &p.info
	r := RayTracingPipelineRequest{
		RequestCommon:     common,
		Stages:            make([]ShaderStageRequest, len(info.Stages)),
		Groups:            info.Groups,
		MaxRecursionDepth: info.MaxRecursionDepth,
		DynamicStates:     info.DynamicStates,
	}
	for i := range info.Stages {
		r.Stages[i] = info.Stages[i].request()
	}
	return r
}

func (rayTracingKind) create(d *Device, opts *CreateOptions, requests []RayTracingPipelineRequest, pipelines []PipelineHandle) Status {
	return d.driver.CreateRayTracingPipelines(opts.Deferred, opts.Cache, requests, opts.Allocator, pipelines)
}
