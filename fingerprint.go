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

import "strings"

type BindPoint uint32

const (
	BindPointGraphics   BindPoint = 0
	BindPointCompute    BindPoint = 1
	BindPointRayTracing BindPoint = 1000165000
)

func (b BindPoint) String() string {
	switch b {
	case BindPointGraphics:
		return "Graphics"
	case BindPointCompute:
		return "Compute"
	case BindPointRayTracing:
		return "RayTracing"
	default:
		return "BindPoint(" + toHex(uint32(b)) + ")"
	}
}

func (b BindPoint) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

type PipelineCreateFlags uint32

const (
	PipelineCreateDisableOptimization            PipelineCreateFlags = 0x00000001
	PipelineCreateAllowDerivatives               PipelineCreateFlags = 0x00000002
	PipelineCreateDerivative                     PipelineCreateFlags = 0x00000004
	PipelineCreateViewIndexFromDeviceIndex       PipelineCreateFlags = 0x00000008
	PipelineCreateDispatchBase                   PipelineCreateFlags = 0x00000010
	PipelineCreateFailOnPipelineCompileRequired  PipelineCreateFlags = 0x00000100
	PipelineCreateEarlyReturnOnFailure           PipelineCreateFlags = 0x00000200
	PipelineCreateLinkTimeOptimization           PipelineCreateFlags = 0x00000400
	PipelineCreateLibrary                        PipelineCreateFlags = 0x00000800
	PipelineCreateRetainLinkTimeOptimizationInfo PipelineCreateFlags = 0x00800000

	// fingerprintIgnoredFlags do not change the compiled unit, two requests
	// that only differ in them produce interchangeable pipelines.
	fingerprintIgnoredFlags = PipelineCreateDisableOptimization | PipelineCreateAllowDerivatives | PipelineCreateDerivative
)

func (f PipelineCreateFlags) String() string {
	str := ""

	if hasBits(f, PipelineCreateDisableOptimization) {
		str += "DisableOptimization|"
	}
	if hasBits(f, PipelineCreateAllowDerivatives) {
		str += "AllowDerivatives|"
	}
	if hasBits(f, PipelineCreateDerivative) {
		str += "Derivative|"
	}
	if hasBits(f, PipelineCreateViewIndexFromDeviceIndex) {
		str += "ViewIndexFromDeviceIndex|"
	}
	if hasBits(f, PipelineCreateDispatchBase) {
		str += "DispatchBase|"
	}
	if hasBits(f, PipelineCreateFailOnPipelineCompileRequired) {
		str += "FailOnPipelineCompileRequired|"
	}
	if hasBits(f, PipelineCreateEarlyReturnOnFailure) {
		str += "EarlyReturnOnFailure|"
	}
	if hasBits(f, PipelineCreateLinkTimeOptimization) {
		str += "LinkTimeOptimization|"
	}
	if hasBits(f, PipelineCreateLibrary) {
		str += "Library|"
	}
	if hasBits(f, PipelineCreateRetainLinkTimeOptimizationInfo) {
		str += "RetainLinkTimeOptimizationInfo|"
	}

	return strings.TrimSuffix(str, "|")
}

func (f PipelineCreateFlags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Fingerprints is the identity of a compiled unit. State only covers fixed
// function state and is equal for pipelines that differ only in shaders.
type Fingerprints struct {
	Fingerprint uint64
	State       uint64
}

func (f Fingerprints) String() string {
	return genID(f.Fingerprint, f.State)
}

// FingerprintInput holds every hash that contributes to a fingerprint.
// States lists fixed function block hashes in canonical order:
// vertex input, input assembly, tessellation, viewport, rasterization,
// multisample, depth stencil, color blend. Zero marks an absent block.
type FingerprintInput struct {
	BindPoint     BindPoint
	Flags         PipelineCreateFlags
	Stages        []uint64
	States        []uint64
	DynamicStates []DynamicState
	Layout        uint64

	HasRenderTarget bool
	RenderTarget    uint64

	// Extensions only covers extension data that changes the compiled
	// binary, compiler control and creation feedback never contribute.
	HasExtensions bool
	Extensions    uint64
}

func ComputeFingerprints(in FingerprintInput) Fingerprints {
	s := newHasher()
	s.uint32(uint32(len(in.States)))
	for _, v := range in.States {
		s.uint64(v)
	}
	dynamic := canonicalDynamicStates(in.DynamicStates)
	s.uint32(uint32(len(dynamic)))
	for _, d := range dynamic {
		s.uint32(uint32(d))
	}
	state := s.sum()

	f := newHasher()
	f.uint32(uint32(in.BindPoint))
	f.uint32(uint32(in.Flags &^ fingerprintIgnoredFlags))
	f.uint32(uint32(len(in.Stages)))
	for _, v := range in.Stages {
		f.uint64(v)
	}
	f.uint64(state)
	f.uint64(in.Layout)
	f.optional(in.HasRenderTarget, func() uint64 { return in.RenderTarget })
	f.optional(in.HasExtensions, func() uint64 { return in.Extensions })

	return Fingerprints{Fingerprint: f.sum(), State: state}
}

// graphicsStateHashes returns the fixed function block hashes in canonical order.
func graphicsStateHashes(
	vertexInput *VertexInputState, inputAssembly *InputAssemblyState, tessellation *TessellationState,
	viewport *ViewportState, rasterization *RasterizationState, multisample *MultisampleState,
	depthStencil *DepthStencilState, colorBlend *ColorBlendState,
) []uint64 {
	hashes := make([]uint64, 0, 8)
	hashes = append(hashes,
		blockHash(vertexInput), blockHash(inputAssembly), blockHash(tessellation), blockHash(viewport),
		blockHash(rasterization), blockHash(multisample), blockHash(depthStencil), blockHash(colorBlend),
	)
	return hashes
}

type stateBlock interface {
	Hash() uint64
}

func blockHash[T any, P interface {
	*T
	stateBlock
}](b P) uint64 {
	if b == nil {
		return 0
	}
	return b.Hash()
}
