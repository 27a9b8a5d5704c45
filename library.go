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
	"bytes"
	"fmt"
	"slices"
	"strings"

	"goarrg.com/debug"
	"goarrg.com/rhi/pso/internal/container"
)

// LibrarySubset is one of the four disjoint parts a graphics pipeline can
// be split into.
type LibrarySubset uint32

const (
	LibrarySubsetVertexInputInterface LibrarySubset = iota
	LibrarySubsetPreRasterizationShaders
	LibrarySubsetFragmentShader
	LibrarySubsetFragmentOutputInterface
)

func (s LibrarySubset) String() string {
	switch s {
	case LibrarySubsetVertexInputInterface:
		return "VertexInputInterface"
	case LibrarySubsetPreRasterizationShaders:
		return "PreRasterizationShaders"
	case LibrarySubsetFragmentShader:
		return "FragmentShader"
	case LibrarySubsetFragmentOutputInterface:
		return "FragmentOutputInterface"
	default:
		return "LibrarySubset(" + toHex(uint32(s)) + ")"
	}
}

func (s LibrarySubset) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s LibrarySubset) flag() LibrarySubsetFlags {
	return 1 << s
}

type LibrarySubsetFlags uint32

// librarySubsetsRequired must be present in every complete graphics pipeline.
var librarySubsetsRequired = LibrarySubsetVertexInputInterface.flag() | LibrarySubsetPreRasterizationShaders.flag()

func (f LibrarySubsetFlags) String() string {
	str := ""
	for s := LibrarySubsetVertexInputInterface; s <= LibrarySubsetFragmentOutputInterface; s++ {
		if f&s.flag() != 0 {
			str += s.String() + "|"
		}
	}
	return strings.TrimSuffix(str, "|")
}

// LibraryFragmentCreateInfo describes one fragment. Only the fields of the
// fragment's subset may be set:
//
//	VertexInputInterface:    VertexInput, InputAssembly
//	PreRasterizationShaders: Stages (pre rasterization), Layout, Tessellation, Viewport, Rasterization
//	FragmentShader:          Stages (fragment), Layout, Multisample, DepthStencil
//	FragmentOutputInterface: ColorBlend, Multisample
//
// DynamicStates and RenderTarget are valid for every subset.
type LibraryFragmentCreateInfo struct {
	Label  string
	Flags  PipelineCreateFlags
	Layout *PipelineLayout
	Stages []ShaderStageInfo

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

type VertexInputInterfaceRequest struct {
	Label         string
	Flags         PipelineCreateFlags
	VertexInput   *VertexInputState
	InputAssembly *InputAssemblyState
	DynamicStates []DynamicState
	RenderTarget  *RenderTargetInfo
}

type PreRasterizationShadersRequest struct {
	Label         string
	Flags         PipelineCreateFlags
	Layout        PipelineLayoutHandle
	Stages        []ShaderStageRequest
	Tessellation  *TessellationState
	Viewport      *ViewportState
	Rasterization *RasterizationState
	DynamicStates []DynamicState
	RenderTarget  *RenderTargetInfo
}

type FragmentShaderRequest struct {
	Label         string
	Flags         PipelineCreateFlags
	Layout        PipelineLayoutHandle
	Stages        []ShaderStageRequest
	Multisample   *MultisampleState
	DepthStencil  *DepthStencilState
	DynamicStates []DynamicState
	RenderTarget  *RenderTargetInfo
}

type FragmentOutputInterfaceRequest struct {
	Label         string
	Flags         PipelineCreateFlags
	ColorBlend    *ColorBlendState
	Multisample   *MultisampleState
	DynamicStates []DynamicState
	RenderTarget  *RenderTargetInfo
}

// PipelineLibrary owns compiled fragments. Pipelines linking a fragment only
// keep its handle, the library must outlive them.
type PipelineLibrary struct {
	noCopy    noCopy
	dev       *Device
	driver    LibraryDriver
	label     string
	fragments container.Stack[*LibraryFragment]
}

func (d *Device) NewPipelineLibrary(label string) (*PipelineLibrary, error) {
	d.noCopy.check()
	driver, ok := d.driver.(LibraryDriver)
	if !d.config.features.PipelineLibrary || !ok {
		return nil, ErrorCapabilityUnavailable{Capability: "PipelineLibrary"}
	}
	l := &PipelineLibrary{dev: d, driver: driver, label: label}
	l.noCopy.init()
	return l, nil
}

func (l *PipelineLibrary) Label() string {
	return l.label
}

// Fragments returns every fragment in creation order.
func (l *PipelineLibrary) Fragments() []*LibraryFragment {
	return l.fragments.Data()
}

func (l *PipelineLibrary) subsets() LibrarySubsetFlags {
	var flags LibrarySubsetFlags
	for _, f := range l.fragments.Data() {
		flags |= f.subset.flag()
	}
	return flags
}

// CompileFragment validates info against subset and compiles it with one
// driver call. Nothing reaches the driver if validation fails.
func (l *PipelineLibrary) CompileFragment(subset LibrarySubset, info LibraryFragmentCreateInfo, opts CreateOptions) (*LibraryFragment, error) {
	l.noCopy.check()
	d := l.dev

	if opts.Library != nil {
		return nil, invalidUsage("Fragment %q: fragments can not link other libraries", info.Label)
	}
	if err := validateFragment(d, subset, &info); err != nil {
		return nil, ErrorInvalidUsage{Err: debug.ErrorWrapf(err, "Invalid %s fragment %q", subset.String(), info.Label)}
	}
	info = cloneFragmentInfo(info)
	info.Flags |= PipelineCreateLibrary

	f := &LibraryFragment{
		lib:       l,
		subset:    subset,
		label:     info.Label,
		allocator: opts.Allocator,
	}

	// only shader subsets carry a layout
	var layoutHash uint64
	if subset == LibrarySubsetPreRasterizationShaders || subset == LibrarySubsetFragmentShader {
		layout, err := d.resolveLayout(info.Layout)
		if err != nil {
			return nil, err
		}
		f.layout = layout
		layoutHash = layout.hash
	}

	input := FingerprintInput{
		BindPoint: BindPointGraphics,
		Flags:     info.Flags,
		Stages:    hashStages(info.Stages),
		States: graphicsStateHashes(
			info.VertexInput, info.InputAssembly, info.Tessellation, info.Viewport,
			info.Rasterization, info.Multisample, info.DepthStencil, info.ColorBlend,
		),
		DynamicStates: info.DynamicStates,
		Layout:        layoutHash,
		HasExtensions: true,
		Extensions:    uint64(subset.flag()),
	}
	if info.RenderTarget != nil {
		input.HasRenderTarget = true
		input.RenderTarget = info.RenderTarget.Hash()
	}
	f.fingerprints = ComputeFingerprints(input)

	var layoutHandle PipelineLayoutHandle
	if f.layout != nil {
		layoutHandle = f.layout.handle
	}
	stages := make([]ShaderStageRequest, len(info.Stages))
	for i := range info.Stages {
		stages[i] = info.Stages[i].request()
	}

	var request any
	var status Status
	driver := l.driver
	instance.logger.VPrintf("Creating %s fragment %q", subset.String(), info.Label)

	switch subset {
	case LibrarySubsetVertexInputInterface:
		r := &VertexInputInterfaceRequest{
			Label: info.Label, Flags: info.Flags,
			VertexInput: info.VertexInput, InputAssembly: info.InputAssembly,
			DynamicStates: info.DynamicStates, RenderTarget: info.RenderTarget,
		}
		request = r
		f.handle, status = driver.CreateVertexInputInterface(opts.Cache, r, opts.Allocator)
	case LibrarySubsetPreRasterizationShaders:
		r := &PreRasterizationShadersRequest{
			Label: info.Label, Flags: info.Flags, Layout: layoutHandle, Stages: stages,
			Tessellation: info.Tessellation, Viewport: info.Viewport, Rasterization: info.Rasterization,
			DynamicStates: info.DynamicStates, RenderTarget: info.RenderTarget,
		}
		request = r
		f.handle, status = driver.CreatePreRasterizationShaders(opts.Cache, r, opts.Allocator)
	case LibrarySubsetFragmentShader:
		r := &FragmentShaderRequest{
			Label: info.Label, Flags: info.Flags, Layout: layoutHandle, Stages: stages,
			Multisample: info.Multisample, DepthStencil: info.DepthStencil,
			DynamicStates: info.DynamicStates, RenderTarget: info.RenderTarget,
		}
		request = r
		f.handle, status = driver.CreateFragmentShader(opts.Cache, r, opts.Allocator)
	case LibrarySubsetFragmentOutputInterface:
		r := &FragmentOutputInterfaceRequest{
			Label: info.Label, Flags: info.Flags,
			ColorBlend: info.ColorBlend, Multisample: info.Multisample,
			DynamicStates: info.DynamicStates, RenderTarget: info.RenderTarget,
		}
		request = r
		f.handle, status = driver.CreateFragmentOutputInterface(opts.Cache, r, opts.Allocator)
	}

	if !status.Succeeded() || f.handle == NullHandle {
		if f.handle != NullHandle {
			d.driver.DestroyPipeline(f.handle, opts.Allocator)
		}
		if status.Succeeded() {
			status = StatusErrorUnknown
		}
		err := ErrorCreationFailed{BindPoint: BindPointGraphics, Label: info.Label, Status: status}
		if d.config.diagnostics {
			err.Dump = prettyString(map[string]any{
				"subset":       subset,
				"fingerprints": f.fingerprints.String(),
				"request":      request,
			})
		}
		if f.layout != nil {
			f.layout.release()
		}
		instance.logger.EPrintf("%s", err.Error())
		return nil, err
	}

	l.fragments.Push(f)
	return f, nil
}

func validateFragment(d *Device, subset LibrarySubset, info *LibraryFragmentCreateInfo) error {
	type field struct {
		name string
		set  bool
	}
	fields := []field{
		{"VertexInput", info.VertexInput != nil},
		{"InputAssembly", info.InputAssembly != nil},
		{"Tessellation", info.Tessellation != nil},
		{"Viewport", info.Viewport != nil},
		{"Rasterization", info.Rasterization != nil},
		{"Multisample", info.Multisample != nil},
		{"DepthStencil", info.DepthStencil != nil},
		{"ColorBlend", info.ColorBlend != nil},
		{"Layout", info.Layout != nil},
	}

	var allowedFields []string
	var allowedStages ShaderStage
	switch subset {
	case LibrarySubsetVertexInputInterface:
		allowedFields = []string{"VertexInput", "InputAssembly"}
	case LibrarySubsetPreRasterizationShaders:
		allowedFields = []string{"Tessellation", "Viewport", "Rasterization", "Layout"}
		allowedStages = ShaderStagePreRasterization
	case LibrarySubsetFragmentShader:
		allowedFields = []string{"Multisample", "DepthStencil", "Layout"}
		allowedStages = ShaderStageFragment
	case LibrarySubsetFragmentOutputInterface:
		allowedFields = []string{"ColorBlend", "Multisample"}
	default:
		return debug.Errorf("Unknown subset: %s", subset.String())
	}
	for _, f := range fields {
		if f.set && !slices.Contains(allowedFields, f.name) {
			return debug.Errorf("%s is not part of the %s subset", f.name, subset.String())
		}
	}

	if allowedStages == 0 && len(info.Stages) > 0 {
		return debug.Errorf("%s subset can not have shader stages, have [%d]", subset.String(), len(info.Stages))
	}
	if err := validateStages(info.Stages, allowedStages); err != nil {
		return err
	}
	var stages ShaderStage
	for _, s := range info.Stages {
		stages |= s.Stage
	}

	switch subset {
	case LibrarySubsetVertexInputInterface:
		if info.VertexInput == nil && info.InputAssembly == nil {
			return debug.Errorf("Needs VertexInput or InputAssembly")
		}
		if info.VertexInput != nil {
			if err := info.VertexInput.validate(); err != nil {
				return err
			}
		}
		if info.InputAssembly != nil {
			if err := info.InputAssembly.validate(); err != nil {
				return err
			}
		}
	case LibrarySubsetPreRasterizationShaders:
		if stages&(ShaderStageVertex|ShaderStageMesh) == 0 {
			return debug.Errorf("Needs a Vertex or Mesh stage, have: %q", stages.String())
		}
		if info.Rasterization == nil {
			return debug.Errorf("Needs Rasterization")
		}
		if hasBits(stages, ShaderStageVertex) && stages&(ShaderStageTask|ShaderStageMesh) != 0 {
			return debug.Errorf("Vertex and Task/Mesh stages are mutually exclusive")
		}
		if err := validatePreRasterization(stages, nil, info.Tessellation); err != nil {
			return err
		}
	case LibrarySubsetFragmentShader:
		if !hasBits(stages, ShaderStageFragment) {
			return debug.Errorf("Needs a Fragment stage")
		}
		if info.Multisample != nil {
			if err := info.Multisample.validate(); err != nil {
				return err
			}
		}
	case LibrarySubsetFragmentOutputInterface:
		if info.ColorBlend == nil && info.RenderTarget == nil {
			return debug.Errorf("Needs ColorBlend or RenderTarget")
		}
		if info.Multisample != nil {
			if err := info.Multisample.validate(); err != nil {
				return err
			}
		}
		if err := validateRenderTarget(d, info.ColorBlend, info.RenderTarget); err != nil {
			return err
		}
	}

	return validateDynamicStates(info.DynamicStates, BindPointGraphics)
}

func cloneFragmentInfo(info LibraryFragmentCreateInfo) LibraryFragmentCreateInfo {
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
	if info.RenderTarget != nil {
		info.RenderTarget = info.RenderTarget.clone()
	}
	info.DynamicStates = slices.Clone(info.DynamicStates)
	return info
}

// Destroy destroys every fragment, most recent first.
func (l *PipelineLibrary) Destroy() {
	l.noCopy.check()
	l.fragments.Drain(func(f *LibraryFragment) {
		instance.logger.VPrintf("Destroying %s fragment %q %s", f.subset.String(), f.label, toHex(f.handle))
		l.dev.driver.DestroyPipeline(f.handle, f.allocator)
		if f.layout != nil {
			f.layout.release()
			f.layout = nil
		}
		f.handle = NullHandle
	})
	l.noCopy.close()
}

func (l *PipelineLibrary) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"label\": %q,", l.label))
	buff.WriteString(fmt.Sprintf("\"fragments\": %s", jsonString(l.fragments.Data())))

	buff.WriteString("}")
	return buff.Bytes(), nil
}

// LibraryFragment is one compiled subset owned by a PipelineLibrary.
type LibraryFragment struct {
	lib          *PipelineLibrary
	subset       LibrarySubset
	label        string
	handle       PipelineHandle
	allocator    HostAllocator
	fingerprints Fingerprints
	layout       *PipelineLayout
}

func (f *LibraryFragment) alive() bool {
	return f.handle != NullHandle && f.lib.noCopy.alive()
}

func (f *LibraryFragment) Subset() LibrarySubset {
	return f.subset
}

func (f *LibraryFragment) Label() string {
	return f.label
}

func (f *LibraryFragment) Handle() PipelineHandle {
	return f.handle
}

func (f *LibraryFragment) Fingerprints() Fingerprints {
	return f.fingerprints
}

func (f *LibraryFragment) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"label\": %q,", f.label))
	buff.WriteString(fmt.Sprintf("\"subset\": %q,", f.subset.String()))
	buff.WriteString(fmt.Sprintf("\"handle\": %q,", toHex(f.handle)))
	buff.WriteString(fmt.Sprintf("\"fingerprint\": %q", toHex(f.fingerprints.Fingerprint)))

	buff.WriteString("}")
	return buff.Bytes(), nil
}
