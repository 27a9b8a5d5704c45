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

	"github.com/gogpu/gputypes"
	"goarrg.com/debug"
	"goarrg.com/gmath"
)

// PrimitiveTopologyPatchList extends gputypes with the tessellation input topology.
const PrimitiveTopologyPatchList gputypes.PrimitiveTopology = 0x100

type PolygonMode uint32

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

func (m PolygonMode) String() string {
	switch m {
	case PolygonModeFill:
		return "Fill"
	case PolygonModeLine:
		return "Line"
	case PolygonModePoint:
		return "Point"
	default:
		return "PolygonMode(" + toHex(uint32(m)) + ")"
	}
}

type LogicOp uint32

const (
	LogicOpClear LogicOp = iota
	LogicOpAnd
	LogicOpAndReverse
	LogicOpCopy
	LogicOpAndInverted
	LogicOpNoOp
	LogicOpXor
	LogicOpOr
	LogicOpNor
	LogicOpEquivalent
	LogicOpInvert
	LogicOpOrReverse
	LogicOpCopyInverted
	LogicOpOrInverted
	LogicOpNand
	LogicOpSet
)

type VertexInputState struct {
	// Buffers[i] is bound at binding i.
	Buffers []gputypes.VertexBufferLayout
}

func (s *VertexInputState) Hash() uint64 {
	h := newHasher()
	h.uint32(uint32(len(s.Buffers)))
	for _, b := range s.Buffers {
		h.uint64(b.ArrayStride)
		h.uint32(uint32(b.StepMode))
		h.uint32(uint32(len(b.Attributes)))
		for _, a := range b.Attributes {
			h.uint32(uint32(a.Format))
			h.uint64(a.Offset)
			h.uint32(a.ShaderLocation)
		}
	}
	return h.sum()
}

func (s *VertexInputState) clone() *VertexInputState {
	c := &VertexInputState{Buffers: slices.Clone(s.Buffers)}
	for i := range c.Buffers {
		c.Buffers[i].Attributes = slices.Clone(c.Buffers[i].Attributes)
	}
	return c
}

func (s *VertexInputState) validate() error {
	locations := map[uint32]int{}
	for i, b := range s.Buffers {
		for _, a := range b.Attributes {
			if prev, ok := locations[a.ShaderLocation]; ok {
				return debug.Errorf("VertexInputState: location [%d] used by both buffer [%d] and buffer [%d]", a.ShaderLocation, prev, i)
			}
			locations[a.ShaderLocation] = i
		}
	}
	return nil
}

type InputAssemblyState struct {
	Topology         gputypes.PrimitiveTopology
	PrimitiveRestart bool
}

func (s *InputAssemblyState) Hash() uint64 {
	h := newHasher()
	h.uint32(uint32(s.Topology))
	h.bool(s.PrimitiveRestart)
	return h.sum()
}

func (s *InputAssemblyState) validate() error {
	if !s.PrimitiveRestart {
		return nil
	}
	switch s.Topology {
	case gputypes.PrimitiveTopologyLineStrip, gputypes.PrimitiveTopologyTriangleStrip, PrimitiveTopologyPatchList:
		return nil
	default:
		return debug.Errorf("InputAssemblyState: PrimitiveRestart is invalid for topology [%d]", s.Topology)
	}
}

type TessellationState struct {
	PatchControlPoints uint32
}

func (s *TessellationState) Hash() uint64 {
	h := newHasher()
	h.uint32(s.PatchControlPoints)
	return h.sum()
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type ViewportState struct {
	Viewports []Viewport
	Scissors  []gmath.Recti32
}

func (s *ViewportState) Hash() uint64 {
	h := newHasher()
	h.uint32(uint32(len(s.Viewports)))
	for _, v := range s.Viewports {
		h.float32(v.X)
		h.float32(v.Y)
		h.float32(v.Width)
		h.float32(v.Height)
		h.float32(v.MinDepth)
		h.float32(v.MaxDepth)
	}
	h.uint32(uint32(len(s.Scissors)))
	for _, r := range s.Scissors {
		h.int32(r.X)
		h.int32(r.Y)
		h.int32(r.W)
		h.int32(r.H)
	}
	return h.sum()
}

func (s *ViewportState) clone() *ViewportState {
	return &ViewportState{Viewports: slices.Clone(s.Viewports), Scissors: slices.Clone(s.Scissors)}
}

type DepthBias struct {
	Enable         bool
	ConstantFactor float32
	Clamp          float32
	SlopeFactor    float32
}

type RasterizationState struct {
	DepthClamp        bool
	RasterizerDiscard bool
	PolygonMode       PolygonMode
	CullMode          gputypes.CullMode
	FrontFace         gputypes.FrontFace
	DepthBias         DepthBias
	LineWidth         float32
}

func (s *RasterizationState) Hash() uint64 {
	h := newHasher()
	h.bool(s.DepthClamp)
	h.bool(s.RasterizerDiscard)
	h.uint32(uint32(s.PolygonMode))
	h.uint32(uint32(s.CullMode))
	h.uint32(uint32(s.FrontFace))
	h.bool(s.DepthBias.Enable)
	h.float32(s.DepthBias.ConstantFactor)
	h.float32(s.DepthBias.Clamp)
	h.float32(s.DepthBias.SlopeFactor)
	h.float32(s.LineWidth)
	return h.sum()
}

type MultisampleState struct {
	gputypes.MultisampleState
	AlphaToOne       bool
	SampleShading    bool
	MinSampleShading float32
}

func (s *MultisampleState) Hash() uint64 {
	h := newHasher()
	h.uint32(uint32(s.Count))
	h.uint64(uint64(s.Mask))
	h.bool(s.AlphaToCoverageEnabled)
	h.bool(s.AlphaToOne)
	h.bool(s.SampleShading)
	h.float32(s.MinSampleShading)
	return h.sum()
}

func (s *MultisampleState) validate() error {
	switch s.Count {
	case 1, 2, 4, 8, 16, 32, 64:
	default:
		return debug.Errorf("MultisampleState: invalid sample count [%d]", s.Count)
	}
	if s.SampleShading && !gmath.InRange(s.MinSampleShading, 0, 1) {
		return debug.Errorf("MultisampleState: MinSampleShading [%f] outside of [0, 1]", s.MinSampleShading)
	}
	return nil
}

type StencilOperation uint32

const (
	StencilOperationKeep StencilOperation = iota
	StencilOperationZero
	StencilOperationReplace
	StencilOperationIncrementClamp
	StencilOperationDecrementClamp
	StencilOperationInvert
	StencilOperationIncrementWrap
	StencilOperationDecrementWrap
)

func (o StencilOperation) String() string {
	switch o {
	case StencilOperationKeep:
		return "Keep"
	case StencilOperationZero:
		return "Zero"
	case StencilOperationReplace:
		return "Replace"
	case StencilOperationIncrementClamp:
		return "IncrementClamp"
	case StencilOperationDecrementClamp:
		return "DecrementClamp"
	case StencilOperationInvert:
		return "Invert"
	case StencilOperationIncrementWrap:
		return "IncrementWrap"
	case StencilOperationDecrementWrap:
		return "DecrementWrap"
	default:
		return "StencilOperation(" + toHex(uint32(o)) + ")"
	}
}

func (o StencilOperation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

type StencilFaceState struct {
	FailOp      StencilOperation
	PassOp      StencilOperation
	DepthFailOp StencilOperation
	Compare     gputypes.CompareFunction
	CompareMask uint32
	WriteMask   uint32
	Reference   uint32
}

func (s StencilFaceState) hash(h hasher) {
	h.uint32(uint32(s.FailOp))
	h.uint32(uint32(s.PassOp))
	h.uint32(uint32(s.DepthFailOp))
	h.uint32(uint32(s.Compare))
	h.uint32(s.CompareMask)
	h.uint32(s.WriteMask)
	h.uint32(s.Reference)
}

type DepthStencilState struct {
	DepthTest      bool
	DepthWrite     bool
	DepthCompare   gputypes.CompareFunction
	DepthBounds    bool
	MinDepthBounds float32
	MaxDepthBounds float32
	StencilTest    bool
	Front, Back    StencilFaceState
}

func (s *DepthStencilState) Hash() uint64 {
	h := newHasher()
	h.bool(s.DepthTest)
	h.bool(s.DepthWrite)
	h.uint32(uint32(s.DepthCompare))
	h.bool(s.DepthBounds)
	h.float32(s.MinDepthBounds)
	h.float32(s.MaxDepthBounds)
	h.bool(s.StencilTest)
	s.Front.hash(h)
	s.Back.hash(h)
	return h.sum()
}

type ColorBlendAttachment struct {
	// Blend is nil when blending is disabled for the attachment.
	Blend     *gputypes.BlendState
	WriteMask gputypes.ColorWriteMask
}

type ColorBlendState struct {
	LogicOpEnable  bool
	LogicOp        LogicOp
	Attachments    []ColorBlendAttachment
	BlendConstants [4]float32
}

func (s *ColorBlendState) Hash() uint64 {
	h := newHasher()
	h.bool(s.LogicOpEnable)
	h.uint32(uint32(s.LogicOp))
	h.uint32(uint32(len(s.Attachments)))
	for _, a := range s.Attachments {
		h.bool(a.Blend != nil)
		if a.Blend != nil {
			h.uint32(uint32(a.Blend.Color.SrcFactor))
			h.uint32(uint32(a.Blend.Color.DstFactor))
			h.uint32(uint32(a.Blend.Color.Operation))
			h.uint32(uint32(a.Blend.Alpha.SrcFactor))
			h.uint32(uint32(a.Blend.Alpha.DstFactor))
			h.uint32(uint32(a.Blend.Alpha.Operation))
		}
		h.uint32(uint32(a.WriteMask))
	}
	for _, c := range s.BlendConstants {
		h.float32(c)
	}
	return h.sum()
}

func (s *ColorBlendState) clone() *ColorBlendState {
	c := *s
	c.Attachments = slices.Clone(s.Attachments)
	for i, a := range c.Attachments {
		if a.Blend != nil {
			b := *a.Blend
			c.Attachments[i].Blend = &b
		}
	}
	return &c
}

type DynamicState uint32

const (
	DynamicStateViewport                    DynamicState = 0
	DynamicStateScissor                     DynamicState = 1
	DynamicStateLineWidth                   DynamicState = 2
	DynamicStateDepthBias                   DynamicState = 3
	DynamicStateBlendConstants              DynamicState = 4
	DynamicStateDepthBounds                 DynamicState = 5
	DynamicStateStencilCompareMask          DynamicState = 6
	DynamicStateStencilWriteMask            DynamicState = 7
	DynamicStateStencilReference            DynamicState = 8
	DynamicStateCullMode                    DynamicState = 1000267000
	DynamicStateFrontFace                   DynamicState = 1000267001
	DynamicStatePrimitiveTopology           DynamicState = 1000267002
	DynamicStateViewportWithCount           DynamicState = 1000267003
	DynamicStateScissorWithCount            DynamicState = 1000267004
	DynamicStateDepthTestEnable             DynamicState = 1000267006
	DynamicStateDepthWriteEnable            DynamicState = 1000267007
	DynamicStateDepthCompareOp              DynamicState = 1000267008
	DynamicStateStencilTestEnable           DynamicState = 1000267010
	DynamicStateStencilOp                   DynamicState = 1000267011
	DynamicStateRayTracingPipelineStackSize DynamicState = 1000347000
	DynamicStateRasterizerDiscardEnable     DynamicState = 1000377001
	DynamicStateDepthBiasEnable             DynamicState = 1000377002
	DynamicStatePrimitiveRestartEnable      DynamicState = 1000377004
)

func (s DynamicState) String() string {
	switch s {
	case DynamicStateViewport:
		return "Viewport"
	case DynamicStateScissor:
		return "Scissor"
	case DynamicStateLineWidth:
		return "LineWidth"
	case DynamicStateDepthBias:
		return "DepthBias"
	case DynamicStateBlendConstants:
		return "BlendConstants"
	case DynamicStateDepthBounds:
		return "DepthBounds"
	case DynamicStateStencilCompareMask:
		return "StencilCompareMask"
	case DynamicStateStencilWriteMask:
		return "StencilWriteMask"
	case DynamicStateStencilReference:
		return "StencilReference"
	case DynamicStateCullMode:
		return "CullMode"
	case DynamicStateFrontFace:
		return "FrontFace"
	case DynamicStatePrimitiveTopology:
		return "PrimitiveTopology"
	case DynamicStateViewportWithCount:
		return "ViewportWithCount"
	case DynamicStateScissorWithCount:
		return "ScissorWithCount"
	case DynamicStateDepthTestEnable:
		return "DepthTestEnable"
	case DynamicStateDepthWriteEnable:
		return "DepthWriteEnable"
	case DynamicStateDepthCompareOp:
		return "DepthCompareOp"
	case DynamicStateStencilTestEnable:
		return "StencilTestEnable"
	case DynamicStateStencilOp:
		return "StencilOp"
	case DynamicStateRayTracingPipelineStackSize:
		return "RayTracingPipelineStackSize"
	case DynamicStateRasterizerDiscardEnable:
		return "RasterizerDiscardEnable"
	case DynamicStateDepthBiasEnable:
		return "DepthBiasEnable"
	case DynamicStatePrimitiveRestartEnable:
		return "PrimitiveRestartEnable"
	default:
		return "DynamicState(" + toHex(uint32(s)) + ")"
	}
}

func (s DynamicState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canonicalDynamicStates returns a sorted copy without duplicates, the order
// a caller lists dynamic states in has no effect on the compiled unit.
func canonicalDynamicStates(states []DynamicState) []DynamicState {
	if len(states) == 0 {
		return nil
	}
	c := slices.Clone(states)
	slices.Sort(c)
	return slices.Compact(c)
}

// RenderTargetInfo describes the attachments a pipeline renders into, two
// pipelines with equal RenderTargetInfo hashes are render pass compatible.
type RenderTargetInfo struct {
	ViewMask      uint32
	ColorFormats  []gputypes.TextureFormat
	DepthFormat   gputypes.TextureFormat
	StencilFormat gputypes.TextureFormat
}

func (r *RenderTargetInfo) Hash() uint64 {
	h := newHasher()
	h.uint32(r.ViewMask)
	h.uint32(uint32(len(r.ColorFormats)))
	for _, f := range r.ColorFormats {
		h.uint32(uint32(f))
	}
	h.uint32(uint32(r.DepthFormat))
	h.uint32(uint32(r.StencilFormat))
	return h.sum()
}

func (r *RenderTargetInfo) clone() *RenderTargetInfo {
	c := *r
	c.ColorFormats = slices.Clone(r.ColorFormats)
	return &c
}
