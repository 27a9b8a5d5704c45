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
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/minio/sha256-simd"
	"goarrg.com/debug"
	"goarrg.com/gmath"
)

type ShaderStage uint32

const (
	ShaderStageVertex                 ShaderStage = 0x00000001
	ShaderStageTessellationControl    ShaderStage = 0x00000002
	ShaderStageTessellationEvaluation ShaderStage = 0x00000004
	ShaderStageGeometry               ShaderStage = 0x00000008
	ShaderStageFragment               ShaderStage = 0x00000010
	ShaderStageCompute                ShaderStage = 0x00000020
	ShaderStageTask                   ShaderStage = 0x00000040
	ShaderStageMesh                   ShaderStage = 0x00000080
	ShaderStageRayGen                 ShaderStage = 0x00000100
	ShaderStageAnyHit                 ShaderStage = 0x00000200
	ShaderStageClosestHit             ShaderStage = 0x00000400
	ShaderStageMiss                   ShaderStage = 0x00000800
	ShaderStageIntersection           ShaderStage = 0x00001000
	ShaderStageCallable               ShaderStage = 0x00002000

	ShaderStagePreRasterization = ShaderStageVertex | ShaderStageTessellationControl | ShaderStageTessellationEvaluation |
		ShaderStageGeometry | ShaderStageTask | ShaderStageMesh
	ShaderStageGraphics   = ShaderStagePreRasterization | ShaderStageFragment
	ShaderStageRayTracing = ShaderStageRayGen | ShaderStageAnyHit | ShaderStageClosestHit | ShaderStageMiss |
		ShaderStageIntersection | ShaderStageCallable
)

func (s ShaderStage) String() string {
	str := ""

	if hasBits(s, ShaderStageVertex) {
		str += "Vertex|"
	}
	if hasBits(s, ShaderStageTessellationControl) {
		str += "TessellationControl|"
	}
	if hasBits(s, ShaderStageTessellationEvaluation) {
		str += "TessellationEvaluation|"
	}
	if hasBits(s, ShaderStageGeometry) {
		str += "Geometry|"
	}
	if hasBits(s, ShaderStageFragment) {
		str += "Fragment|"
	}
	if hasBits(s, ShaderStageCompute) {
		str += "Compute|"
	}
	if hasBits(s, ShaderStageTask) {
		str += "Task|"
	}
	if hasBits(s, ShaderStageMesh) {
		str += "Mesh|"
	}
	if hasBits(s, ShaderStageRayGen) {
		str += "RayGen|"
	}
	if hasBits(s, ShaderStageAnyHit) {
		str += "AnyHit|"
	}
	if hasBits(s, ShaderStageClosestHit) {
		str += "ClosestHit|"
	}
	if hasBits(s, ShaderStageMiss) {
		str += "Miss|"
	}
	if hasBits(s, ShaderStageIntersection) {
		str += "Intersection|"
	}
	if hasBits(s, ShaderStageCallable) {
		str += "Callable|"
	}

	return strings.TrimSuffix(str, "|")
}

func (s ShaderStage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// single reports whether exactly one stage bit is set.
func (s ShaderStage) single() bool {
	return s != 0 && s&(s-1) == 0
}

type ShaderEntryPoint struct {
	Name  string
	Stage ShaderStage
	// Workgroup is only set for compute, task and mesh entry points.
	Workgroup gmath.Extent3u32
}

type ShaderReflection struct {
	EntryPoints []ShaderEntryPoint
}

func (r *ShaderReflection) lookup(name string) (ShaderEntryPoint, bool) {
	i := slices.IndexFunc(r.EntryPoints, func(e ShaderEntryPoint) bool { return e.Name == name })
	if i < 0 {
		return ShaderEntryPoint{}, false
	}
	return r.EntryPoints[i], true
}

// ShaderModule is loaded SPIR-V plus optional reflection. Modules are
// immutable once created and may be shared by any number of stages.
type ShaderModule struct {
	name       string
	code       []uint32
	digest     [sha256.Size]byte
	reflection *ShaderReflection
}

func NewShaderModule(name string, code []uint32, reflection *ShaderReflection) *ShaderModule {
	m := &ShaderModule{
		name:       name,
		code:       slices.Clone(code),
		reflection: reflection,
	}
	buf := make([]byte, 4*len(code))
	for i, w := range code {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	m.digest = sha256.Sum256(buf)
	return m
}

func (m *ShaderModule) Name() string {
	return m.name
}

func (m *ShaderModule) Code() []uint32 {
	return m.code
}

func (m *ShaderModule) Reflection() *ShaderReflection {
	return m.reflection
}

// Hash is the module content hash, it only depends on the code.
func (m *ShaderModule) Hash() uint64 {
	return binary.LittleEndian.Uint64(m.digest[:8])
}

func (m *ShaderModule) Digest() [sha256.Size]byte {
	return m.digest
}

func (m *ShaderModule) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"name\": %q,", m.name))
	buff.WriteString(fmt.Sprintf("\"hash\": %q,", toHex(m.Hash())))
	buff.WriteString(fmt.Sprintf("\"codeSize\": %d", 4*len(m.code)))
	if m.reflection != nil {
		buff.WriteString(fmt.Sprintf(",\"entryPoints\": %s", jsonString(m.reflection.EntryPoints)))
	}

	buff.WriteString("}")
	return buff.Bytes(), nil
}

type SpecializationMapEntry struct {
	ConstantID uint32
	Offset     uint32
	Size       uint32
}

type SpecializationInfo struct {
	MapEntries []SpecializationMapEntry
	Data       []byte
}

func (s *SpecializationInfo) Hash() uint64 {
	h := newHasher()
	h.uint32(uint32(len(s.MapEntries)))
	for _, e := range s.MapEntries {
		h.uint32(e.ConstantID)
		h.uint32(e.Offset)
		h.uint32(e.Size)
	}
	h.bytes(s.Data)
	return h.sum()
}

func (s *SpecializationInfo) validate() error {
	for i, e := range s.MapEntries {
		if uint64(e.Offset)+uint64(e.Size) > uint64(len(s.Data)) {
			return debug.Errorf("SpecializationInfo: entry [%d] constant [%d] range [%d, %d) outside of data [%d bytes]",
				i, e.ConstantID, e.Offset, e.Offset+e.Size, len(s.Data))
		}
	}
	return nil
}

func (s *SpecializationInfo) clone() *SpecializationInfo {
	return &SpecializationInfo{MapEntries: slices.Clone(s.MapEntries), Data: slices.Clone(s.Data)}
}

type ShaderStageFlags uint32

const (
	ShaderStageAllowVaryingSubgroupSize ShaderStageFlags = 0x00000001
	ShaderStageRequireFullSubgroups     ShaderStageFlags = 0x00000002
)

// ShaderStageInfo is one shader stage of a pipeline.
type ShaderStageInfo struct {
	Stage          ShaderStage
	Flags          ShaderStageFlags
	Module         *ShaderModule
	EntryPoint     string
	Specialization *SpecializationInfo
}

// Hash combines the module content hash, the entry point name and the
// specialization block.
func (s *ShaderStageInfo) Hash() uint64 {
	var spec uint64
	if s.Specialization != nil {
		spec = s.Specialization.Hash()
	}
	return combineHashes(s.Module.Hash(), hashString(s.EntryPoint), spec)
}

func (s *ShaderStageInfo) validate() error {
	if !s.Stage.single() {
		return debug.Errorf("ShaderStageInfo: stage must be exactly one stage, have: %q", s.Stage.String())
	}
	if s.Module == nil {
		return debug.Errorf("ShaderStageInfo: %s stage has no module", s.Stage.String())
	}
	if s.EntryPoint == "" {
		return debug.Errorf("ShaderStageInfo: %s stage %q has no entry point", s.Stage.String(), s.Module.name)
	}
	if r := s.Module.reflection; r != nil {
		e, ok := r.lookup(s.EntryPoint)
		if !ok {
			return debug.Errorf("ShaderStageInfo: module %q has no entry point %q", s.Module.name, s.EntryPoint)
		}
		if e.Stage != s.Stage {
			return debug.Errorf("ShaderStageInfo: entry point %q of module %q is a %s entry point, not %s",
				s.EntryPoint, s.Module.name, e.Stage.String(), s.Stage.String())
		}
	}
	if s.Specialization != nil {
		if err := s.Specialization.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s ShaderStageInfo) clone() ShaderStageInfo {
	if s.Specialization != nil {
		s.Specialization = s.Specialization.clone()
	}
	return s
}

func (s *ShaderStageInfo) request() ShaderStageRequest {
	return ShaderStageRequest{
		Stage:          s.Stage,
		Flags:          s.Flags,
		Code:           s.Module.code,
		CodeHash:       s.Module.Hash(),
		Name:           s.Module.name,
		EntryPoint:     s.EntryPoint,
		Specialization: s.Specialization,
	}
}

// ShaderStageRequest is the driver facing form of ShaderStageInfo.
type ShaderStageRequest struct {
	Stage          ShaderStage
	Flags          ShaderStageFlags
	Name           string
	Code           []uint32
	CodeHash       uint64
	EntryPoint     string
	Specialization *SpecializationInfo
}

func hashStages(stages []ShaderStageInfo) []uint64 {
	hashes := make([]uint64, len(stages))
	for i := range stages {
		hashes[i] = stages[i].Hash()
	}
	return hashes
}

func validateStages(stages []ShaderStageInfo, allowed ShaderStage) error {
	var seen ShaderStage
	for i := range stages {
		s := &stages[i]
		if err := s.validate(); err != nil {
			return debug.ErrorWrapf(err, "Stage [%d]", i)
		}
		if !hasBits(allowed, s.Stage) {
			return debug.Errorf("Stage [%d]: %s stage is not allowed here, allowed: %q", i, s.Stage.String(), allowed.String())
		}
		if !hasBits(ShaderStageRayTracing, s.Stage) {
			if hasBits(seen, s.Stage) {
				return debug.Errorf("Stage [%d]: duplicate %s stage", i, s.Stage.String())
			}
			seen |= s.Stage
		}
	}
	return nil
}
