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

type CompilerControlFlags uint32

const (
	CompilerControlNone          CompilerControlFlags = 0
	CompilerControlPreferSpeed   CompilerControlFlags = 0x00000001
	CompilerControlPreferQuality CompilerControlFlags = 0x00000002
	CompilerControlNoCache       CompilerControlFlags = 0x00000004
)

func (f CompilerControlFlags) String() string {
	str := ""

	if hasBits(f, CompilerControlPreferSpeed) {
		str += "PreferSpeed|"
	}
	if hasBits(f, CompilerControlPreferQuality) {
		str += "PreferQuality|"
	}
	if hasBits(f, CompilerControlNoCache) {
		str += "NoCache|"
	}
	if str == "" {
		return "None"
	}

	return strings.TrimSuffix(str, "|")
}

type RobustnessBehavior uint32

const (
	RobustnessDeviceDefault RobustnessBehavior = iota
	RobustnessDisabled
	RobustnessRobustAccess
	RobustnessRobustAccess2
)

type PipelineRobustness struct {
	StorageBuffers RobustnessBehavior
	UniformBuffers RobustnessBehavior
	VertexInputs   RobustnessBehavior
	Images         RobustnessBehavior
}

func (r *PipelineRobustness) Hash() uint64 {
	h := newHasher()
	h.uint32(uint32(r.StorageBuffers))
	h.uint32(uint32(r.UniformBuffers))
	h.uint32(uint32(r.VertexInputs))
	h.uint32(uint32(r.Images))
	return h.sum()
}

// PipelineExtensions is the optional extension data of one request. Each
// part is only passed to the driver when the device has the matching
// feature enabled.
type PipelineExtensions struct {
	// CompilerControl overrides Config.CompilerControl for this request.
	CompilerControl  *CompilerControlFlags
	CreationFeedback bool
	// Libraries are linked into the pipeline, at most one fragment per subset.
	Libraries  []*LibraryFragment
	Robustness *PipelineRobustness
}

// RequestExtensions is the resolved extension chain of a driver request, a
// nil field means the extension is absent from the chain.
type RequestExtensions struct {
	CompilerControl *CompilerControlFlags
	Feedback        *CreationFeedbackRecord
	Libraries       []PipelineHandle
	Robustness      *PipelineRobustness
}

// extensionStorage backs the pointers of a RequestExtensions, it lives next
// to the request it belongs to and must not move until the driver returns.
type extensionStorage struct {
	compilerControl CompilerControlFlags
	feedback        CreationFeedbackRecord
	robustness      PipelineRobustness
	libraries       []PipelineHandle
	fragments       []*LibraryFragment
}

// resolveExtensions validates ext and wires the enabled parts into a
// chain pointing at store. The returned hash covers the parts that change
// the compiled binary, ok is false when there are none.
func (d *Device) resolveExtensions(kind BindPoint, ext *PipelineExtensions, stages int, store *extensionStorage) (RequestExtensions, uint64, bool, error) {
	var chain RequestExtensions
	h := newHasher()
	hashed := false

	if d.config.features.CompilerControl {
		store.compilerControl = d.config.compilerControl
		if ext.CompilerControl != nil {
			store.compilerControl = *ext.CompilerControl
		}
		chain.CompilerControl = &store.compilerControl
	} else if ext.CompilerControl != nil {
		instance.logger.VPrintf("CompilerControl requested without the CompilerControl feature, ignoring")
	}

	if ext.CreationFeedback {
		if d.config.features.CreationFeedback {
			store.feedback.reset(stages)
			chain.Feedback = &store.feedback
		} else {
			instance.logger.VPrintf("CreationFeedback requested without the CreationFeedback feature, ignoring")
		}
	}

	if len(ext.Libraries) > 0 {
		if !d.config.features.PipelineLibrary {
			return RequestExtensions{}, 0, false, ErrorCapabilityUnavailable{Capability: "PipelineLibrary"}
		}
		if kind != BindPointGraphics {
			return RequestExtensions{}, 0, false, invalidUsage("Library links are only valid for graphics pipelines, have: %s", kind.String())
		}
		bySubset := map[LibrarySubset]*LibraryFragment{}
		for i, f := range ext.Libraries {
			if f == nil || !f.alive() {
				return RequestExtensions{}, 0, false, invalidUsage("Library link [%d] is nil or destroyed", i)
			}
			if prev, ok := bySubset[f.subset]; ok {
				return RequestExtensions{}, 0, false, invalidUsage("Library link [%d] and %s both provide the %s subset",
					i, toHex(prev.handle), f.subset.String())
			}
			bySubset[f.subset] = f
		}
		store.libraries = store.libraries[:0]
		store.fragments = store.fragments[:0]
		h.uint32(uint32(len(bySubset)))
		_ = mapRunFuncSorted(bySubset, func(s LibrarySubset, f *LibraryFragment) error {
			store.libraries = append(store.libraries, f.handle)
			store.fragments = append(store.fragments, f)
			h.uint32(uint32(s))
			h.uint64(f.fingerprints.Fingerprint)
			return nil
		})
		chain.Libraries = store.libraries
		hashed = true
	}

	if ext.Robustness != nil {
		if !d.config.features.PipelineRobustness {
			return RequestExtensions{}, 0, false, ErrorCapabilityUnavailable{Capability: "PipelineRobustness"}
		}
		store.robustness = *ext.Robustness
		chain.Robustness = &store.robustness
		h.bool(true)
		h.uint64(store.robustness.Hash())
		hashed = true
	}

	if !hashed {
		return chain, 0, false, nil
	}
	return chain, h.sum(), true, nil
}

// linkLibrary appends every fragment of l for a subset the request neither
// links nor describes itself, only the first fragment of each subset is used.
// Callers check the library with checkLibraryOption first.
func (d *Device) linkLibrary(chain *RequestExtensions, store *extensionStorage, l *PipelineLibrary, defined LibrarySubsetFlags) {
	have := defined | store.linkedSubsets()
	for _, f := range l.fragments.Data() {
		if have&f.subset.flag() != 0 {
			continue
		}
		have |= f.subset.flag()
		store.libraries = append(store.libraries, f.handle)
		store.fragments = append(store.fragments, f)
	}
	chain.Libraries = store.libraries
}

func (s *extensionStorage) linkedSubsets() LibrarySubsetFlags {
	var flags LibrarySubsetFlags
	for _, f := range s.fragments {
		flags |= f.subset.flag()
	}
	return flags
}
