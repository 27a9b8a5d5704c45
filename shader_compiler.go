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
	"encoding/binary"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"goarrg.com/debug"
	"goarrg.com/gmath"
)

type ShaderCompilerOptions struct {
	SPIRVVersion spirv.Version
	Debug        bool
	SkipValidate bool
}

func DefaultShaderCompilerOptions() ShaderCompilerOptions {
	return ShaderCompilerOptions{SPIRVVersion: spirv.Version1_3}
}

func irStageToShaderStage(s ir.ShaderStage) (ShaderStage, error) {
	switch s {
	case ir.StageVertex:
		return ShaderStageVertex, nil
	case ir.StageTask:
		return ShaderStageTask, nil
	case ir.StageMesh:
		return ShaderStageMesh, nil
	case ir.StageFragment:
		return ShaderStageFragment, nil
	case ir.StageCompute:
		return ShaderStageCompute, nil
	default:
		return 0, debug.Errorf("Unknown shader stage: %d", s)
	}
}

// CompileShaderModule compiles WGSL into a SPIR-V ShaderModule whose
// reflection lists every entry point of the source.
func CompileShaderModule(name, source string, options ShaderCompilerOptions) (*ShaderModule, error) {
	instance.logger.VPrintf("Compiling shader %q", name)

	ast, err := naga.Parse(source)
	if err != nil {
		return nil, debug.ErrorWrapf(err, "Failed to parse shader %q", name)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, debug.ErrorWrapf(err, "Failed to lower shader %q", name)
	}
	if !options.SkipValidate {
		validationErrors, err := naga.Validate(module)
		if err != nil {
			return nil, debug.ErrorWrapf(err, "Failed to validate shader %q", name)
		}
		if len(validationErrors) > 0 {
			return nil, debug.ErrorWrapf(validationErrors[0], "Shader %q is invalid", name)
		}
	}

	reflection := &ShaderReflection{EntryPoints: make([]ShaderEntryPoint, 0, len(module.EntryPoints))}
	for _, e := range module.EntryPoints {
		stage, err := irStageToShaderStage(e.Stage)
		if err != nil {
			return nil, debug.ErrorWrapf(err, "Shader %q entry point %q", name, e.Name)
		}
		reflection.EntryPoints = append(reflection.EntryPoints, ShaderEntryPoint{
			Name:      e.Name,
			Stage:     stage,
			Workgroup: gmath.Extent3u32{X: e.Workgroup[0], Y: e.Workgroup[1], Z: e.Workgroup[2]},
		})
	}

	version := options.SPIRVVersion
	if version == (spirv.Version{}) {
		version = spirv.Version1_3
	}
	spv, err := naga.GenerateSPIRV(module, spirv.Options{Version: version, Debug: options.Debug})
	if err != nil {
		return nil, debug.ErrorWrapf(err, "Failed to generate SPIR-V for shader %q", name)
	}
	if len(spv)%4 != 0 {
		return nil, debug.Errorf("Shader %q: SPIR-V size [%d] is not a multiple of 4", name, len(spv))
	}

	code := make([]uint32, len(spv)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spv[4*i:])
	}

	return NewShaderModule(name, code, reflection), nil
}
