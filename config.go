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
	"io"

	"goarrg.com/debug"
	"goarrg.com/gmath"
	"gopkg.in/yaml.v3"
)

type Features struct {
	PipelineLibrary    bool `yaml:"pipelineLibrary"`
	CreationFeedback   bool `yaml:"creationFeedback"`
	CompilerControl    bool `yaml:"compilerControl"`
	RayTracing         bool `yaml:"rayTracing"`
	PipelineRobustness bool `yaml:"pipelineRobustness"`
}

func (f Features) intersect(o Features) Features {
	return Features{
		PipelineLibrary:    f.PipelineLibrary && o.PipelineLibrary,
		CreationFeedback:   f.CreationFeedback && o.CreationFeedback,
		CompilerControl:    f.CompilerControl && o.CompilerControl,
		RayTracing:         f.RayTracing && o.RayTracing,
		PipelineRobustness: f.PipelineRobustness && o.PipelineRobustness,
	}
}

func (f Features) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"PipelineLibrary\": %t,", f.PipelineLibrary))
	buff.WriteString(fmt.Sprintf("\"CreationFeedback\": %t,", f.CreationFeedback))
	buff.WriteString(fmt.Sprintf("\"CompilerControl\": %t,", f.CompilerControl))
	buff.WriteString(fmt.Sprintf("\"RayTracing\": %t,", f.RayTracing))
	buff.WriteString(fmt.Sprintf("\"PipelineRobustness\": %t", f.PipelineRobustness))

	buff.WriteString("}")
	return buff.Bytes(), nil
}

type Limits struct {
	MaxComputeWorkgroupSize        gmath.Extent3u32 `yaml:"maxComputeWorkgroupSize"`
	MaxComputeWorkgroupInvocations uint32           `yaml:"maxComputeWorkgroupInvocations"`
	MaxRayRecursionDepth           uint32           `yaml:"maxRayRecursionDepth"`
	MaxVertexInputBindings         uint32           `yaml:"maxVertexInputBindings"`
	MaxColorAttachments            uint32           `yaml:"maxColorAttachments"`
}

type Config struct {
	Features Features `yaml:"features"`
	Limits   Limits   `yaml:"limits"`

	// CompilerControl is the default hint applied to every request that does
	// not carry its own, only used with Features.CompilerControl.
	CompilerControl CompilerControlFlags `yaml:"compilerControl"`

	// MaxBatchSize is the number of requests a batch accepts before it
	// refuses further insertions.
	MaxBatchSize   int `yaml:"maxBatchSize"`
	BatchChunkSize int `yaml:"batchChunkSize"`

	// Diagnostics attaches a dump of every stage and state block to driver
	// failures, always on in builds with the psodebug tag.
	Diagnostics bool `yaml:"diagnostics"`
}

func DefaultConfig() Config {
	return Config{
		Limits: Limits{
			MaxComputeWorkgroupSize:        gmath.Extent3u32{X: 1024, Y: 1024, Z: 64},
			MaxComputeWorkgroupInvocations: 1024,
			MaxRayRecursionDepth:           31,
			MaxVertexInputBindings:         32,
			MaxColorAttachments:            8,
		},
		MaxBatchSize:   4096,
		BatchChunkSize: 64,
	}
}

// LoadConfig reads a YAML config, fields missing from the document keep
// their DefaultConfig value.
func LoadConfig(r io.Reader) (Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, debug.ErrorWrapf(err, "Failed to decode config")
	}
	return c, nil
}

func (c *Config) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"Features\": %s,", jsonString(c.Features)))
	buff.WriteString(fmt.Sprintf("\"Limits\": %s,", jsonString(c.Limits)))
	buff.WriteString(fmt.Sprintf("\"CompilerControl\": %q,", c.CompilerControl.String()))
	buff.WriteString(fmt.Sprintf("\"MaxBatchSize\": %d,", c.MaxBatchSize))
	buff.WriteString(fmt.Sprintf("\"BatchChunkSize\": %d,", c.BatchChunkSize))
	buff.WriteString(fmt.Sprintf("\"Diagnostics\": %t", c.Diagnostics))

	buff.WriteString("}")
	return buff.Bytes(), nil
}

func (c *Config) validate() {
	if c.MaxBatchSize <= 0 {
		abort("Config.MaxBatchSize must be >= 1")
	}
	if c.BatchChunkSize <= 0 {
		abort("Config.BatchChunkSize must be >= 1")
	}
	if c.Limits.MaxComputeWorkgroupInvocations == 0 {
		abort("Config.Limits.MaxComputeWorkgroupInvocations must be >= 1")
	}
	if c.Limits.MaxComputeWorkgroupSize.Volume() == 0 {
		abort("Config.Limits.MaxComputeWorkgroupSize must be non zero in every dimension")
	}
	if c.Features.RayTracing && c.Limits.MaxRayRecursionDepth == 0 {
		abort("Config.Limits.MaxRayRecursionDepth must be >= 1 with Features.RayTracing")
	}
}

type config struct {
	features        Features
	limits          Limits
	compilerControl CompilerControlFlags
	maxBatchSize    int
	batchChunkSize  int
	diagnostics     bool
}

func (c *config) use(user Config, driver Driver) {
	c.features = user.Features
	c.limits = user.Limits
	c.compilerControl = user.CompilerControl
	c.maxBatchSize = user.MaxBatchSize
	c.batchChunkSize = user.BatchChunkSize
	c.diagnostics = user.Diagnostics || buildDiagnostics

	if r, ok := driver.(FeatureReporter); ok {
		c.features = c.features.intersect(r.SupportedFeatures())
	}
	if _, ok := driver.(LibraryDriver); !ok {
		c.features.PipelineLibrary = false
	}

	if c.features != user.Features {
		instance.logger.WPrintf("Driver does not support every requested feature, requested: %s using: %s",
			jsonString(user.Features), jsonString(c.features))
	}
}
