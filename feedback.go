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
	"time"
)

// CreationFeedback is driver reported compile information for a pipeline or
// one of its stages. Valid is false when the driver reported nothing.
type CreationFeedback struct {
	Valid                    bool
	ApplicationCacheHit      bool
	BasePipelineAcceleration bool
	Duration                 time.Duration
}

func (f CreationFeedback) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"valid\": %t,", f.Valid))
	buff.WriteString(fmt.Sprintf("\"applicationCacheHit\": %t,", f.ApplicationCacheHit))
	buff.WriteString(fmt.Sprintf("\"basePipelineAcceleration\": %t,", f.BasePipelineAcceleration))
	buff.WriteString(fmt.Sprintf("\"duration\": %q", f.Duration.String()))

	buff.WriteString("}")
	return buff.Bytes(), nil
}

// CreationFeedbackRecord is where the driver writes feedback for one
// request, Stages has one entry per shader stage in declaration order.
type CreationFeedbackRecord struct {
	Pipeline CreationFeedback
	Stages   []CreationFeedback
}

func (r *CreationFeedbackRecord) reset(stages int) {
	r.Pipeline = CreationFeedback{}
	r.Stages = growSlice(r.Stages[:0], stages)[:stages]
	clear(r.Stages)
}

func (r *CreationFeedbackRecord) clone() CreationFeedbackRecord {
	return CreationFeedbackRecord{Pipeline: r.Pipeline, Stages: slices.Clone(r.Stages)}
}
