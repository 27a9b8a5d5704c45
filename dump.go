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

type dumpEntry struct {
	Index        int
	Handle       string
	Fingerprints string
	Request      any
}

// dumpPending renders every request with its stages and state blocks, next
// to the handle the driver returned for it.
func dumpPending[I, R any](kind pipelineKind[I, R], items []*pending[I], handles []PipelineHandle) string {
	entries := make([]dumpEntry, len(items))
	for i, p := range items {
		entries[i] = dumpEntry{
			Index:        i,
			Handle:       toHex(handles[i]),
			Fingerprints: p.fingerprints.String(),
			Request:      &p.info,
		}
	}
	return prettyString(map[string]any{
		"bindPoint": kind.bindPoint(),
		"requests":  entries,
	})
}
