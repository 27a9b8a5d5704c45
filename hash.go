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
	"hash"
	"hash/fnv"
	"math"
)

// hasher folds values into a running FNV-64a state. Every write is fixed
// width or length prefixed so adjacent fields can not alias.
type hasher struct {
	h hash.Hash64
}

func newHasher() hasher {
	return hasher{h: fnv.New64a()}
}

func (h hasher) uint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.h.Write(buf[:])
}

func (h hasher) uint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.h.Write(buf[:])
}

func (h hasher) int32(v int32) {
	h.uint32(uint32(v))
}

func (h hasher) float32(v float32) {
	h.uint32(math.Float32bits(v))
}

func (h hasher) bool(v bool) {
	if v {
		_, _ = h.h.Write([]byte{1})
	} else {
		_, _ = h.h.Write([]byte{0})
	}
}

func (h hasher) string(s string) {
	h.uint32(uint32(len(s)))
	_, _ = h.h.Write([]byte(s))
}

func (h hasher) bytes(b []byte) {
	h.uint32(uint32(len(b)))
	_, _ = h.h.Write(b)
}

// optional writes a presence marker and, when present, the block hash.
func (h hasher) optional(present bool, v func() uint64) {
	h.bool(present)
	if present {
		h.uint64(v())
	}
}

func (h hasher) sum() uint64 {
	return h.h.Sum64()
}

func hashString(s string) uint64 {
	h := newHasher()
	h.string(s)
	return h.sum()
}

// combineHashes folds hashes in the given order.
func combineHashes(hashes ...uint64) uint64 {
	h := newHasher()
	for _, v := range hashes {
		h.uint64(v)
	}
	return h.sum()
}
