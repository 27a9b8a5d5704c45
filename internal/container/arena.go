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

package container

import "iter"

const defaultChunkSize = 64

// Arena hands out element pointers that stay valid until Reset.
// Elements live in fixed size chunks which are never grown in place,
// so allocating element N+1 never moves element N.
type Arena[E any] struct {
	chunks    [][]E
	chunkSize int
	limit     int
	len       int
}

// NewArena creates an arena holding at most limit elements, limit <= 0 means unbounded.
func NewArena[E any](chunkSize, limit int) *Arena[E] {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if limit > 0 && chunkSize > limit {
		chunkSize = limit
	}
	return &Arena[E]{chunkSize: chunkSize, limit: limit}
}

// Alloc returns the index and address of a new zero element, or false
// if the arena is at its limit.
func (a *Arena[E]) Alloc() (int, *E, bool) {
	if a.limit > 0 && a.len >= a.limit {
		return -1, nil, false
	}
	c, o := a.len/a.chunkSize, a.len%a.chunkSize
	if c == len(a.chunks) {
		a.chunks = append(a.chunks, make([]E, a.chunkSize))
	}
	a.len++
	return a.len - 1, &a.chunks[c][o], true
}

func (a *Arena[E]) At(i int) *E {
	if i < 0 || i >= a.len {
		panic("arena index out of range")
	}
	return &a.chunks[i/a.chunkSize][i%a.chunkSize]
}

func (a *Arena[E]) Len() int {
	return a.len
}

func (a *Arena[E]) Limit() int {
	return a.limit
}

func (a *Arena[E]) Full() bool {
	return a.limit > 0 && a.len >= a.limit
}

func (a *Arena[E]) All() iter.Seq2[int, *E] {
	return func(yield func(int, *E) bool) {
		for i := 0; i < a.len; i++ {
			if !yield(i, a.At(i)) {
				return
			}
		}
	}
}

// Reset drops every element, only the first chunk is kept for reuse.
func (a *Arena[E]) Reset() {
	if len(a.chunks) > 0 {
		clear(a.chunks[0])
		clear(a.chunks[1:])
		a.chunks = a.chunks[:1]
	}
	a.len = 0
}

// Pop zeroes and drops the last element.
func (a *Arena[E]) Pop() {
	if a.len == 0 {
		return
	}
	a.len--
	var zero E
	a.chunks[a.len/a.chunkSize][a.len%a.chunkSize] = zero
}
