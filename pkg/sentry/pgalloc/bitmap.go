// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pgalloc

import (
	"math"
	"math/bits"
)

// bitmap tracks allocated frames, one bit per frame.
type bitmap struct {
	// numOnes is the number of ones in the bitmap.
	numOnes uint64

	// words holds the bits, 64 frames per word.
	words []uint64
}

func newBitmap(size uint64) bitmap {
	return bitmap{words: make([]uint64, (size+63)/64)}
}

func (b *bitmap) isSet(i uint64) bool {
	return b.words[i/64]&(1<<(i%64)) != 0
}

func (b *bitmap) set(i uint64) {
	if !b.isSet(i) {
		b.words[i/64] |= 1 << (i % 64)
		b.numOnes++
	}
}

func (b *bitmap) clear(i uint64) {
	if b.isSet(i) {
		b.words[i/64] &^= 1 << (i % 64)
		b.numOnes--
	}
}

// firstZero returns the first unset bit in [start, limit), or limit if there
// is none.
func (b *bitmap) firstZero(start, limit uint64) uint64 {
	for i := start / 64; i < uint64(len(b.words)); i++ {
		w := b.words[i]
		if i == start/64 {
			// Pretend the bits below start are set.
			w |= (1 << (start % 64)) - 1
		}
		if w != math.MaxUint64 {
			if r := i*64 + uint64(bits.TrailingZeros64(^w)); r < limit {
				return r
			}
			return limit
		}
	}
	return limit
}
