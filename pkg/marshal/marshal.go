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

// Package marshal defines the Marshallable interface for serialize/deserializing
// Go data structures to/from memory, according to the user/kernel ABI.
//
// Marshallable types are copied byte-for-byte into user memory, so their
// layout (field order, width and padding) is part of the ABI.
package marshal

import (
	"fmt"

	"os4.dev/os4/pkg/hostarch"
)

// CopyContext defines the memory operations required to marshal to and from
// user memory. Typically, kernel.Task is used to provide implementations for
// these operations.
type CopyContext interface {
	// CopyOutBytes copies the contents of b to the user memory at addr.
	// Returns the number of bytes copied and an error; a short copy always
	// comes with an error.
	CopyOutBytes(addr hostarch.Addr, b []byte) (int, error)

	// CopyInBytes copies the user memory at addr into b. Returns the number
	// of bytes copied and an error.
	CopyInBytes(addr hostarch.Addr, b []byte) (int, error)
}

// Marshallable represents operations on a type that can be marshalled to and
// from memory.
type Marshallable interface {
	// SizeBytes is the size of the memory representation of a type in
	// marshalled form.
	SizeBytes() int

	// MarshalBytes serializes a copy of a type to dst and returns the
	// remaining buffer.
	// Precondition: dst must be at least SizeBytes() in length.
	MarshalBytes(dst []byte) []byte

	// UnmarshalBytes deserializes a type from src and returns the remaining
	// buffer.
	// Precondition: src must be at least SizeBytes() in length.
	UnmarshalBytes(src []byte) []byte
}

// CopyOut marshals m and copies it to the user memory at addr.
func CopyOut(cc CopyContext, addr hostarch.Addr, m Marshallable) (int, error) {
	buf := make([]byte, m.SizeBytes())
	if rest := m.MarshalBytes(buf); len(rest) != 0 {
		panic(fmt.Sprintf("%T.MarshalBytes left %d bytes unwritten", m, len(rest)))
	}
	return cc.CopyOutBytes(addr, buf)
}

// CopyIn copies SizeBytes() bytes from the user memory at addr and
// unmarshals them into m. m is left untouched unless the whole record could be
// copied.
func CopyIn(cc CopyContext, addr hostarch.Addr, m Marshallable) (int, error) {
	buf := make([]byte, m.SizeBytes())
	n, err := cc.CopyInBytes(addr, buf)
	if err != nil {
		return n, err
	}
	m.UnmarshalBytes(buf)
	return n, nil
}
