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

package hostarch

import "bytes"

// Prot bits as passed to mmap by user space.
const (
	protRead  = 1 << 0
	protWrite = 1 << 1
	protExec  = 1 << 2

	protMask = protRead | protWrite | protExec
)

// AccessType specifies memory access types. This is used for
// setting mapping permissions, as well as communicating faults.
type AccessType struct {
	// Read is read access.
	Read bool

	// Write is write access.
	Write bool

	// Execute is executable access.
	Execute bool
}

// String returns a pretty representation of access. This looks like the
// familiar r-x, rw-, etc. and can be relied on as such.
func (a AccessType) String() string {
	var buf bytes.Buffer
	if a.Read {
		buf.WriteString("r")
	} else {
		buf.WriteString("-")
	}
	if a.Write {
		buf.WriteString("w")
	} else {
		buf.WriteString("-")
	}
	if a.Execute {
		buf.WriteString("x")
	} else {
		buf.WriteString("-")
	}
	return buf.String()
}

// Any returns true if a.Read, a.Write, or a.Execute is true.
func (a AccessType) Any() bool {
	return a.Read || a.Write || a.Execute
}

// SupersetOf returns true if the access types in a are a superset of the
// access types in other.
func (a AccessType) SupersetOf(other AccessType) bool {
	if !a.Read && other.Read {
		return false
	}
	if !a.Write && other.Write {
		return false
	}
	if !a.Execute && other.Execute {
		return false
	}
	return true
}

// Intersect returns the access types set in both a and other.
func (a AccessType) Intersect(other AccessType) AccessType {
	return AccessType{
		Read:    a.Read && other.Read,
		Write:   a.Write && other.Write,
		Execute: a.Execute && other.Execute,
	}
}

// Union returns the access types set in either a or other.
func (a AccessType) Union(other AccessType) AccessType {
	return AccessType{
		Read:    a.Read || other.Read,
		Write:   a.Write || other.Write,
		Execute: a.Execute || other.Execute,
	}
}

// Prot returns the mmap prot bits equivalent to a.
func (a AccessType) Prot() uint64 {
	var prot uint64
	if a.Read {
		prot |= protRead
	}
	if a.Write {
		prot |= protWrite
	}
	if a.Execute {
		prot |= protExec
	}
	return prot
}

// AccessTypeFromProt converts mmap prot bits to an AccessType. ok is false if
// prot sets no access bits or sets any bit outside read, write and execute.
func AccessTypeFromProt(prot uint64) (at AccessType, ok bool) {
	if prot&^protMask != 0 || prot&protMask == 0 {
		return AccessType{}, false
	}
	return AccessType{
		Read:    prot&protRead != 0,
		Write:   prot&protWrite != 0,
		Execute: prot&protExec != 0,
	}, true
}

// Convenient access types.
var (
	NoAccess  = AccessType{}
	Read      = AccessType{Read: true}
	Write     = AccessType{Write: true}
	Execute   = AccessType{Execute: true}
	ReadWrite = AccessType{Read: true, Write: true}
	AnyAccess = AccessType{Read: true, Write: true, Execute: true}
)
