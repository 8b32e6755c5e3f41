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

package arch

import (
	"testing"
)

func TestAccessors(t *testing.T) {
	a := SyscallArgument{Value: ^uintptr(0)}
	if got := a.Int(); got != -1 {
		t.Errorf("Int() = %d, want -1", got)
	}
	if got := a.Int64(); got != -1 {
		t.Errorf("Int64() = %d, want -1", got)
	}
	if got := a.Uint(); got != 0xffffffff {
		t.Errorf("Uint() = %#x, want 0xffffffff", got)
	}
	if got := (SyscallArgument{Value: 0x10000}).Pointer(); got != 0x10000 {
		t.Errorf("Pointer() = %v", got)
	}
}

func TestMakeArgs(t *testing.T) {
	args := MakeArgs(1, 2, 3)
	for i, want := range []uintptr{1, 2, 3, 0, 0, 0} {
		if args[i].Value != want {
			t.Errorf("args[%d] = %d, want %d", i, args[i].Value, want)
		}
	}
	defer func() {
		if recover() == nil {
			t.Errorf("MakeArgs with seven values did not panic")
		}
	}()
	MakeArgs(1, 2, 3, 4, 5, 6, 7)
}

func TestSignedReturn(t *testing.T) {
	if got := SignedReturn(^uintptr(0)); got != -1 {
		t.Errorf("SignedReturn(^0) = %d, want -1", got)
	}
}
