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

// Package oserr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package oserr

import (
	stderrors "errors"

	"golang.org/x/sys/unix"
	"os4.dev/os4/pkg/errors"
)

// The following errors are semantically identical to unix.Errno values of the
// same name. Since they are distinct types they are not directly comparable;
// use Errno() or ToError to convert.
var (
	EPERM  = errors.New(unix.EPERM, "operation not permitted")
	ESRCH  = errors.New(unix.ESRCH, "no such process")
	EBADF  = errors.New(unix.EBADF, "bad file number")
	ENOMEM = errors.New(unix.ENOMEM, "out of memory")
	EFAULT = errors.New(unix.EFAULT, "bad address")
	EEXIST = errors.New(unix.EEXIST, "file exists")
	EINVAL = errors.New(unix.EINVAL, "invalid argument")
	ENOSYS = errors.New(unix.ENOSYS, "invalid system call number")
)

var errnoToError = map[unix.Errno]*errors.Error{
	unix.EPERM:  EPERM,
	unix.ESRCH:  ESRCH,
	unix.EBADF:  EBADF,
	unix.ENOMEM: ENOMEM,
	unix.EFAULT: EFAULT,
	unix.EEXIST: EEXIST,
	unix.EINVAL: EINVAL,
	unix.ENOSYS: ENOSYS,
}

// ToError converts a unix.Errno to an *errors.Error. It returns nil for
// errnos this package does not define.
func ToError(e unix.Errno) *errors.Error {
	return errnoToError[e]
}

// Equals compares an *errors.Error to a generic error. It is true if err is,
// or wraps, an *errors.Error with the same errno or a unix.Errno of the same
// value.
func Equals(e *errors.Error, err error) bool {
	if e == nil || err == nil {
		return e == nil && err == nil
	}
	if errno, ok := err.(unix.Errno); ok {
		return e.Errno() == errno
	}
	return stderrors.Is(err, e)
}
