// Copyright 2018 Google LLC
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

// Package kernel provides an emulation of a single-core teaching kernel.
//
// Each task runs a user Program on its own goroutine, but only the task
// holding the CPU ever executes: control passes between task goroutines
// through per-task wake channels, so from any task's point of view the kernel
// is single threaded. The only places a task gives up the CPU are
// Task.SuspendCurrentAndRunNext, Task.ExitCurrentAndRunNext and time-slice
// expiry at syscall return.
//
// Lock order:
//
//	Kernel.mu
//	  mm.MemoryManager.mappingMu
package kernel

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/log"
	"os4.dev/os4/pkg/metric"
	"os4.dev/os4/pkg/sentry/ktime"
	"os4.dev/os4/pkg/sentry/mm"
	"os4.dev/os4/pkg/sentry/pgalloc"
)

// User address space layout.
const (
	// UserDataBase is where a task's read-only data segment is mapped.
	UserDataBase hostarch.Addr = 0x1000

	// UserStackTop is the address just above a task's stack.
	UserStackTop hostarch.Addr = 0x80000000

	// UserStackSize is the size of a task's stack.
	UserStackSize = 4 * hostarch.PageSize
)

// Exit codes chosen by the kernel rather than the task.
const (
	// ExitCodeFault is the exit code of a task killed by a page fault.
	ExitCodeFault = -2
)

// Reasons a task exits, as reported by the task_exits metric.
const (
	exitReasonExit     = "exit"
	exitReasonReturned = "returned"
	exitReasonFault    = "fault"
)

var (
	syscallCounter   = metric.MustCreateNewUint64Metric("/kernel/syscalls", "Number of syscalls executed, by syscall.", metric.NewField("name", syscallNames()))
	taskExitsCounter = metric.MustCreateNewUint64Metric("/kernel/task_exits", "Number of task exits, by reason.", metric.NewField("reason", []string{exitReasonExit, exitReasonReturned, exitReasonFault}))

	unsupportedLog = log.BasicKeyedRateLimitedLogger(time.Second)
)

func syscallNames() []string {
	names := make([]string, 0, os4.NumSyscalls)
	for idx := os4.SyscallIndex(0); idx < os4.NumSyscalls; idx++ {
		names = append(names, idx.String())
	}
	return names
}

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// MemoryFrames is the number of physical frames.
	MemoryFrames int

	// Clock is the monotonic clock since boot. If nil, a host clock is used.
	Clock ktime.Clock

	// SyscallTable dispatches syscalls. It is initialized by Init.
	SyscallTable *SyscallTable

	// Console receives what tasks write to fd 1. If nil, output is discarded.
	Console io.Writer

	// TimeSlice is how long a task may run before it is preempted at its next
	// syscall return. Zero disables preemption.
	TimeSlice time.Duration
}

// Kernel represents an emulated kernel.
type Kernel struct {
	// The following fields are immutable after Init.
	mf        *pgalloc.MemoryFile
	clock     ktime.Clock
	table     *SyscallTable
	console   io.Writer
	timeSlice uint64 // microseconds

	mu sync.Mutex

	// tasks are all tasks ever created, in creation order.
	//
	// +checklocks:mu
	tasks []*Task

	// runQueue holds the Ready tasks in the order they will run.
	//
	// +checklocks:mu
	runQueue []*Task

	// current is the task holding the CPU, or nil.
	//
	// +checklocks:mu
	current *Task

	// started is set by Run.
	//
	// +checklocks:mu
	started bool

	// nextID is the ID of the next task.
	//
	// +checklocks:mu
	nextID int
}

// Init initialize the Kernel with no tasks.
func (k *Kernel) Init(args InitKernelArgs) error {
	if args.SyscallTable == nil {
		return fmt.Errorf("SyscallTable is nil")
	}
	if err := args.SyscallTable.Validate(); err != nil {
		return err
	}
	args.SyscallTable.Init()
	mf, err := pgalloc.NewMemoryFile(args.MemoryFrames)
	if err != nil {
		return fmt.Errorf("creating memory file: %w", err)
	}
	if args.Clock == nil {
		hc, err := ktime.NewHostClock()
		if err != nil {
			return fmt.Errorf("creating host clock: %w", err)
		}
		args.Clock = hc
	}
	if args.Console == nil {
		args.Console = io.Discard
	}
	if args.TimeSlice < 0 {
		return fmt.Errorf("negative time slice %v", args.TimeSlice)
	}
	k.mf = mf
	k.clock = args.Clock
	k.table = args.SyscallTable
	k.console = args.Console
	k.timeSlice = uint64(args.TimeSlice / time.Microsecond)
	return nil
}

// MemoryFile returns the physical memory.
func (k *Kernel) MemoryFile() *pgalloc.MemoryFile {
	return k.mf
}

// Clock returns the clock since boot.
func (k *Kernel) Clock() ktime.Clock {
	return k.clock
}

// Console returns the writer that receives task output.
func (k *Kernel) Console() io.Writer {
	return k.console
}

// SyscallTable returns the syscall table.
func (k *Kernel) SyscallTable() *SyscallTable {
	return k.table
}

// TaskConfig defines the configuration of a new Task.
type TaskConfig struct {
	// Name identifies the task in logs.
	Name string

	// Program is the code the task runs.
	Program Program

	// Data is mapped read-only at UserDataBase. It may be empty.
	Data []byte
}

// NewTask creates a task in the Ready state with its own address space: the
// data segment, if any, and a stack below UserStackTop. Tasks may only be
// created before Run.
func (k *Kernel) NewTask(cfg TaskConfig) (*Task, error) {
	if cfg.Program == nil {
		return nil, fmt.Errorf("task %q has no program", cfg.Name)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return nil, fmt.Errorf("task %q created after the kernel started", cfg.Name)
	}

	m, err := mm.NewMemoryManager(k.mf)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", cfg.Name, err)
	}
	segs := []mm.Segment{{
		Start:  UserStackTop - UserStackSize,
		Length: UserStackSize,
		Perms:  hostarch.ReadWrite,
	}}
	if len(cfg.Data) != 0 {
		segs = append(segs, mm.Segment{
			Start:  UserDataBase,
			Length: uint64(len(cfg.Data)),
			Perms:  hostarch.Read,
			Data:   cfg.Data,
		})
	}
	for _, seg := range segs {
		if err := m.MapImage(seg); err != nil {
			m.Release()
			return nil, fmt.Errorf("task %q: mapping image: %w", cfg.Name, err)
		}
	}

	t := &Task{
		k:       k,
		id:      k.nextID,
		name:    cfg.Name,
		program: cfg.Program,
		status:  os4.Ready,
		mm:      m,
		wake:    make(chan struct{}, 1),
	}
	k.nextID++
	k.tasks = append(k.tasks, t)
	k.runQueue = append(k.runQueue, t)
	log.Debugf("[kernel] Created task %d %q", t.id, t.name)
	return t, nil
}

// Tasks returns all tasks in creation order.
func (k *Kernel) Tasks() []*Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*Task(nil), k.tasks...)
}

// CurrentTask returns the task holding the CPU, or nil if none does.
func (k *Kernel) CurrentTask() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// Run starts every task and returns once all of them have exited. Run may
// only be called once.
func (k *Kernel) Run() error {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return fmt.Errorf("kernel already started")
	}
	k.started = true
	tasks := append([]*Task(nil), k.tasks...)

	var g errgroup.Group
	for _, t := range tasks {
		g.Go(t.run)
	}
	if next := k.popLocked(); next != nil {
		log.Infof("[kernel] Running %d tasks", len(tasks))
		k.switchToLocked(next)
	}
	k.mu.Unlock()
	return g.Wait()
}
