// Package sched implements the priority scheduler (component H, spec.md
// §4.8): 16 priorities, each backed by two circular doubly-linked lists of
// Task capabilities, and the run loop that repeatedly selects and
// dispatches the next runnable task.
//
// The lists are intrusive, exactly like a Untyped's first_child sibling
// list in package capability: each Task capability carries its own
// NextSchedItem/PrevSchedItem fields, and a list is just a sentinel
// Capability cell (never itself scheduled) whose links form the circle.
// Go has no container/list use anywhere in the rest of this kernel for
// the same reason gopher-os avoids it for its own frame lists: the
// payload already has room for the links, so a generic container would
// only add an indirection and an allocation.
package sched

import (
	"relickernel/capability"
	"relickernel/kernel/cpu"
)

// NumPriorities is the number of distinct scheduling priorities, per
// spec.md §4.8.
const NumPriorities = 16

// Scheduler holds 16 priorities' worth of ready/ran-already list pairs.
// The zero value is not ready to use; call New.
type Scheduler struct {
	// lists[2*p] is priority p's "ready to run this round" list;
	// lists[2*p+1] is "ran already this round". Each entry is a
	// sentinel cell: Kind stays KindEmpty forever, and only its
	// NextSchedItem/PrevSchedItem fields are ever touched.
	lists [2 * NumPriorities]capability.Capability
}

// New returns an empty Scheduler with every list initialized to its
// single-sentinel circular form (a list pointing to itself is empty).
func New() *Scheduler {
	s := &Scheduler{}
	for i := range s.lists {
		s.lists[i].NextSchedItem = &s.lists[i]
		s.lists[i].PrevSchedItem = &s.lists[i]
	}
	return s
}

func (s *Scheduler) readyList(p uint8) capability.Ref { return &s.lists[2*int(p)] }
func (s *Scheduler) ranList(p uint8) capability.Ref   { return &s.lists[2*int(p)+1] }

func listEmpty(sentinel capability.Ref) bool {
	return sentinel.NextSchedItem == sentinel
}

// pushHead splices task in immediately after sentinel, making it the new
// head of the list.
func pushHead(sentinel, task capability.Ref) {
	task.NextSchedItem = sentinel.NextSchedItem
	task.PrevSchedItem = sentinel
	sentinel.NextSchedItem.PrevSchedItem = task
	sentinel.NextSchedItem = task
}

// popHead removes and returns the list's head task, or nil if empty.
func popHead(sentinel capability.Ref) capability.Ref {
	if listEmpty(sentinel) {
		return nil
	}
	task := sentinel.NextSchedItem
	unlink(task)
	return task
}

// unlink splices task out of whatever list it's currently in.
func unlink(task capability.Ref) {
	task.PrevSchedItem.NextSchedItem = task.NextSchedItem
	task.NextSchedItem.PrevSchedItem = task.PrevSchedItem
	task.NextSchedItem = nil
	task.PrevSchedItem = nil
}

// AddTaskWithPriority admits task into its own priority's "already ran"
// list, per spec.md §4.8: a freshly admitted task waits behind anyone who
// has not yet run this round. task's priority is read from its own
// Descriptor, set when the task was derived (capability.DeriveTask).
func (s *Scheduler) AddTaskWithPriority(task capability.Ref) {
	pushHead(s.ranList(task.Descriptor.Priority), task)
}

// Requeue puts a task the syscall processor just serviced back onto its
// own priority's "already ran" list, per spec.md §4.7's
// SyscalledReadyToResume re-enqueue step.
func (s *Scheduler) Requeue(task capability.Ref) {
	pushHead(s.ranList(task.Descriptor.Priority), task)
}

// GetTaskToRun implements spec.md §4.8's get_task_to_run: scan priorities
// 15 downward; at each level pop the head of the "ready" list. When the
// "ready" list is empty, the whole "already ran" list (in its current
// order) becomes the new round's "ready" list before popping, so a task
// requeued this round waits until every other task at its priority has
// been offered. Returns nil if nothing is runnable anywhere (invariant I6
// promises this happens within 32 probes, which this loop performs at
// most).
func (s *Scheduler) GetTaskToRun() capability.Ref {
	for p := NumPriorities - 1; p >= 0; p-- {
		ready, ran := s.readyList(uint8(p)), s.ranList(uint8(p))
		if listEmpty(ready) && !listEmpty(ran) {
			ready.NextSchedItem = ran.NextSchedItem
			ready.PrevSchedItem = ran.PrevSchedItem
			ready.NextSchedItem.PrevSchedItem = ready
			ready.PrevSchedItem.NextSchedItem = ready
			ran.NextSchedItem = ran
			ran.PrevSchedItem = ran
		}
		if task := popHead(ready); task != nil {
			return task
		}
	}
	return nil
}

// RunForever repeatedly selects the next runnable task and dispatches it
// via dispatch, which runs the task and returns once it has trapped back
// into the kernel (spec.md §4.8's run_forever); RunForever then selects
// the next task. dispatch is a function value rather than a hardwired
// call so tests can drive a handful of iterations without ever reaching
// cpu.SwitchToUser.
func (s *Scheduler) RunForever(dispatch func(task capability.Ref)) {
	for {
		task := s.GetTaskToRun()
		if task == nil {
			idleFn()
			continue
		}
		dispatch(task)
	}
}

// idleFn is called when no task is runnable. Tests may override it; by
// default it halts until the next interrupt (there being no
// preemption yet, per spec.md §4.9's Non-goals, this only ever happens
// before the first task is admitted).
var idleFn = cpu.Halt
