package vm

import (
	"github.com/shunsuke-abe/govm/pkg/monitor"
)

// maxFrameDepth bounds the call-frame stack; exceeding it raises
// StackOverflowError rather than growing Go's own call stack unbounded
// (each Java call nests invokeMethod → runFrame on the Go stack, so this
// limit is what stops deep recursion before the host stack does).
const maxFrameDepth = 2048

// Thread is one Java thread of execution: its frame stack, its identity
// for monitor ownership, and the safepoint latch the GC uses to pause it
// (spec.md sections 3 and 4.4/4.6).
type Thread struct {
	ID     monitor.ThreadID
	Safe   *monitor.Safe
	Name   string
	frames []*Frame
}

func newThread(id monitor.ThreadID, name string) *Thread {
	return &Thread{ID: id, Safe: monitor.NewSafe(), Name: name}
}

func (t *Thread) pushFrame(f *Frame) error {
	if len(t.frames) >= maxFrameDepth {
		return &StackOverflowError{}
	}
	t.frames = append(t.frames, f)
	return nil
}

func (t *Thread) popFrame() {
	t.frames = t.frames[:len(t.frames)-1]
}

func (t *Thread) currentFrame() *Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

func (t *Thread) depth() int { return len(t.frames) }
