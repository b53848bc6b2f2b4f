package ecs

import "unsafe"

type opKind uint8

const (
	opNew opKind = iota
	opAdd
	opRemove
	opSet
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opNew:
		return "new"
	case opAdd:
		return "add"
	case opRemove:
		return "remove"
	case opSet:
		return "set"
	case opDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type command struct {
	op   opKind
	id   EntityId
	comp EntityId
	off  int
	size int
}

// CommandBuffer is an append-only log of structural mutations captured
// while the world is deferred. Set values are copied into the buffer's own
// arena, which is released after replay.
type CommandBuffer struct {
	cmds  []command
	arena []byte
}

func newCommandBuffer() *CommandBuffer {
	return &CommandBuffer{}
}

func (b *CommandBuffer) push(op opKind, id, comp EntityId) {
	b.cmds = append(b.cmds, command{op: op, id: id, comp: comp})
}

func (b *CommandBuffer) pushSet(id, comp EntityId, src unsafe.Pointer, size uintptr) {
	cmd := command{op: opSet, id: id, comp: comp, off: len(b.arena), size: int(size)}
	if size > 0 {
		b.arena = append(b.arena, unsafe.Slice((*byte)(src), size)...)
	}
	b.cmds = append(b.cmds, cmd)
}

func (b *CommandBuffer) empty() bool { return len(b.cmds) == 0 }

// replay applies the buffered commands in insertion order. Commands
// targeting an id deleted earlier in the same buffer are dropped silently;
// commands that fail are recorded and do not abort the rest of the replay.
// The arena is released afterwards.
func (b *CommandBuffer) replay(w *World) []*CommandError {
	var errs []*CommandError
	deleted := make(map[EntityId]bool)
	for i := range b.cmds {
		cmd := &b.cmds[i]
		if deleted[cmd.id] {
			continue
		}
		var err error
		switch cmd.op {
		case opNew:
			err = w.run(func() error { return w.applyNew(cmd.id) })
		case opAdd:
			err = w.run(func() error { return w.applyAdd(cmd.id, cmd.comp) })
		case opRemove:
			err = w.run(func() error { return w.applyRemove(cmd.id, cmd.comp) })
		case opSet:
			var src unsafe.Pointer
			if cmd.size > 0 {
				src = unsafe.Pointer(&b.arena[cmd.off])
			}
			err = w.run(func() error { return w.applySet(cmd.id, cmd.comp, src) })
		case opDelete:
			err = w.run(func() error { return w.applyDelete(cmd.id) })
			deleted[cmd.id] = true
		}
		if err != nil {
			errs = append(errs, &CommandError{Index: i, Op: cmd.op.String(), Entity: cmd.id, Err: err})
		}
	}
	b.cmds = nil
	b.arena = nil
	return errs
}
