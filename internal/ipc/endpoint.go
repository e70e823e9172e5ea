// Package ipc implements synchronous endpoint rendezvous and asynchronous
// notifications (spec.md §4.7): direct thread-to-thread message handoff
// with no message ever queuing on the endpoint itself, badged
// demultiplexing, and a single-use reply capability for `call`/`reply`.
package ipc

import (
	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/object"
	"github.com/darmie/kaal/internal/sched"
)

// Engine ties the endpoint/notification primitives to the one scheduler the
// kernel runs, so waking a thread also makes it runnable again.
type Engine struct {
	Sched *sched.Scheduler
}

// New returns an IPC engine bound to a scheduler.
func New(s *sched.Scheduler) *Engine {
	return &Engine{Sched: s}
}

func badgeMessage(msg object.Message, cap *capability.Capability) object.Message {
	if cap.HasBadge {
		msg.HasBadge = true
		msg.Badge = cap.Badge
	}
	return msg
}

// Send delivers msg through ep. If a receiver is already waiting it is
// popped and woken immediately and msg lands in its Pending field (spec.md
// §4.7 send). msg.CapTransfers travels with the message untouched: no
// capability is copied into the receiver's CSpace and no rights are
// intersected. Otherwise the sender is parked blocked-on-send with msg
// held in its own Pending field until a Recv collects it. epCap, if
// non-nil, supplies the badge to stamp onto the message.
func (e *Engine) Send(ep *object.Endpoint, epCap *capability.Capability, sender *object.TCB, msg object.Message) {
	if epCap != nil {
		msg = badgeMessage(msg, epCap)
	}

	if ep.Direction == object.QueueReceivers {
		receiver := ep.Dequeue()
		receiver.Pending = &msg
		e.Sched.Enqueue(receiver)
		return
	}

	sender.Pending = &msg
	sender.State = object.StateBlockedOnSend
	sender.BlockedOn = ep
	ep.Enqueue(object.QueueSenders, sender)
}

// NBSend is the non-blocking variant: it delivers only if a receiver is
// already waiting, and reports whether it did (spec.md §4.7 nbsend: "fails
// if no receiver").
func (e *Engine) NBSend(ep *object.Endpoint, epCap *capability.Capability, msg object.Message) bool {
	if epCap != nil {
		msg = badgeMessage(msg, epCap)
	}
	if ep.Direction != object.QueueReceivers {
		return false
	}
	receiver := ep.Dequeue()
	receiver.Pending = &msg
	e.Sched.Enqueue(receiver)
	return true
}

// Recv blocks receiver on ep until a sender delivers, unless one is
// already waiting, in which case the message transfers immediately
// (spec.md §4.7). If the delivered message came from a `call`
// (msg.WantsReply), the original sender stays blocked-on-reply rather
// than being woken, and — when replyCNode is non-nil — Recv mints the
// implicit reply capability into replyCNode[replySlot], exactly as a
// fast-path Call would. A plain `send`'s sender is woken onto the ready
// queue immediately, as it requires no reply.
func (e *Engine) Recv(ep *object.Endpoint, receiver *object.TCB, replyCNode *capability.CNode, replySlot uint64) error {
	if ep.Direction == object.QueueSenders {
		sender := ep.Dequeue()
		msg := sender.Pending
		sender.Pending = nil
		receiver.Pending = msg

		if msg != nil && msg.WantsReply {
			sender.State = object.StateBlockedOnReply
			if replyCNode != nil {
				return mintReply(replyCNode, replySlot, sender)
			}
			return nil
		}
		e.Sched.Enqueue(sender)
		return nil
	}

	receiver.State = object.StateBlockedOnRecv
	receiver.BlockedOn = ep
	ep.Enqueue(object.QueueReceivers, receiver)
	return nil
}

// Call is send+recv in one step for the caller: if a receiver is already
// waiting the message transfers immediately and Call reports it so the
// dispatcher can mint a reply capability into that receiver's own
// reply slot; otherwise the caller is parked as an ordinary sender and
// the mint happens later, when the eventual receiver calls Recv and
// collects msg (spec.md §4.7). Call itself never mints: only the
// dispatcher knows which CNode the woken receiver's own reply slot
// lives in, via its thread-to-CSpace table.
func (e *Engine) Call(ep *object.Endpoint, epCap *capability.Capability, caller *object.TCB, msg object.Message) (receiver *object.TCB, delivered bool) {
	if epCap != nil {
		msg = badgeMessage(msg, epCap)
	}
	msg.WantsReply = true

	if ep.Direction != object.QueueReceivers {
		caller.Pending = &msg
		caller.State = object.StateBlockedOnSend
		caller.BlockedOn = ep
		ep.Enqueue(object.QueueSenders, caller)
		return nil, false
	}

	receiver = ep.Dequeue()
	receiver.Pending = &msg
	e.Sched.Enqueue(receiver)
	caller.State = object.StateBlockedOnReply
	return receiver, true
}

// MintReply installs a single-use reply capability naming caller into
// cnode[slot]. Exported so the dispatcher can complete a Call's fast
// path (a receiver was already waiting) using the receiver's own
// CSpace, which only the dispatcher's thread-to-CSpace table knows.
func MintReply(cnode *capability.CNode, slot uint64, caller *object.TCB) error {
	return mintReply(cnode, slot, caller)
}

// Reply consumes the receiver's implicit reply capability and transfers
// msg back to the original caller, unblocking it (spec.md §4.7). The
// capability is single-use: a second Reply against the same slot fails.
func (e *Engine) Reply(replyCNode *capability.CNode, replySlot uint64, msg object.Message) error {
	slot := replyCNode.Slot(replySlot)
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindReply {
		return &capability.Error{Kind: capability.KindInvalidCapability, Op: "reply"}
	}
	reply, ok := cap.Object.(*object.ReplyObj)
	if !ok || reply.Used {
		return &capability.Error{Kind: capability.KindInvalidCapability, Op: "reply"}
	}

	reply.Used = true
	caller := reply.Caller
	caller.Pending = &msg
	e.Sched.Enqueue(caller)

	*cap = capability.Capability{}
	return nil
}

func mintReply(cnode *capability.CNode, slotIdx uint64, caller *object.TCB) error {
	slot := cnode.Slot(slotIdx)
	if !slot.Get().Empty() {
		return &capability.Error{Kind: capability.KindNotEmpty, Op: "call:mint-reply"}
	}
	refs := 1
	*slot.Get() = capability.Capability{
		Kind:   object.KindReply,
		Object: &object.ReplyObj{Caller: caller},
		Refs:   &refs,
	}
	return nil
}
