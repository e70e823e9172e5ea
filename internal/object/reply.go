package object

// ReplyObj is the kernel object backing a reply capability: single-use,
// naming exactly the thread a `call` is waiting on (SPEC_FULL.md §3's
// resolution of Open Question (c) — a reply capability is a real
// capability occupying a CSpace slot, not data hidden in the TCB).
type ReplyObj struct {
	Caller *TCB
	Used   bool
}
