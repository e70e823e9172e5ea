package object

// IRQControl is the singleton capability whose only operation is minting an
// IRQHandler for a specific interrupt number (spec.md §3).
type IRQControl struct {
	// Issued tracks which IRQ numbers already have a live handler, so a
	// second mint for the same line is refused rather than creating two
	// handlers that both believe they own acknowledgement.
	Issued map[uint32]bool
}

// NewIRQControl returns the singleton IRQ-control object.
func NewIRQControl() *IRQControl {
	return &IRQControl{Issued: make(map[uint32]bool)}
}

// IRQHandler binds one interrupt number to a notification: firing the IRQ
// signals the notification, and the driver must call irq_handler_ack before
// the line fires again (spec.md §3, §6).
type IRQHandler struct {
	IRQ          uint32
	Notification *Notification
	Badge        uint64
	Acked        bool
}
