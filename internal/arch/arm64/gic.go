//go:build qemuvirt && arm64

package arm64

// GICv2 Distributor/CPU-interface registers on the QEMU virt machine
// (spec.md §2, component 1; §6 "GIC interrupt controller access"),
// carried over from the teacher's gic_qemu.go.
const (
	gicDistBase = 0x08000000
	gicdCTLR    = gicDistBase + 0x000
	gicdISENABL = gicDistBase + 0x100
	gicdICENABL = gicDistBase + 0x180
	gicdIPRIOR  = gicDistBase + 0x400
	gicdITARGET = gicDistBase + 0x800

	gicCPUBase = 0x08010000
	giccCTLR   = gicCPUBase + 0x000
	giccPMR    = gicCPUBase + 0x004
	giccIAR    = gicCPUBase + 0x00C
	giccEOIR   = gicCPUBase + 0x010
)

// InitGIC enables the distributor and this CPU's interface with the
// priority mask wide open, the minimum bring-up the kernel needs before
// any driver can register an IRQ-handler capability.
func InitGIC() {
	mmioWrite32(gicdCTLR, 1)
	mmioWrite32(giccPMR, 0xff)
	mmioWrite32(giccCTLR, 1)
}

// EnableIRQ unmasks irq at the distributor and routes it to CPU 0, the
// arch-layer half of irq_handler_get (spec.md §6): the syscall only
// issues the capability, this is what actually lets the line fire.
func EnableIRQ(irq uint32) {
	mmioWrite32(gicdISENABL+4*(irq/32), 1<<(irq%32))
	targetReg := gicdITARGET + 4*(irq/4)
	shift := 8 * (irq % 4)
	cur := mmioRead32(targetReg)
	mmioWrite32(targetReg, (cur &^ (0xff << shift)) | (1 << shift))
}

// DisableIRQ masks irq at the distributor.
func DisableIRQ(irq uint32) {
	mmioWrite32(gicdICENABL+4*(irq/32), 1<<(irq%32))
}

// AckIRQ reads the CPU interface's acknowledge register, returning the
// interrupt ID that fired. The caller must EOI with the same ID once
// its handler has run.
func AckIRQ() uint32 {
	return mmioRead32(giccIAR) & 0x3ff
}

// EOI signals end-of-interrupt for id, per GICv2's ack/EOI protocol.
func EOI(id uint32) {
	mmioWrite32(giccEOIR, id)
}
