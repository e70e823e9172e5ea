//go:build qemuvirt && arm64

// Package arm64 is the freestanding ARM64 architecture layer: MMU setup,
// the exception vector table, PL011 UART, and GIC access (spec.md §2,
// component 1). Nothing in this package is unit tested — it pokes real
// MMIO and relies on assembly entry points the linker provides, the same
// boundary the teacher draws around its own mazboot/golang/main arch
// files. Every other package in this module is pure and hosted; this one
// alone is where "freestanding" stops being a figure of speech.
package arm64

import "unsafe"

// PL011 UART registers on the QEMU virt machine (spec.md §6, "debug
// UART... PL011 at a fixed MMIO address"), carried over unchanged from
// the teacher's uart_qemu.go.
const (
	uartBase = 0x09000000
	uartDR   = uartBase + 0x00
	uartFR   = uartBase + 0x18
	uartIBRD = uartBase + 0x24
	uartFBRD = uartBase + 0x28
	uartLCRH = uartBase + 0x2C
	uartCR   = uartBase + 0x30
	uartICR  = uartBase + 0x44
)

const (
	uartFRTXFF = 1 << 5 // transmit FIFO full
)

func mmioWrite32(addr uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(addr)) = v
}

func mmioRead32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

// InitUART brings up the PL011 at the fixed QEMU virt address: disable,
// clear pending interrupts, program baud divisors for a 24MHz UARTCLK at
// 115200 8N1, 8-bit word length with FIFOs enabled, then re-enable TX/RX.
func InitUART() {
	mmioWrite32(uartCR, 0)
	mmioWrite32(uartICR, 0x7ff)
	mmioWrite32(uartIBRD, 13)
	mmioWrite32(uartFBRD, 1)
	mmioWrite32(uartLCRH, (3<<5)|(1<<4))
	mmioWrite32(uartCR, (1<<0)|(1<<8)|(1<<9))
}

// Putc blocks until the transmit FIFO has room, then writes one byte.
// This is the kernel's raw boot-trace and halt-banner output path.
// syscall.DebugPutchar does not reach it: the dispatcher writes that
// byte to its logrus entry instead.
//
//go:nosplit
func Putc(c byte) {
	for mmioRead32(uartFR)&uartFRTXFF != 0 {
	}
	mmioWrite32(uartDR, uint32(c))
}

// Puts writes a string one byte at a time via Putc, translating a bare
// '\n' to "\r\n" the way a real terminal expects.
func Puts(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			Putc('\r')
		}
		Putc(s[i])
	}
}

// PutHex64 writes v as a fixed-width 16-digit hex string, for trace
// output that never allocates (no fmt in the freestanding layer).
func PutHex64(v uint64) {
	const digits = "0123456789abcdef"
	var buf [16]byte
	for i := 15; i >= 0; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	for _, b := range buf {
		Putc(b)
	}
}
