package interp

import (
	"encoding/binary"
	"fmt"
)

// memoryBase is the first usable address; address 0 is reserved so a null
// pointer dereference is always a detectable out-of-bounds access.
const memoryBase = 0x1000

// memorySize bounds the simulated arena. Ample for the programs this
// toolchain targets without risking a runaway allocator exhausting real
// host memory.
const memorySize = 4 << 20

// Memory is the byte-addressable arena backing every scalar, array and
// address-of in the interpreter, indexed by the same 32-bit addresses the
// generated assembly would use.
type Memory struct {
	bytes []byte
	next  uint32
}

func NewMemory() *Memory {
	return &Memory{bytes: make([]byte, memorySize), next: memoryBase}
}

// Alloc bump-allocates words 32-bit cells and returns the base address of
// the reservation.
func (m *Memory) Alloc(words int) uint32 {
	addr := m.next
	m.next += uint32(words) * 4
	return addr
}

func (m *Memory) LoadWord(addr uint32) (uint32, error) {
	if addr < memoryBase || int(addr)+4 > len(m.bytes) {
		return 0, fmt.Errorf("invalid memory address %d", addr)
	}
	return binary.LittleEndian.Uint32(m.bytes[addr:]), nil
}

func (m *Memory) StoreWord(addr, value uint32) error {
	if addr < memoryBase || int(addr)+4 > len(m.bytes) {
		return fmt.Errorf("invalid memory address %d", addr)
	}
	binary.LittleEndian.PutUint32(m.bytes[addr:], value)
	return nil
}
