// Package layout implements the memory and block layout planner described
// by the compiler's component design: it turns an optimized IR module into
// two side tables the code generator consumes - a linear memory arena
// assignment and, per basic block, the symbolic EVM stack shape expected on
// entry and exit - and reports MEMORY_STACK_TOO_DEEP as a fatal error when a
// block's stack depth would put a value beyond the 16-slot DUP/SWAP window.
package layout

import (
	"fmt"
	"kanso/internal/ir"
)

// freeMemoryPointer is the conventional EVM scratch slot (0x40) that holds
// the bump-allocator's next-free-byte offset at runtime; the planner starts
// its own static bookkeeping at the same offset so codegen's prologue can
// initialize the real in-memory pointer to this constant.
const freeMemoryPointer = 0x40

// MemoryPlan assigns a byte offset to every memory region a function
// allocates. Regions are laid out in the order the builder created them,
// each rounded up to a 32-byte slot, mirroring the EVM's own word-aligned
// MSTORE/MLOAD addressing.
type MemoryPlan struct {
	Offsets map[*ir.MemoryRegion]int
	Size    int // total bytes reserved, starting from freeMemoryPointer
}

// Allocate lays out every memory region referenced anywhere in the program.
// Regions are function-scoped in the builder but the EVM memory they
// describe is only ever live during a single call frame, so a single
// monotonic arena shared by every function is sound: no two functions run
// concurrently within one transaction.
func Allocate(program *ir.Program) *MemoryPlan {
	plan := &MemoryPlan{Offsets: make(map[*ir.MemoryRegion]int)}
	offset := freeMemoryPointer

	for _, fn := range program.Functions {
		for _, block := range fn.Blocks {
			for _, inst := range block.Instructions {
				region := memoryRegionOf(inst)
				if region == nil {
					continue
				}
				if _, seen := plan.Offsets[region]; seen {
					continue
				}
				plan.Offsets[region] = offset
				offset += roundUp32(regionSize(region))
			}
		}
	}

	plan.Size = offset - freeMemoryPointer
	return plan
}

func memoryRegionOf(inst ir.Instruction) *ir.MemoryRegion {
	if enc, ok := inst.(*ir.ABIEncU256Instruction); ok {
		return enc.MemoryRegion
	}
	return nil
}

// regionSize is conservative: every region this IR currently produces holds
// a single ABI-encoded word. A region carrying a declared Size value (a
// dynamic array or struct allocation) would report that instead once the
// builder starts emitting one.
func regionSize(region *ir.MemoryRegion) int {
	if region.Size != nil {
		if c, ok := region.Size.DefInst.(*ir.ConstantInstruction); ok {
			if n, ok := c.Value.(int); ok {
				return n
			}
		}
	}
	return 32
}

func roundUp32(size int) int {
	return (size + 31) / 32 * 32
}

// Brand is a symbolic tag describing what a stack slot holds conceptually
// (a storage slot, a byte offset, an encoded value, ...) rather than its
// runtime bit pattern - the same vocabulary internal/codegen's typed-stack
// combinators use, so a block's planned exit shape can be compared directly
// against its successor's entry shape.
type Brand string

// StackShape is the sequence of brands on the EVM stack, top-of-stack last.
type StackShape []Brand

// BlockShape records a block's expected stack depth at entry and exit.
type BlockShape struct {
	Entry StackShape
	Exit  StackShape
}

// StackTooDeepError reports a value that would need to be reached more than
// 16 slots below the top of stack - beyond what any DUP/SWAP can address.
// It carries SPEC_FULL's MEMORY_STACK_TOO_DEEP error code verbatim so the
// driver can surface it without re-deriving the string.
type StackTooDeepError struct {
	Function string
	Block    string
	Depth    int
}

func (e *StackTooDeepError) Error() string {
	return fmt.Sprintf("MEMORY_STACK_TOO_DEEP: function %q block %q needs a value %d slots deep (window is 16)", e.Function, e.Block, e.Depth)
}

const maxAddressableDepth = 16

// AnalyzeStacks simulates the generator's stack discipline one instruction
// at a time for every block in fn: each instruction pops one symbolic slot
// per non-nil operand and pushes one if it produces a result, exactly the
// transition shape internal/codegen's combinators encode. It returns each
// block's shape, or a *StackTooDeepError the first time an instruction
// would need an operand beyond the addressable window.
func AnalyzeStacks(fn *ir.Function) (map[*ir.BasicBlock]*BlockShape, error) {
	shapes := make(map[*ir.BasicBlock]*BlockShape, len(fn.Blocks))

	for _, block := range fn.Blocks {
		var stack StackShape
		entry := append(StackShape{}, stack...)

		for _, inst := range block.Instructions {
			operands := inst.GetOperands()
			for range operands {
				if len(stack) == 0 {
					continue // operand satisfied by a live-in value, not this block's own pushes
				}
				depth := len(stack) - 1
				if depth >= maxAddressableDepth {
					return nil, &StackTooDeepError{Function: fn.Name, Block: block.Label, Depth: depth}
				}
				stack = stack[:len(stack)-1]
			}
			if inst.GetResult() != nil {
				stack = append(stack, Brand(inst.GetResult().Name))
			}
		}
		if term := block.Terminator; term != nil {
			for range term.GetOperands() {
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			}
		}

		shapes[block] = &BlockShape{Entry: entry, Exit: stack}
	}

	return shapes, nil
}
