package codegen

import (
	"fmt"
	"kanso/internal/ir"
	"kanso/internal/layout"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// Generator lowers a laid-out IR program to an EVM bytecode image. Every
// SSA value that produces a result is materialized to a dedicated 32-byte
// memory slot immediately after it is computed, and every use reloads it
// from that slot; a phi's slot is written by each of its predecessors
// instead of read back on the stack across the jump. This trades the
// stack-resident scheduling SPEC_FULL's component design sketches (Sethi-
// Ullman ordering, cross-block stack reconciliation) for a generator that
// is always correct and never needs more than the DUP/SWAP window's worth
// of live stack at once; internal/layout.AnalyzeStacks remains the
// diagnostic a future stack-resident generator would consult.
type Generator struct {
	program    *ir.Program
	memPlan    *layout.MemoryPlan
	slots      map[*ir.Value]int
	nextSlot   int
	patches    []patchSite // absolute offsets, rebased via rebaseBlockPatches
	localPatch []patchSite // patches recorded so far against the block buffer currently being built
	blockPC    map[*ir.BasicBlock]int
	eventTopic map[string]*uint256.Int
}

// memoryOffsetOf returns the ABI-data region's planned offset, falling back
// to allocating a fresh word past the arena if the layout pass never saw it
// (e.g. a region built after Allocate ran).
func (g *Generator) memoryOffsetOf(region *ir.MemoryRegion) int {
	if off, ok := g.memPlan.Offsets[region]; ok {
		return off
	}
	off := g.nextSlot
	g.nextSlot += 32
	return off
}

// patchSite records a two-byte placeholder immediate written during the
// first emission pass that must be rewritten once every block's final
// program counter is known. offset is relative to the start of the single
// block buffer it was recorded in. target is set for a cross-block jump,
// resolved once every block's PC is known (applyPatches); for a purely
// intra-block forward reference (e.g. require's inline revert skip) target
// is nil and localValue already holds the block-relative destination, which
// rebaseBlockPatches can resolve immediately since it already knows the
// block's base offset.
type patchSite struct {
	offset     int
	target     *ir.BasicBlock
	localValue int
}

// rebaseBlockPatches folds one block's locally-recorded patches into the
// function's output buffer now that the block's base position (including
// its JUMPDEST byte) is known: intra-block patches are resolved and written
// immediately, cross-block jump patches are rebased to an absolute buffer
// offset and deferred to applyPatches.
func (g *Generator) rebaseBlockPatches(buf *[]byte, local []patchSite, base int) {
	for _, p := range local {
		if p.target == nil {
			pc := base + p.localValue
			(*buf)[base+p.offset] = byte(pc >> 8)
			(*buf)[base+p.offset+1] = byte(pc)
			continue
		}
		p.offset += base
		g.patches = append(g.patches, p)
	}
}

// Error is the generator's fatal-failure type: SPEC_FULL requires codegen
// errors to never produce partial output, so every entry point returns
// (nil, *Error) rather than a half-built buffer on failure.
type Error struct {
	Code     string
	Message  string
	Function string
	Block    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (function %q, block %q)", e.Code, e.Message, e.Function, e.Block)
}

// Artifact is the generator's output: the runtime image always present, and
// a constructor image present only when the contract declares a create
// function.
type Artifact struct {
	Runtime []byte
	Create  []byte
}

// memoryArenaStart mirrors internal/layout's freeMemoryPointer: value slots
// are allocated after the ABI-encoding regions internal/layout already
// reserved, so the two planners never collide.
const memoryArenaStart = 0x40

// Generate lowers an entire program to a runtime image and, if a create
// function exists, a constructor image that deploys it. plan is
// layout.Allocate's output for this program; its regions get first claim on
// the memory arena, and every SSA value gets its own slot past plan.Size.
func Generate(program *ir.Program, plan *layout.MemoryPlan) (*Artifact, error) {
	g := &Generator{
		program:    program,
		memPlan:    plan,
		slots:      make(map[*ir.Value]int),
		nextSlot:   memoryArenaStart + plan.Size,
		blockPC:    make(map[*ir.BasicBlock]int),
		eventTopic: computeEventTopics(program.EventSignatures),
	}

	var createFn *ir.Function
	runtimeFns := make([]*ir.Function, 0, len(program.Functions))
	for _, fn := range program.Functions {
		if fn.Create {
			createFn = fn
			continue
		}
		runtimeFns = append(runtimeFns, fn)
	}

	runtime, err := g.generateFunctions(runtimeFns)
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{Runtime: runtime}
	if createFn != nil {
		create, err := g.generateConstructor(createFn, runtime)
		if err != nil {
			return nil, err
		}
		artifact.Create = create
	}
	return artifact, nil
}

// computeEventTopics hashes every declared event signature to its topic0,
// the one place this compiler needs a real, bit-exact keccak256 rather than
// a descriptive placeholder: ABI event topics are part of the contract's
// observable interface.
func computeEventTopics(events []*ir.EventSignature) map[string]*uint256.Int {
	topics := make(map[string]*uint256.Int, len(events))
	for _, ev := range events {
		h := sha3.NewLegacyKeccak256()
		h.Write([]byte(ev.Signature))
		topics[ev.EventName] = new(uint256.Int).SetBytes(h.Sum(nil))
	}
	return topics
}

// generateFunctions concatenates every function's blocks into one buffer,
// assigning each block's slots up front so jump targets can be patched in a
// second pass once every block's final PC is known.
func (g *Generator) generateFunctions(fns []*ir.Function) ([]byte, error) {
	for _, fn := range fns {
		g.assignSlots(fn)
	}

	var buf []byte
	for _, fn := range fns {
		for _, block := range fn.Blocks {
			g.blockPC[block] = len(buf)
			g.localPatch = nil
			blockStart := len(buf)
			buf = append(buf, byte(JUMPDEST))
			code, err := g.generateBlock(fn, block)
			if err != nil {
				return nil, err
			}
			buf = append(buf, code...)
			g.rebaseBlockPatches(&buf, g.localPatch, blockStart+1)
		}
	}

	if err := g.applyPatches(&buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// applyPatches rewrites every recorded jump-target placeholder now that
// every block's final program counter is known, then clears the list so a
// later call to generateConstructor starts fresh.
func (g *Generator) applyPatches(buf *[]byte) error {
	for _, p := range g.patches {
		pc, ok := g.blockPC[p.target]
		if !ok {
			return &Error{Code: "CODEGEN_INTERNAL_ERROR", Message: "jump target block never emitted"}
		}
		(*buf)[p.offset] = byte(pc >> 8)
		(*buf)[p.offset+1] = byte(pc)
	}
	g.patches = nil
	return nil
}

// generateConstructor builds the deploy-time image: it runs the create
// function's body, then copies the already-assembled runtime image into
// memory and returns it, per SPEC_FULL's constructor-vs-runtime split.
func (g *Generator) generateConstructor(fn *ir.Function, runtime []byte) ([]byte, error) {
	g.assignSlots(fn)

	var buf []byte
	for _, block := range fn.Blocks {
		g.blockPC[block] = len(buf)
		g.localPatch = nil
		blockStart := len(buf)
		buf = append(buf, byte(JUMPDEST))
		code, err := g.generateBlock(fn, block)
		if err != nil {
			return nil, err
		}
		buf = append(buf, code...)
		g.rebaseBlockPatches(&buf, g.localPatch, blockStart+1)
	}
	if err := g.applyPatches(&buf); err != nil {
		return nil, err
	}

	// CODECOPY(destOffset=0, codeOffset, size): the runtime image's position
	// within this constructor's own bytecode isn't known until every
	// preceding byte (including this PUSH2 itself) has been emitted, so the
	// source-offset immediate is a fixed-width PUSH2 placeholder patched
	// once the final length is known - the same trick pushBlockPlaceholder
	// uses for jump targets, just keyed by byte offset instead of block.
	// CODECOPY pops [destOffset, offset, length] with destOffset on top, so
	// the push order (bottom to top) is length, offset, destOffset.
	size := uint256.NewInt(uint64(len(runtime)))
	sizePush := newPipe(nil)
	sizePush.then(pushn(size, "size"))
	sizeCode, _ := sizePush.done()
	buf = append(buf, sizeCode...)

	buf = append(buf, byte(PUSH1+1)) // PUSH2
	codeOffsetImm := len(buf)
	buf = append(buf, 0x00, 0x00)

	destPush := newPipe(nil)
	destPush.then(pushn(uint256.NewInt(0), "dest"))
	destCode, _ := destPush.done()
	buf = append(buf, destCode...)
	buf = append(buf, byte(CODECOPY))

	retCode := newPipe(nil)
	retCode.then(pushn(size, "size"))
	retCode.then(pushn(uint256.NewInt(0), "offset"))
	ret, _ := retCode.done()
	buf = append(buf, ret...)
	buf = append(buf, byte(RETURN))

	runtimeOffset := len(buf)
	buf[codeOffsetImm] = byte(runtimeOffset >> 8)
	buf[codeOffsetImm+1] = byte(runtimeOffset)
	buf = append(buf, runtime...)

	return buf, nil
}

// assignSlots gives every value-producing instruction in fn a dedicated
// memory slot, including phi results (written by each predecessor instead
// of read across a block boundary on the stack).
func (g *Generator) assignSlots(fn *ir.Function) {
	assign := func(v *ir.Value) {
		if v == nil {
			return
		}
		if _, ok := g.slots[v]; ok {
			return
		}
		g.slots[v] = g.nextSlot
		g.nextSlot += 32
	}
	for _, param := range fn.Params {
		assign(param.Value)
	}
	for _, block := range fn.Blocks {
		for _, inst := range block.Instructions {
			assign(inst.GetResult())
		}
	}
}

func (g *Generator) slotOf(v *ir.Value) int {
	if s, ok := g.slots[v]; ok {
		return s
	}
	s := g.nextSlot
	g.slots[v] = s
	g.nextSlot += 32
	return s
}

// phiFeeds returns every phi instruction, in any successor of from, whose
// input for predecessor `from` is exactly v - i.e. the set of phi slots
// that must also receive v once it is computed in `from`.
func phiFeeds(from *ir.BasicBlock, v *ir.Value) []*ir.Value {
	var feeds []*ir.Value
	for _, succ := range from.Successors {
		for _, inst := range succ.Instructions {
			phi, ok := inst.(*ir.PhiInstruction)
			if !ok {
				continue
			}
			if in, ok := phi.Inputs[from]; ok && in == v {
				feeds = append(feeds, phi.Result)
			}
		}
	}
	return feeds
}

func (g *Generator) generateBlock(fn *ir.Function, block *ir.BasicBlock) ([]byte, error) {
	var buf []byte

	emit := func(code []byte) { buf = append(buf, code...) }
	fail := func(format string, args ...interface{}) error {
		return &Error{Code: "CODEGEN_UNSUPPORTED_INSTRUCTION", Message: fmt.Sprintf(format, args...), Function: fn.Name, Block: block.Label}
	}

	storeResult := func(result *ir.Value) {
		slot := g.slotOf(result)
		p := newPipe([]Brand{"value"})
		p.then(pushn(uint256.NewInt(uint64(slot)), "offset"))
		p.then(op(MSTORE, 2, ""))
		code, _ := p.done()
		emit(code)
		for _, feed := range phiFeeds(block, result) {
			fslot := g.slotOf(feed)
			lp := newPipe(nil)
			lp.then(pushn(uint256.NewInt(uint64(slot)), "offset"))
			lp.then(op(MLOAD, 1, "value"))
			lp.then(pushn(uint256.NewInt(uint64(fslot)), "offset"))
			lp.then(op(MSTORE, 2, ""))
			c, _ := lp.done()
			emit(c)
		}
	}

	loadValue := func(v *ir.Value) []byte {
		slot := g.slotOf(v)
		p := newPipe(nil)
		p.then(pushn(uint256.NewInt(uint64(slot)), "offset"))
		p.then(op(MLOAD, 1, "value"))
		code, _ := p.done()
		return code
	}

	for _, inst := range block.Instructions {
		switch i := inst.(type) {
		case *ir.PhiInstruction:
			// no code: predecessors already wrote this phi's slot.
			continue

		case *ir.ConstantInstruction:
			n, ok := i.Value.(int)
			if !ok {
				return nil, fail("constant instruction with non-integer literal %v", i.Value)
			}
			p := newPipe(nil)
			p.then(pushn(uint256.NewInt(uint64(n)), "value"))
			code, _ := p.done()
			emit(code)
			storeResult(i.Result)

		case *ir.BinaryInstruction:
			arith, err := binaryOp(i.Op)
			if err != nil {
				return nil, fail("%s", err.Error())
			}
			// EVM pops its first operand off the top of stack. For the
			// non-commutative opcodes that operand is the left-hand side
			// (SUB/DIV/MOD/LT/GT/EXP: a-b, a<b, a^b all read "a" as top), so
			// those need Right pushed first and Left last; SHL/SHR instead
			// want the shift amount (Right) on top, which the default
			// left-then-right push order already gives; commutative ops
			// don't care either way.
			if reversedPushOrder(i.Op) {
				emit(loadValue(i.Right))
				emit(loadValue(i.Left))
			} else {
				emit(loadValue(i.Left))
				emit(loadValue(i.Right))
			}
			p := newPipe([]Brand{"a", "b"})
			p.then(op(arith, 2, "value"))
			code, _ := p.done()
			emit(code)
			storeResult(i.Result)

		case *ir.SenderInstruction:
			p := newPipe(nil)
			p.then(op(CALLER, 0, "address"))
			code, _ := p.done()
			emit(code)
			storeResult(i.Result)

		case *ir.StorageLoadInstruction:
			p := newPipe(nil)
			p.then(pushn(uint256.NewInt(uint64(i.SlotNum)), "slot"))
			p.then(op(SLOAD, 1, "value"))
			code, _ := p.done()
			emit(code)
			storeResult(i.Result)

		case *ir.StorageStoreInstruction:
			emit(loadValue(i.Value))
			p := newPipe([]Brand{"value"})
			p.then(pushn(uint256.NewInt(uint64(i.SlotNum)), "slot"))
			p.then(op(SSTORE, 2, ""))
			code, _ := p.done()
			emit(code)

		case *ir.KeyedStorageLoadInstruction:
			emit(g.hashMappingSlot(i.Key, i.BaseSlot))
			p := newPipe([]Brand{"slot"})
			p.then(op(SLOAD, 1, "value"))
			code, _ := p.done()
			emit(code)
			storeResult(i.Result)

		case *ir.KeyedStorageStoreInstruction:
			emit(loadValue(i.Value))
			emit(g.hashMappingSlot(i.Key, i.BaseSlot))
			p := newPipe([]Brand{"value", "slot"})
			p.then(op(SSTORE, 2, ""))
			code, _ := p.done()
			emit(code)

		case *ir.AssumeInstruction:
			continue // no runtime effect; purely an optimizer hint

		case *ir.RevertInstruction:
			continue // terminator handled below

		case *ir.CheckedArithInstruction:
			if err := g.emitCheckedArith(i, emit, loadValue, storeResult); err != nil {
				return nil, fail("%s", err.Error())
			}

		case *ir.RequireInstruction:
			emit(loadValue(i.Condition))
			// Intra-block skip: a nonzero condition jumps past the REVERT right
			// below, a zero one falls straight into it. The destination is
			// only a block-relative offset here; rebaseBlockPatches resolves
			// it to an absolute PC once this block's base position is known.
			skipImm := len(buf) + 1
			buf = append(buf, byte(PUSH1+1), 0x00, 0x00, byte(JUMPI))
			buf = append(buf, byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(REVERT))
			buf = append(buf, byte(JUMPDEST))
			g.localPatch = append(g.localPatch, patchSite{offset: skipImm, localValue: len(buf) - 1})

		case *ir.StorageAddrInstruction:
			if len(i.Keys) == 0 {
				p := newPipe(nil)
				p.then(pushn(uint256.NewInt(uint64(i.BaseSlot)), "slot"))
				code, _ := p.done()
				emit(code)
			} else {
				emit(g.hashMappingSlot(i.Keys[0], i.BaseSlot))
			}
			storeResult(i.Result)

		case *ir.EventSignatureInstruction:
			topic, ok := g.eventTopic[i.Event]
			if !ok {
				return nil, fail("no precomputed topic for event %q", i.Event)
			}
			p := newPipe(nil)
			p.then(pushn(topic, "topic0"))
			code, _ := p.done()
			emit(code)
			storeResult(i.Result)

		case *ir.ABIEncU256Instruction:
			slotOffset := g.memoryOffsetOf(i.MemoryRegion)
			emit(loadValue(i.Value))
			p := newPipe([]Brand{"value"})
			p.then(pushn(uint256.NewInt(uint64(slotOffset)), "offset"))
			p.then(op(MSTORE, 2, ""))
			code, _ := p.done()
			emit(code)
			p2 := newPipe(nil)
			p2.then(pushn(uint256.NewInt(uint64(slotOffset)), "value"))
			c2, _ := p2.done()
			emit(c2)
			storeResult(i.ResultData)
			p3 := newPipe(nil)
			p3.then(pushn(uint256.NewInt(32), "value"))
			c3, _ := p3.done()
			emit(c3)
			storeResult(i.ResultLen)

		case *ir.LogInstruction:
			// LOGn pops offset (top), size, then topic1..topicN with topic1
			// nearest the top - so topics push in reverse declaration order,
			// and topic0 (the event signature) goes last among the topics.
			for idx := len(i.TopicArgs) - 1; idx >= 0; idx-- {
				emit(loadValue(i.TopicArgs[idx]))
			}
			if i.Signature != nil {
				emit(loadValue(i.Signature))
			}
			if i.DataLen != nil {
				emit(loadValue(i.DataLen))
			} else {
				p := newPipe(nil)
				p.then(pushn(uint256.NewInt(0), "len"))
				c, _ := p.done()
				emit(c)
			}
			if i.DataPtr != nil {
				emit(loadValue(i.DataPtr))
			} else {
				p := newPipe(nil)
				p.then(pushn(uint256.NewInt(0), "ptr"))
				c, _ := p.done()
				emit(c)
			}
			logOp, err := logOpcode(i.Topics)
			if err != nil {
				return nil, fail("%s", err.Error())
			}
			p := newPipe(nil)
			p.then(op(logOp, i.Topics+2, ""))
			code, _ := p.done()
			emit(code)

		default:
			return nil, fail("no codegen lowering for %T", i)
		}
	}

	if err := g.generateTerminator(fn, block, block.Terminator, loadValue, fail, &buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// hashMappingSlot emits the bit-exact mapping slot computation from
// SPEC_FULL §6: keccak256(pad32(key) ‖ pad32(baseSlot)), written through the
// 0x00-0x40 scratch space and hashed with SHA3.
func (g *Generator) hashMappingSlot(key *ir.Value, baseSlot int) []byte {
	var code []byte
	p := newPipe(nil)
	p.then(pushn(uint256.NewInt(uint64(g.slotOf(key))), "offset"))
	p.then(op(MLOAD, 1, "key"))
	p.then(pushn(uint256.NewInt(0), "offset"))
	p.then(op(MSTORE, 2, ""))
	c1, _ := p.done()
	code = append(code, c1...)

	p2 := newPipe(nil)
	p2.then(pushn(uint256.NewInt(uint64(baseSlot)), "base"))
	p2.then(pushn(uint256.NewInt(0x20), "offset"))
	p2.then(op(MSTORE, 2, ""))
	c2, _ := p2.done()
	code = append(code, c2...)

	p3 := newPipe(nil)
	p3.then(pushn(uint256.NewInt(0x40), "length"))
	p3.then(pushn(uint256.NewInt(0), "offset"))
	p3.then(op(SHA3, 2, "slot"))
	c3, _ := p3.done()
	code = append(code, c3...)
	return code
}

// reversedPushOrder reports whether op reads its EVM top-of-stack operand
// as the IR's right-hand operand instead of its left-hand one.
func reversedPushOrder(op string) bool {
	switch op {
	case "SUB", "DIV", "SDIV", "MOD", "SMOD", "LT", "GT", "SLT", "SGT", "EXP":
		return true
	default:
		return false
	}
}

func binaryOp(op string) (Op, error) {
	switch op {
	case "ADD":
		return ADD, nil
	case "SUB":
		return SUB, nil
	case "MUL":
		return MUL, nil
	case "DIV":
		return DIV, nil
	case "SDIV":
		return SDIV, nil
	case "MOD":
		return MOD, nil
	case "SMOD":
		return SMOD, nil
	case "EXP":
		return EXP, nil
	case "LT":
		return LT, nil
	case "GT":
		return GT, nil
	case "SLT":
		return SLT, nil
	case "SGT":
		return SGT, nil
	case "EQ":
		return EQ, nil
	case "AND":
		return AND, nil
	case "OR":
		return OR, nil
	case "XOR":
		return XOR, nil
	case "SHL":
		return SHL, nil
	case "SHR":
		return SHR, nil
	default:
		return 0, fmt.Errorf("unsupported binary operator %q", op)
	}
}

// emitCheckedArith lowers one checked arithmetic op to its raw result plus
// an overflow/underflow predicate, matching the semantics
// internal/ir.CheckedArithmeticOptimization assumes (ok==1 means the raw
// result is exact). Every sub-expression reloads its operands straight from
// their memory slots rather than juggling the stack with DUP/SWAP: since
// every SSA value already lives in memory by construction, a reload is just
// as cheap to express and far harder to get wrong than stack bookkeeping.
func (g *Generator) emitCheckedArith(i *ir.CheckedArithInstruction, emit func([]byte), loadValue func(*ir.Value) []byte, storeResult func(*ir.Value)) error {
	loadLeft := func() { emit(loadValue(i.Left)) }
	loadRight := func() { emit(loadValue(i.Right)) }
	emitOp := func(code Op, a, b Brand) {
		p := newPipe([]Brand{a, b})
		p.then(op(code, 2, "value"))
		c, _ := p.done()
		emit(c)
	}
	emitUnary := func(code Op, a Brand) {
		p := newPipe([]Brand{a})
		p.then(op(code, 1, "value"))
		c, _ := p.done()
		emit(c)
	}

	switch i.Op {
	case "ADD_CHK":
		loadLeft()
		loadRight()
		emitOp(ADD, "left", "right")
		storeResult(i.ResultVal)
		// unsigned overflow iff the sum is less than either operand; EVM LT
		// compares a=top<b=second, so the sum must end up on top.
		loadLeft()
		emit(loadValue(i.ResultVal))
		emitOp(LT, "left", "sum")
		emitUnary(ISZERO, "overflowed")
		storeResult(i.ResultOk)
		return nil

	case "SUB_CHK":
		loadRight()
		loadLeft()
		emitOp(SUB, "right", "left") // top operand (left) is the minuend
		storeResult(i.ResultVal)
		loadRight()
		loadLeft()
		emitOp(LT, "right", "left") // left < right => underflow
		emitUnary(ISZERO, "underflowed")
		storeResult(i.ResultOk)
		return nil

	case "MUL_CHK":
		loadLeft()
		loadRight()
		emitOp(MUL, "left", "right")
		storeResult(i.ResultVal)
		// ok = (left == 0) OR (product/left == right): the classic
		// division-based overflow check, since EVM has no native wide MUL.
		loadLeft()
		emit(loadValue(i.ResultVal))
		emitOp(DIV, "left", "product") // product is on top => a=product, b=left
		loadRight()
		emitOp(EQ, "quotient", "right")
		loadLeft()
		emitUnary(ISZERO, "left")
		emitOp(OR, "exact", "leftIsZero")
		storeResult(i.ResultOk)
		return nil

	case "DIV_CHK":
		loadRight()
		loadLeft()
		emitOp(DIV, "right", "left") // left ends on top => a=left, b=right
		storeResult(i.ResultVal)
		loadRight()
		emitUnary(ISZERO, "right")
		emitUnary(ISZERO, "rightIsZero")
		storeResult(i.ResultOk)
		return nil

	default:
		return fmt.Errorf("unsupported checked arithmetic op %q", i.Op)
	}
}

func logOpcode(topics int) (Op, error) {
	switch topics {
	case 0:
		return LOG0, nil
	case 1:
		return LOG1, nil
	case 2:
		return LOG2, nil
	case 3:
		return LOG3, nil
	case 4:
		return LOG4, nil
	default:
		return 0, fmt.Errorf("unsupported LOG topic count %d", topics)
	}
}

func (g *Generator) generateTerminator(fn *ir.Function, block *ir.BasicBlock, term ir.Terminator, loadValue func(*ir.Value) []byte, fail func(string, ...interface{}) error, buf *[]byte) error {
	switch t := term.(type) {
	case nil:
		return fail("block has no terminator")

	case *ir.JumpTerminator:
		g.pushBlockPlaceholder(buf, t.Target)
		*buf = append(*buf, byte(JUMP))
		return nil

	case *ir.BranchTerminator:
		*buf = append(*buf, loadValue(t.Condition)...)
		g.pushBlockPlaceholder(buf, t.TrueBlock)
		*buf = append(*buf, byte(JUMPI))
		g.pushBlockPlaceholder(buf, t.FalseBlock)
		*buf = append(*buf, byte(JUMP))
		return nil

	case *ir.ReturnTerminator:
		if t.Value != nil {
			*buf = append(*buf, loadValue(t.Value)...)
			p := newPipe([]Brand{"value"})
			p.then(pushn(uint256.NewInt(0), "offset"))
			p.then(op(MSTORE, 2, ""))
			code, _ := p.done()
			*buf = append(*buf, code...)
			p2 := newPipe(nil)
			p2.then(pushn(uint256.NewInt(0x20), "size"))
			p2.then(pushn(uint256.NewInt(0), "offset"))
			code2, _ := p2.done()
			*buf = append(*buf, code2...)
			*buf = append(*buf, byte(RETURN))
		} else {
			*buf = append(*buf, byte(STOP))
		}
		return nil

	case *ir.RevertInstruction:
		// REVERT pops [offset, size]; a reasonless revert pushes a
		// zero-length region rather than leaving the stack short, which
		// would otherwise abort on stack underflow and burn all gas
		// instead of performing a clean, gas-refunding revert.
		*buf = append(*buf, byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(REVERT))
		return nil

	default:
		return fail("no codegen lowering for terminator %T", t)
	}
}

// pushBlockPlaceholder appends a 2-byte PUSH2 immediate for a jump target to
// buf and records a patch site relative to buf's own start; the real
// program counter is only known once every function's blocks have been
// emitted and rebaseBlockPatches has folded in this block's final position.
func (g *Generator) pushBlockPlaceholder(buf *[]byte, target *ir.BasicBlock) {
	immOffset := len(*buf) + 1
	*buf = append(*buf, byte(PUSH1+1), 0x00, 0x00)
	g.localPatch = append(g.localPatch, patchSite{offset: immOffset, target: target})
}
