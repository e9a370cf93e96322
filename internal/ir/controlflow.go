package ir

import "kanso/internal/ast"

// Control-flow lowering builds if/while/for statements as a plain CFG:
// blocks, branches and jumps are wired up here exactly once, in the order
// the source is read, and every variable read is resolved through
// Builder.readVariable, which returns a same-block value immediately or an
// unresolved placeholder when the value can only be known once the whole
// function (including back edges) has been built. Builder.sealAllBlocks
// then runs the formal dominance/phi pass (dominance.go, phi.go) that
// places real phis at the iterated dominance frontier of each variable's
// definitions and resolves every placeholder against it - so this file's
// only job is to get the block graph right.

// buildNestedBlock builds the statements of a block nested inside a branch or
// loop body. Unlike buildBlock, a trailing tail expression here is evaluated
// purely for its side effects and does not force a return terminator: only
// the function's own top-level body produces an implicit return.
func (b *Builder) buildNestedBlock(block *ast.FunctionBlock) {
	for _, item := range block.Items {
		if b.currentBlock.Terminator != nil {
			break
		}
		b.buildBlockItem(item)
	}
	if block.TailExpr != nil && b.currentBlock.Terminator == nil {
		b.buildExpression(block.TailExpr.Expr)
	}
}

func (b *Builder) buildAssertStatement(assertStmt *ast.AssertStmt) {
	var condition *Value
	if len(assertStmt.Args) >= 1 {
		condition = b.buildExpression(assertStmt.Args[0])
	}

	successBlock := b.createBlock("assert_ok")
	revertBlock := b.createBlock("assert_fail")

	successBlock.Predecessors = []*BasicBlock{b.currentBlock}
	revertBlock.Predecessors = []*BasicBlock{b.currentBlock}

	branch := &BranchTerminator{
		ID:         b.nextInstID(),
		Block:      b.currentBlock,
		Condition:  condition,
		TrueBlock:  successBlock,
		FalseBlock: revertBlock,
	}
	b.currentBlock.Terminator = branch
	b.currentBlock.Successors = append(b.currentBlock.Successors, successBlock, revertBlock)

	revertBlock.Terminator = &RevertInstruction{ID: b.nextInstID(), Block: revertBlock}

	assumeInst := &AssumeInstruction{ID: b.nextInstID(), Block: successBlock, Predicate: condition}
	successBlock.Instructions = append(successBlock.Instructions, assumeInst)

	b.currentBlock = successBlock
}

// joinUnreachable gives a join block with no surviving predecessor (every
// incoming branch already terminated via return/revert) a terminator so the
// CFG stays well-formed; the dominance pass simply never visits it, since it
// is unreachable from the entry block.
func joinUnreachable(b *Builder, join *BasicBlock) {
	if len(join.Predecessors) == 0 {
		join.Terminator = &ReturnTerminator{ID: b.nextInstID(), Block: join, Value: nil}
	}
}

func (b *Builder) buildIfStmt(ifStmt *ast.IfStmt) {
	cond := b.buildExpression(ifStmt.Condition)

	entryBlock := b.currentBlock
	thenBlock := b.createBlock("then")
	joinBlock := b.createBlock("endif")

	elseBlock := joinBlock
	hasElse := ifStmt.ElseBlock != nil
	if hasElse {
		elseBlock = b.createBlock("else")
	}

	branch := &BranchTerminator{
		ID:         b.nextInstID(),
		Block:      entryBlock,
		Condition:  cond,
		TrueBlock:  thenBlock,
		FalseBlock: elseBlock,
	}
	entryBlock.Terminator = branch
	entryBlock.Successors = append(entryBlock.Successors, thenBlock, elseBlock)
	thenBlock.Predecessors = append(thenBlock.Predecessors, entryBlock)
	if elseBlock != joinBlock {
		elseBlock.Predecessors = append(elseBlock.Predecessors, entryBlock)
	} else {
		joinBlock.Predecessors = append(joinBlock.Predecessors, entryBlock)
	}

	b.currentBlock = thenBlock
	b.buildNestedBlock(&ifStmt.ThenBlock)
	thenEnd := b.currentBlock
	thenFallsThrough := thenEnd.Terminator == nil

	elseEnd := elseBlock
	elseFallsThrough := true
	if hasElse {
		b.currentBlock = elseBlock
		b.buildNestedBlock(ifStmt.ElseBlock)
		elseEnd = b.currentBlock
		elseFallsThrough = elseEnd.Terminator == nil
	}

	if thenFallsThrough {
		thenEnd.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: thenEnd, Target: joinBlock}
		thenEnd.Successors = append(thenEnd.Successors, joinBlock)
		joinBlock.Predecessors = append(joinBlock.Predecessors, thenEnd)
	}
	if hasElse && elseFallsThrough {
		elseEnd.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: elseEnd, Target: joinBlock}
		elseEnd.Successors = append(elseEnd.Successors, joinBlock)
		joinBlock.Predecessors = append(joinBlock.Predecessors, elseEnd)
	}

	b.currentBlock = joinBlock
	joinUnreachable(b, joinBlock)
}

func (b *Builder) buildWhileStmt(whileStmt *ast.WhileStmt) {
	entryBlock := b.currentBlock
	headerBlock := b.createBlock("loop_header")
	bodyBlock := b.createBlock("loop_body")
	exitBlock := b.createBlock("loop_exit")

	entryBlock.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: entryBlock, Target: headerBlock}
	entryBlock.Successors = append(entryBlock.Successors, headerBlock)
	headerBlock.Predecessors = append(headerBlock.Predecessors, entryBlock)

	b.currentBlock = headerBlock
	cond := b.buildExpression(whileStmt.Cond)
	headerBranch := &BranchTerminator{
		ID:         b.nextInstID(),
		Block:      headerBlock,
		Condition:  cond,
		TrueBlock:  bodyBlock,
		FalseBlock: exitBlock,
	}
	headerBlock.Terminator = headerBranch
	headerBlock.Successors = append(headerBlock.Successors, bodyBlock, exitBlock)
	bodyBlock.Predecessors = append(bodyBlock.Predecessors, headerBlock)
	exitBlock.Predecessors = append(exitBlock.Predecessors, headerBlock)

	b.loopStack = append(b.loopStack, &loopContext{headerBlock: headerBlock, exitBlock: exitBlock})

	b.currentBlock = bodyBlock
	b.buildNestedBlock(whileStmt.Body)
	if b.currentBlock.Terminator == nil {
		b.currentBlock.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: b.currentBlock, Target: headerBlock}
		b.currentBlock.Successors = append(b.currentBlock.Successors, headerBlock)
		headerBlock.Predecessors = append(headerBlock.Predecessors, b.currentBlock)
	}

	b.loopStack = b.loopStack[:len(b.loopStack)-1]
	b.currentBlock = exitBlock
}

func (b *Builder) buildForStmt(forStmt *ast.ForStmt) {
	if forStmt.Init != nil {
		b.buildBlockItem(forStmt.Init)
	}

	entryBlock := b.currentBlock
	headerBlock := b.createBlock("for_header")
	bodyBlock := b.createBlock("for_body")
	stepBlock := b.createBlock("for_step")
	exitBlock := b.createBlock("for_exit")

	entryBlock.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: entryBlock, Target: headerBlock}
	entryBlock.Successors = append(entryBlock.Successors, headerBlock)
	headerBlock.Predecessors = append(headerBlock.Predecessors, entryBlock)

	b.currentBlock = headerBlock
	if forStmt.Cond != nil {
		cond := b.buildExpression(forStmt.Cond)
		headerBlock.Terminator = &BranchTerminator{
			ID: b.nextInstID(), Block: headerBlock, Condition: cond,
			TrueBlock: bodyBlock, FalseBlock: exitBlock,
		}
	} else {
		headerBlock.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: headerBlock, Target: bodyBlock}
	}
	headerBlock.Successors = append(headerBlock.Successors, bodyBlock, exitBlock)
	bodyBlock.Predecessors = append(bodyBlock.Predecessors, headerBlock)
	exitBlock.Predecessors = append(exitBlock.Predecessors, headerBlock)

	b.loopStack = append(b.loopStack, &loopContext{headerBlock: stepBlock, exitBlock: exitBlock})

	b.currentBlock = bodyBlock
	b.buildNestedBlock(forStmt.Body)
	if b.currentBlock.Terminator == nil {
		b.currentBlock.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: b.currentBlock, Target: stepBlock}
		b.currentBlock.Successors = append(b.currentBlock.Successors, stepBlock)
		stepBlock.Predecessors = append(stepBlock.Predecessors, b.currentBlock)
	}

	b.loopStack = b.loopStack[:len(b.loopStack)-1]

	b.currentBlock = stepBlock
	if forStmt.Step != nil {
		b.buildBlockItem(forStmt.Step)
	}
	if b.currentBlock.Terminator == nil {
		b.currentBlock.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: b.currentBlock, Target: headerBlock}
		b.currentBlock.Successors = append(b.currentBlock.Successors, headerBlock)
		headerBlock.Predecessors = append(headerBlock.Predecessors, b.currentBlock)
	}

	b.currentBlock = exitBlock
}

func (b *Builder) buildBreakStmt(_ *ast.BreakStmt) {
	if len(b.loopStack) == 0 {
		return
	}
	target := b.loopStack[len(b.loopStack)-1].exitBlock
	b.currentBlock.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: b.currentBlock, Target: target}
	b.currentBlock.Successors = append(b.currentBlock.Successors, target)
	target.Predecessors = append(target.Predecessors, b.currentBlock)
}

func (b *Builder) buildContinueStmt(_ *ast.ContinueStmt) {
	if len(b.loopStack) == 0 {
		return
	}
	target := b.loopStack[len(b.loopStack)-1].headerBlock
	b.currentBlock.Terminator = &JumpTerminator{ID: b.nextInstID(), Block: b.currentBlock, Target: target}
	b.currentBlock.Successors = append(b.currentBlock.Successors, target)
	target.Predecessors = append(target.Predecessors, b.currentBlock)
}
