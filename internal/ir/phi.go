package ir

import "fmt"

// Liveness, pruned phi placement and dominator-tree-preorder renaming: the
// second half of formal SSA construction (dominance.go builds the tree and
// frontiers this half consumes). Mirrors the textbook Cytron et al.
// construction minimal SSA is built from, pruned by liveness exactly as
// golang.org/x/tools/go/ssa's lift.go does so a phi is never materialized
// for a variable dead at the merge point.

// computeLiveness runs the standard backward liveness dataflow over a
// function's blocks, using each block's Defs/Uses (recorded while building)
// as the def/use sets, and returns the live-in set for every block.
func computeLiveness(fn *Function) map[*BasicBlock]map[string]bool {
	liveIn := make(map[*BasicBlock]map[string]bool, len(fn.Blocks))
	liveOut := make(map[*BasicBlock]map[string]bool, len(fn.Blocks))
	for _, block := range fn.Blocks {
		liveIn[block] = make(map[string]bool)
		liveOut[block] = make(map[string]bool)
	}

	changed := true
	for changed {
		changed = false
		for _, block := range fn.Blocks {
			out := make(map[string]bool)
			for _, succ := range block.Successors {
				for v := range liveIn[succ] {
					out[v] = true
				}
			}

			in := make(map[string]bool, len(block.Uses))
			for v := range block.Uses {
				in[v] = true
			}
			for v := range out {
				if !block.Defs[v].isDefined() {
					in[v] = true
				}
			}

			if !setEqual(in, liveIn[block]) {
				liveIn[block] = in
				changed = true
			}
			if !setEqual(out, liveOut[block]) {
				liveOut[block] = out
				changed = true
			}
		}
	}
	return liveIn
}

// isDefined treats a nil *Value (absent map entry) as "not a local def",
// mirroring the ", ok" check writeVariable/readVariable use elsewhere.
func (v *Value) isDefined() bool { return v != nil }

func setEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// placePhis computes, for every source-level local, the iterated dominance
// frontier of its definition blocks and places a phi there - pruned to
// blocks where the variable is actually live-in, so a variable that is
// reassigned in both arms of a branch but never read afterward gets no phi.
func placePhis(b *Builder, fn *Function, df map[*BasicBlock][]*BasicBlock, liveIn map[*BasicBlock]map[string]bool) map[*BasicBlock]map[string]*PhiInstruction {
	defBlocks := make(map[string][]*BasicBlock)
	for _, block := range fn.Blocks {
		for v := range block.Defs {
			defBlocks[v] = append(defBlocks[v], block)
		}
	}

	phis := make(map[*BasicBlock]map[string]*PhiInstruction)

	for v, defs := range defBlocks {
		hasPhi := make(map[*BasicBlock]bool)
		worklist := append([]*BasicBlock{}, defs...)

		for len(worklist) > 0 {
			block := worklist[0]
			worklist = worklist[1:]
			for _, y := range df[block] {
				if hasPhi[y] {
					continue
				}
				hasPhi[y] = true
				if !liveIn[y][v] {
					continue // pruned: dead at the merge point
				}
				if phis[y] == nil {
					phis[y] = make(map[string]*PhiInstruction)
				}
				result := freshValue(b, v, &IntType{Bits: 256}, y)
				phi := &PhiInstruction{
					ID:     b.nextInstID(),
					Result: result,
					Block:  y,
					Inputs: make(map[*BasicBlock]*Value),
				}
				phis[y][v] = phi
				y.Instructions = append([]Instruction{phi}, y.Instructions...)
				worklist = append(worklist, y)
			}
		}
	}

	return phis
}

// freshValue mints a new SSA value explicitly attributed to block, used by
// the phi pass instead of Builder.createValue because the phi's home block
// is not necessarily the block currently being lowered.
func freshValue(b *Builder, name string, typ Type, block *BasicBlock) *Value {
	v := &Value{
		ID:       b.valueCounter,
		Name:     fmt.Sprintf("%s_%d", name, b.valueCounter),
		Type:     typ,
		DefBlock: block,
		Uses:     []*Use{},
	}
	b.valueCounter++
	return v
}

// renameVariables walks the dominator tree in preorder from fn.Entry,
// propagating each local's current value down from dominator to dominated
// block (through a just-placed phi where one exists), resolves every
// pending cross-block read against the value live at its block, and -
// once every block's value is known - fills each phi's per-predecessor
// input. This is the standard dominator-tree renaming pass; the two-phase
// split (resolve-then-fill) is needed because a phi at a loop header has a
// back-edge predecessor that is itself dominated by the header, so it is
// only renamed *after* the header in preorder.
func renameVariables(fn *Function, phis map[*BasicBlock]map[string]*PhiInstruction, liveIn map[*BasicBlock]map[string]bool, pendingReads []*Value) {
	if fn.Entry == nil {
		return
	}

	exitVal := make(map[*BasicBlock]map[string]*Value, len(fn.Blocks))
	pendingByBlock := make(map[*BasicBlock][]*Value)
	for _, p := range pendingReads {
		if p.Unresolved {
			pendingByBlock[p.DefBlock] = append(pendingByBlock[p.DefBlock], p)
		}
	}

	var visit func(block *BasicBlock, incoming map[string]*Value)
	visit = func(block *BasicBlock, incoming map[string]*Value) {
		here := make(map[string]*Value, len(incoming))
		for v, val := range incoming {
			here[v] = val
		}
		for v, phi := range phis[block] {
			here[v] = phi.Result
		}

		for _, p := range pendingByBlock[block] {
			if val, ok := here[p.VarName]; ok && val != nil {
				p.Unresolved = false
				p.ID = val.ID
				p.Name = val.Name
				p.Type = val.Type
				p.DefBlock = val.DefBlock
				p.DefInst = val.DefInst
				p.Version = val.Version
			}
		}

		for v := range liveIn[block] {
			if val, ok := here[v]; ok {
				block.LiveIn[v] = val
			}
		}

		out := make(map[string]*Value, len(here))
		for v, val := range here {
			out[v] = val
		}
		for v, def := range block.Defs {
			out[v] = def
		}
		exitVal[block] = out
		for v, val := range out {
			block.LiveOut[v] = val
		}

		for _, child := range block.Dominates {
			visit(child, out)
		}
	}
	visit(fn.Entry, map[string]*Value{})

	for block, vars := range phis {
		for v, phi := range vars {
			for _, pred := range block.Predecessors {
				if out, ok := exitVal[pred]; ok {
					if val, ok := out[v]; ok && val != nil {
						phi.Inputs[pred] = val
						continue
					}
				}
				// pred unreachable in the dominator walk (e.g. a
				// dead branch folded away upstream): leave unset
				// rather than fabricate a value codegen can't trust.
			}
		}
	}
}
