package ir

// Dominator-tree construction and dominance-frontier computation, grounded
// on the same engineering golang.org/x/tools/go/ssa's lift.go relies on to
// turn a naively built CFG into minimal SSA: Cooper, Harvey & Kennedy's
// "A Simple, Fast Dominance Algorithm" for the tree, Cytron et al.'s
// iterated-dominance-frontier construction for phi placement in phi.go.

// reversePostorder walks the CFG reachable from entry via Successors and
// returns its blocks in reverse postorder, the traversal order the
// Cooper-Harvey-Kennedy fixpoint needs to converge in one or two passes.
func reversePostorder(entry *BasicBlock) []*BasicBlock {
	visited := make(map[*BasicBlock]bool)
	var postorder []*BasicBlock

	var visit func(*BasicBlock)
	visit = func(block *BasicBlock) {
		if block == nil || visited[block] {
			return
		}
		visited[block] = true
		for _, succ := range block.Successors {
			visit(succ)
		}
		postorder = append(postorder, block)
	}
	visit(entry)

	rpo := make([]*BasicBlock, len(postorder))
	for i, block := range postorder {
		rpo[len(postorder)-1-i] = block
	}
	return rpo
}

// ComputeDominance assigns each reachable block (other than the entry) its
// immediate dominator in DominatedBy, and rebuilds each block's Dominates
// list of dominator-tree children. Unreachable blocks (never visited from
// fn.Entry along Successors edges — e.g. a join block both of whose
// incoming branches already returned) are left with a nil DominatedBy and
// are not part of the tree.
func ComputeDominance(fn *Function) {
	if fn.Entry == nil {
		return
	}
	for _, block := range fn.Blocks {
		block.DominatedBy = nil
		block.Dominates = nil
	}

	rpo := reversePostorder(fn.Entry)
	if len(rpo) == 0 {
		return
	}
	index := make(map[*BasicBlock]int, len(rpo))
	for i, block := range rpo {
		index[block] = i
	}

	idom := make(map[*BasicBlock]*BasicBlock, len(rpo))
	idom[fn.Entry] = fn.Entry

	intersect := func(a, b *BasicBlock) *BasicBlock {
		for a != b {
			for index[a] > index[b] {
				a = idom[a]
			}
			for index[b] > index[a] {
				b = idom[b]
			}
		}
		return a
	}

	changed := true
	for changed {
		changed = false
		for _, block := range rpo[1:] {
			var newIdom *BasicBlock
			for _, pred := range block.Predecessors {
				if idom[pred] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = pred
					continue
				}
				newIdom = intersect(newIdom, pred)
			}
			if newIdom != nil && idom[block] != newIdom {
				idom[block] = newIdom
				changed = true
			}
		}
	}

	for _, block := range rpo[1:] {
		parent := idom[block]
		if parent == nil || parent == block {
			continue
		}
		block.DominatedBy = parent
		parent.Dominates = append(parent.Dominates, block)
	}
}

// ComputeDominanceFrontiers returns, for every reachable block b, the set of
// blocks at which b's dominance stops - i.e. the blocks where a definition
// reaching the end of b must be merged with another incoming definition.
// This is exactly Cytron et al.'s DF(n): for each block with two or more
// predecessors, walk each predecessor up its dominator chain until hitting
// the block's own immediate dominator, recording the join block along the
// way.
func ComputeDominanceFrontiers(fn *Function) map[*BasicBlock][]*BasicBlock {
	df := make(map[*BasicBlock][]*BasicBlock)
	for _, block := range fn.Blocks {
		if len(block.Predecessors) < 2 {
			continue
		}
		for _, pred := range block.Predecessors {
			if pred.DominatedBy == nil && pred != fn.Entry {
				continue // pred itself unreachable
			}
			run := pred
			for run != block.DominatedBy && run != nil {
				df[run] = appendUnique(df[run], block)
				run = run.DominatedBy
			}
		}
	}
	return df
}

func appendUnique(list []*BasicBlock, block *BasicBlock) []*BasicBlock {
	for _, b := range list {
		if b == block {
			return list
		}
	}
	return append(list, block)
}
