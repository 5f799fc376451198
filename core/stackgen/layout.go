package stackgen

import "time"

// BlockLayout is the resolved entry and exit stack for one BasicBlock.
type BlockLayout struct {
	Entry Stack
	Exit  Stack
}

// Layout is the complete output of GenerateLayout: the entry/exit stack for
// every block, and the stack expected just before every operation.
type Layout struct {
	Block     map[*BasicBlock]BlockLayout
	Operation map[*Operation]Stack
}

type blockInfo struct {
	entryLayout Stack
	exitLayout  Stack
}

type layoutGenerator struct {
	dfg            *DFG
	blockInfos     map[*BasicBlock]*blockInfo
	operationEntry map[*Operation]Stack
}

func newLayoutGenerator(dfg *DFG) *layoutGenerator {
	return &layoutGenerator{
		dfg:            dfg,
		blockInfos:     make(map[*BasicBlock]*blockInfo),
		operationEntry: make(map[*Operation]Stack),
	}
}

func (g *layoutGenerator) infoFor(b *BasicBlock) *blockInfo {
	info, ok := g.blockInfos[b]
	if !ok {
		info = &blockInfo{}
		g.blockInfos[b] = info
	}
	return info
}

// GenerateLayout runs the full backward stack layout pass over dfg: for
// every block it decides an entry and exit layout, stitches Junk into
// conditional-jump successors' layouts where they diverge, and (unless
// BestEffort repair exhausts its options) resolves any operation whose
// required inputs have drifted out of the VM's swap/dup reach.
func GenerateLayout(dfg *DFG, opts CompileOptions) (*Layout, error) {
	defer func(start time.Time) { layoutTimer.UpdateSince(start) }(time.Now())

	g := newLayoutGenerator(dfg)

	g.processEntryPoint(dfg.Entry)
	for _, fi := range orderedFunctions(dfg) {
		g.processEntryPoint(fi.Entry)
	}

	g.stitchConditionalJumps(dfg.Entry)
	for _, fi := range orderedFunctions(dfg) {
		g.stitchConditionalJumps(fi.Entry)
	}

	if err := g.fixStackTooDeep(dfg.Entry, opts.BestEffort); err != nil {
		return nil, err
	}
	for _, fi := range orderedFunctions(dfg) {
		if err := g.fixStackTooDeep(fi.Entry, opts.BestEffort); err != nil {
			return nil, err
		}
	}

	layout := &Layout{
		Block:     make(map[*BasicBlock]BlockLayout, len(g.blockInfos)),
		Operation: make(map[*Operation]Stack, len(g.operationEntry)),
	}
	for b, info := range g.blockInfos {
		layout.Block[b] = BlockLayout{Entry: info.entryLayout, Exit: info.exitLayout}
	}
	for op, s := range g.operationEntry {
		layout.Operation[op] = s
	}
	compiledCounter.Inc(1)
	return layout, nil
}

// propagateThroughOperation computes the stack an Operation requires on
// entry, given the stack already decided for its exit. It picks, for each
// already-present occurrence of one of the operation's output slots, a
// single occurrence to treat as "produced here"; everything else in the
// exit stack must already have existed (carried through unmodified). This
// is a deliberately simplified stand-in for the upstream generator's
// optimal-permutation search: it always yields a stack the
// forward shuffler can complete correctly, just not always with the fewest
// possible instructions when a value is duplicated many ways.
func (g *layoutGenerator) propagateThroughOperation(exit Stack, op *Operation) Stack {
	claimed := make([]bool, len(exit))
	for _, out := range op.Output {
		for i := len(exit) - 1; i >= 0; i-- {
			if !claimed[i] && exit[i].Equal(out) {
				claimed[i] = true
				break
			}
		}
	}

	pre := make(Stack, 0, len(exit))
	for i, slot := range exit {
		if !claimed[i] {
			pre = append(pre, slot)
		}
	}

	if op.Kind == OpAssignment {
		for i := range pre {
			if pre[i].Kind != SlotVariable {
				continue
			}
			for _, v := range op.Variables {
				if pre[i].Variable == v {
					pre[i] = JunkSlot()
					break
				}
			}
		}
	}

	pre = append(pre, op.Input...)

	g.operationEntry[op] = pre.Clone()

	for len(pre) > 0 {
		top := pre[len(pre)-1]
		if top.Regenerable() {
			pre = pre[:len(pre)-1]
			continue
		}
		if _, ok := FindOffset(pre[:len(pre)-1], top); ok {
			pre = pre[:len(pre)-1]
			continue
		}
		break
	}

	const compactThreshold = 12
	if len(pre) > compactThreshold {
		compact := make(Stack, 0, len(pre))
		for _, s := range pre {
			if s.Kind == SlotLiteral || s.Kind == SlotCallReturnLabel {
				continue
			}
			if _, ok := FindOffset(compact, s); ok {
				continue
			}
			compact = append(compact, s)
		}
		pre = compact
	}

	return pre
}

func (g *layoutGenerator) propagateThroughBlock(exit Stack, block *BasicBlock) Stack {
	stack := exit
	for i := len(block.Operations) - 1; i >= 0; i-- {
		stack = g.propagateThroughOperation(stack, block.Operations[i])
	}
	return stack
}

// processEntryPoint runs the backward worklist fixed-point from entry: a
// block's exit layout is decided once every successor it depends on has
// one, and its entry layout then follows by propagating back through its
// operations. Blocks closing a loop (backwards jumps) are revisited once
// their target's entry layout stabilizes, since the first pass may not yet
// have everything the loop body needs available at the back-edge.
func (g *layoutGenerator) processEntryPoint(entry *BasicBlock) {
	toVisit := []*BasicBlock{entry}
	visited := make(map[*BasicBlock]bool)
	type backEdge struct{ from, to *BasicBlock }
	var backwardsJumps []backEdge

	pushFront := func(b *BasicBlock) { toVisit = append([]*BasicBlock{b}, toVisit...) }
	pushBack := func(b *BasicBlock) { toVisit = append(toVisit, b) }

	for len(toVisit) > 0 {
		block := toVisit[0]
		toVisit = toVisit[1:]
		if visited[block] {
			continue
		}

		var exitLayout Stack
		ready := false

		switch block.Exit.Kind {
		case ExitMain, ExitTerminated:
			visited[block] = true
			exitLayout = Stack{}
			ready = true
		case ExitJump:
			target := block.Exit.Target
			if block.Exit.Backwards {
				visited[block] = true
				backwardsJumps = append(backwardsJumps, backEdge{block, target})
				if info, ok := g.blockInfos[target]; ok {
					exitLayout = info.entryLayout
				} else {
					exitLayout = Stack{}
				}
				ready = true
			} else if visited[target] {
				visited[block] = true
				exitLayout = g.blockInfos[target].entryLayout
				ready = true
			} else {
				pushFront(target)
			}
		case ExitConditionalJump:
			zero, nonZero := block.Exit.Zero, block.Exit.NonZero
			zeroVisited, nonZeroVisited := visited[zero], visited[nonZero]
			if zeroVisited && nonZeroVisited {
				stack := combineStack(g.blockInfos[zero].entryLayout, g.blockInfos[nonZero].entryLayout)
				stack = append(stack, block.Exit.Condition)
				visited[block] = true
				exitLayout = stack
				ready = true
			} else {
				if !zeroVisited {
					pushFront(zero)
				}
				if !nonZeroVisited {
					pushFront(nonZero)
				}
			}
		case ExitFunctionReturn:
			fi := block.Exit.Function
			stack := make(Stack, 0, len(fi.ReturnVariables)+1)
			for _, v := range fi.ReturnVariables {
				stack = append(stack, VariableSlot(v))
			}
			stack = append(stack, FunctionReturnLabelSlot())
			visited[block] = true
			exitLayout = stack
			ready = true
		}

		if !ready {
			continue
		}

		info := g.infoFor(block)
		info.exitLayout = exitLayout
		info.entryLayout = g.propagateThroughBlock(exitLayout, block)

		for _, e := range block.Entries {
			pushBack(e)
		}
	}

	for _, be := range backwardsJumps {
		targetInfo := g.blockInfos[be.to]
		fromInfo := g.blockInfos[be.from]
		missing := false
		for _, slot := range targetInfo.entryLayout {
			if _, ok := FindOffset(fromInfo.exitLayout, slot); !ok {
				missing = true
				break
			}
		}
		if missing {
			g.processEntryPoint(be.from)
		}
	}
}

// combineStack finds a join-point layout compatible with both stack1 and
// stack2: a common prefix kept as is, plus a permutation of the remaining
// slots chosen (via a Heap's-algorithm sweep over candidate orderings, each
// scored by the shuffle cost to reach stack1 and stack2 from it) to
// minimise total shuffle cost from that point to either side.
func combineStack(stack1, stack2 Stack) Stack {
	if len(stack1) == 0 {
		return stack2
	}
	if len(stack2) == 0 {
		return stack1
	}

	prefixLen := commonPrefixLen(stack1, stack2)
	commonPrefix := stack1[:prefixLen].Clone()
	rest1 := stack1[prefixLen:]
	rest2 := stack2[prefixLen:]

	var candidate Stack
	for _, s := range rest1 {
		if _, ok := FindOffset(candidate, s); !ok {
			candidate = append(candidate, s)
		}
	}
	for _, s := range rest2 {
		if _, ok := FindOffset(candidate, s); !ok {
			candidate = append(candidate, s)
		}
	}
	filtered := candidate[:0]
	for _, s := range candidate {
		if s.Kind == SlotLiteral || s.Kind == SlotCallReturnLabel {
			continue
		}
		filtered = append(filtered, s)
	}
	candidate = filtered

	evaluate := func(c Stack) int {
		ops := 0
		createStackLayout(c.Clone(), rest1, countingCallbacks(&ops))
		createStackLayout(c.Clone(), rest2, countingCallbacks(&ops))
		return ops
	}

	best := candidate.Clone()
	bestScore := evaluate(candidate)

	// See https://en.wikipedia.org/wiki/Heap's_algorithm. This sweep
	// mirrors the upstream generator's own enumeration exactly, including
	// its choice to advance i rather than reset it to 1 after a swap,
	// which trades exhaustive coverage of all n! permutations for a single
	// bounded pass; see DESIGN.md.
	n := len(candidate)
	if n > 1 {
		c := make([]int, n)
		perm := candidate.Clone()
		i := 1
		for i < n {
			if c[i] < i {
				if i%2 == 1 {
					perm[0], perm[i] = perm[i], perm[0]
				} else {
					perm[c[i]], perm[i] = perm[i], perm[c[i]]
				}
				if score := evaluate(perm); score < bestScore {
					bestScore = score
					best = perm.Clone()
				}
				c[i]++
				i++
			} else {
				c[i] = 0
				i++
			}
		}
	}

	return append(commonPrefix, best...)
}

// stitchConditionalJumps walks every conditional jump reachable from root
// and sets each successor's entry layout to the jumping block's exit layout
// minus the condition slot, with every slot the successor does not need
// replaced by Junk, so both branches start from the stack the jump actually
// leaves.
func (g *layoutGenerator) stitchConditionalJumps(root *BasicBlock) {
	visited := make(map[*BasicBlock]bool)
	queue := []*BasicBlock{root}
	for len(queue) > 0 {
		block := queue[0]
		queue = queue[1:]
		if visited[block] {
			continue
		}
		visited[block] = true

		switch block.Exit.Kind {
		case ExitJump:
			if !block.Exit.Backwards {
				queue = append(queue, block.Exit.Target)
			}
		case ExitConditionalJump:
			info := g.blockInfos[block]
			mustHold(len(info.exitLayout) > 0, "conditional jump exit layout must include the condition slot")
			exit := info.exitLayout[:len(info.exitLayout)-1]

			zeroInfo := g.blockInfos[block.Exit.Zero]
			nonZeroInfo := g.blockInfos[block.Exit.NonZero]
			zeroInfo.entryLayout = stitchAbsent(exit, zeroInfo.entryLayout)
			nonZeroInfo.entryLayout = stitchAbsent(exit, nonZeroInfo.entryLayout)

			queue = append(queue, block.Exit.Zero, block.Exit.NonZero)
		}
	}
}

func stitchAbsent(exit, targetEntry Stack) Stack {
	out := exit.Clone()
	for i, slot := range out {
		if _, ok := FindOffset(targetEntry, slot); !ok {
			out[i] = JunkSlot()
		}
	}
	return out
}

// tryCreateStackLayout reports which non-regenerable slots of target are
// absent from current entirely (and so could never be reached by any
// sequence of swaps/dups/pops alone).
func tryCreateStackLayout(current, target Stack) Stack {
	var unreachable Stack
	for _, slot := range target {
		if slot.Regenerable() {
			continue
		}
		if _, ok := FindOffset(current, slot); !ok {
			unreachable = append(unreachable, slot)
		}
	}
	return unreachable
}

// fixStackTooDeep walks every block reachable from entry and, for each
// operation, checks whether the stack built up so far actually contains
// everything the operation's recorded entry layout needs. Where it
// doesn't (a variable has drifted unreachably deep), it threads the
// missing slots through every preceding operation's entry layout so they
// stay within reach — an ad hoc repair, not a guaranteed one, matching the
// upstream generator's own "initial proof of concept" posture for this
// pass. With bestEffort false this instead reports the first such
// occurrence as an error.
func (g *layoutGenerator) fixStackTooDeep(entry *BasicBlock, bestEffort bool) error {
	visited := make(map[*BasicBlock]bool)
	queue := []*BasicBlock{entry}
	for len(queue) > 0 {
		block := queue[0]
		queue = queue[1:]
		if visited[block] {
			continue
		}
		visited[block] = true

		info := g.blockInfos[block]
		stack := info.entryLayout.Clone()
		for idx, op := range block.Operations {
			opEntry := g.operationEntry[op]
			unreachable := tryCreateStackLayout(stack, opEntry)
			if len(unreachable) > 0 {
				if !bestEffort {
					return stackTooDeepErr(unreachable, op.Loc)
				}
				debugWarn("stackgen: threading stack-too-deep slot through preceding operations", "block", block.ID, "count", len(unreachable))
				g.threadMissing(block.Operations[:idx], unreachable)
			}
			stack = opEntry.Clone()
			stack = stack[:len(stack)-len(op.Input)]
			stack = append(stack, op.Output...)
		}

		unreachable := tryCreateStackLayout(stack, info.exitLayout)
		if len(unreachable) > 0 {
			if !bestEffort {
				return stackTooDeepErr(unreachable, SourceLocation{})
			}
			g.threadMissing(block.Operations, unreachable)
		}

		switch block.Exit.Kind {
		case ExitJump:
			if !block.Exit.Backwards {
				queue = append(queue, block.Exit.Target)
			}
		case ExitConditionalJump:
			queue = append(queue, block.Exit.Zero, block.Exit.NonZero)
		}
	}
	return nil
}

// threadMissing splices missing into every operation entry layout in ops,
// just below that operation's own input slots, so a later operation that
// needs one of those slots can still reach it.
func (g *layoutGenerator) threadMissing(ops []*Operation, missing Stack) {
	for j := len(ops) - 1; j >= 0; j-- {
		prior := ops[j]
		priorEntry := g.operationEntry[prior]
		keep := len(priorEntry) - len(prior.Input)
		newEntry := make(Stack, 0, len(priorEntry)+len(missing))
		newEntry = append(newEntry, priorEntry[:keep]...)
		newEntry = append(newEntry, missing...)
		newEntry = append(newEntry, priorEntry[keep:]...)
		g.operationEntry[prior] = newEntry
	}
}

func stackTooDeepErr(unreachable Stack, loc SourceLocation) error {
	stackTooDeepCounter.Inc(1)
	v := VariableID(0)
	for _, s := range unreachable {
		if s.Kind == SlotVariable {
			v = s.Variable
			break
		}
	}
	return &StackTooDeepError{Variable: v, Loc: loc}
}
