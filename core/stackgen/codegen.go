package stackgen

import "github.com/holiman/uint256"

func zeroLiteral() *uint256.Int { return uint256.NewInt(0) }

// Generate walks dfg in execution order, driven by layout, and appends the
// resulting instruction stream to sink. useNamedLabels controls whether
// function entry labels carry their source name (useful for a
// human-readable listing) or are anonymous numeric labels. It returns
// ErrUnreachableSlot if layout and dfg disagree about what is reachable at
// some point, which indicates a bug in the layout generator rather than in
// the input program.
func Generate(dfg *DFG, layout *Layout, dialect Dialect, sink AssemblySink, useNamedLabels bool) error {
	g := &codeGenerator{
		dfg:            dfg,
		layout:         layout,
		dialect:        dialect,
		sink:           sink,
		useNamedLabels: useNamedLabels,
		returnLabels:   make(map[CallID]LabelID),
		blockLabels:    make(map[*BasicBlock]LabelID),
		functionLabels: make(map[*FunctionInfo]LabelID),
		generated:      make(map[*BasicBlock]bool),
		generatedFuncs: make(map[*FunctionInfo]bool),
	}
	g.sink.SetStackHeight(0)
	g.generateBlock(dfg.Entry)
	g.generateStaged()
	return g.err
}

type codeGenerator struct {
	dfg     *DFG
	layout  *Layout
	dialect Dialect
	sink    AssemblySink

	useNamedLabels bool
	stack          Stack

	returnLabels   map[CallID]LabelID
	blockLabels    map[*BasicBlock]LabelID
	functionLabels map[*FunctionInfo]LabelID
	generated      map[*BasicBlock]bool
	generatedFuncs map[*FunctionInfo]bool

	stagedBlocks    []*BasicBlock
	stagedFunctions []*FunctionInfo

	currentFunction *FunctionInfo
	err             error
}

func (g *codeGenerator) functionLabel(fi *FunctionInfo) LabelID {
	if id, ok := g.functionLabels[fi]; ok {
		return id
	}
	var id LabelID
	if g.useNamedLabels {
		id = g.sink.NamedLabel(fi.Name, len(fi.Parameters), len(fi.ReturnVariables))
	} else {
		id = g.sink.NewLabel()
	}
	g.functionLabels[fi] = id
	g.stagedFunctions = append(g.stagedFunctions, fi)
	return id
}

// generateFunction emits a function's prologue (the calling convention's
// fixed [FunctionReturnLabel, paramN..param1] shape, reshuffled down to
// whatever layout the body actually needs) and then its body.
func (g *codeGenerator) generateFunction(fi *FunctionInfo) {
	mustHold(g.currentFunction == nil, "nested function generation")
	g.currentFunction = fi

	g.stack = Stack{FunctionReturnLabelSlot()}
	for i := len(fi.Parameters) - 1; i >= 0; i-- {
		g.stack = append(g.stack, VariableSlot(fi.Parameters[i]))
	}
	g.sink.SetStackHeight(len(g.stack))

	label, ok := g.functionLabels[fi]
	mustHold(ok, "function label requested before any call site referenced it")
	g.sink.AppendLabel(label)

	g.createStackLayout(g.layout.Block[fi.Entry].Entry)
	g.generateBlock(fi.Entry)

	g.currentFunction = nil
}

// generateBlock emits one block's operations and its exit. Blocks reachable
// only via a staged label (a successor generated out of line, not inline)
// are skipped here and picked up later by generateStaged.
func (g *codeGenerator) generateBlock(block *BasicBlock) {
	if g.generated[block] || g.err != nil {
		return
	}
	g.generated[block] = true

	blockLayout := g.layout.Block[block]

	if label, ok := g.blockLabels[block]; ok {
		g.sink.AppendLabel(label)
	}

	mustHold(g.stack.CompatibleWith(blockLayout.Entry), "block entry layout mismatch")
	g.stack = blockLayout.Entry.Clone()

	for _, op := range block.Operations {
		g.createStackLayout(g.layout.Operation[op])
		if g.err != nil {
			return
		}
		g.generateOperation(op)
	}
	g.createStackLayout(blockLayout.Exit)
	if g.err != nil {
		return
	}

	switch block.Exit.Kind {
	case ExitMain:
		g.sink.AppendInstruction(OpStop)

	case ExitTerminated:
		// No-op: the block's last operation (revert/return/stop/...) already
		// terminated control flow; there is nothing left to emit.

	case ExitJump:
		target := block.Exit.Target
		targetEntry := g.layout.Block[target].Entry
		g.createStackLayout(targetEntry)
		if g.err != nil {
			return
		}

		if _, labeled := g.blockLabels[target]; !labeled && len(target.Entries) == 1 {
			g.generateBlock(target)
			return
		}
		label, ok := g.blockLabels[target]
		if !ok {
			label = g.sink.NewLabel()
			g.blockLabels[target] = label
		}
		mustHold(g.stack.Equal(targetEntry), "jump target entry layout mismatch")
		g.sink.AppendJumpTo(label, 0, JumpOrdinary)
		if !g.generated[target] {
			g.stagedBlocks = append(g.stagedBlocks, target)
		}

	case ExitConditionalJump:
		nonZero, zero := block.Exit.NonZero, block.Exit.Zero
		if _, ok := g.blockLabels[nonZero]; !ok {
			g.blockLabels[nonZero] = g.sink.NewLabel()
		}
		g.sink.AppendJumpToIf(g.blockLabels[nonZero])
		g.stack = g.stack[:len(g.stack)-1]

		mustHold(g.stack.CompatibleWith(g.layout.Block[nonZero].Entry), "conditional jump nonzero-target layout mismatch")
		mustHold(g.stack.CompatibleWith(g.layout.Block[zero].Entry), "conditional jump zero-target layout mismatch")

		if !g.generated[nonZero] {
			g.stagedBlocks = append(g.stagedBlocks, nonZero)
		}

		if _, ok := g.blockLabels[zero]; !ok {
			g.blockLabels[zero] = g.sink.NewLabel()
		}
		if g.generated[zero] {
			g.sink.AppendJumpTo(g.blockLabels[zero], 0, JumpOrdinary)
		} else {
			g.generateBlock(zero)
		}

	case ExitFunctionReturn:
		fi := block.Exit.Function
		mustHold(g.currentFunction == fi, "function-return exit outside its own function")
		exitStack := make(Stack, 0, len(fi.ReturnVariables)+1)
		for _, v := range fi.ReturnVariables {
			exitStack = append(exitStack, VariableSlot(v))
		}
		exitStack = append(exitStack, FunctionReturnLabelSlot())

		g.createStackLayout(exitStack)
		g.sink.AppendJump(0, JumpOutOfFunction)
		g.sink.SetStackHeight(0)
		g.stack = nil
	}
}

func (g *codeGenerator) generateOperation(op *Operation) {
	switch op.Kind {
	case OpFunctionCall:
		g.generateFunctionCall(op)
	case OpBuiltinCall:
		g.generateBuiltinCall(op)
	case OpAssignment:
		g.generateAssignment(op)
	default:
		mustHold(false, "unknown operation kind %d", op.Kind)
	}
}

func (g *codeGenerator) generateFunctionCall(op *Operation) {
	fi := g.dfg.Functions[op.Function]
	returnLabel, ok := g.returnLabels[op.Call]
	mustHold(ok, "call site return label was never staged by createStackLayout")

	stackDelta := len(fi.ReturnVariables) - len(fi.Parameters) - 1
	g.sink.AppendJumpTo(g.functionLabel(fi), stackDelta, JumpIntoFunction)
	g.sink.AppendLabel(returnLabel)

	g.stack = g.stack[:len(g.stack)-len(op.Input)]
	g.stack = append(g.stack, op.Output...)
}

func (g *codeGenerator) generateBuiltinCall(op *Operation) {
	info, ok := g.dialect.Builtin(op.BuiltinName)
	mustHold(ok, "builtin %q vanished between build and codegen", op.BuiltinName)
	info.Emit(g.sink, op.Call, len(op.Input), op.Literals)

	g.stack = g.stack[:len(g.stack)-len(op.Input)]
	g.stack = append(g.stack, op.Output...)
}

// generateAssignment emits nothing: naming an already-computed value is
// free. It only updates the symbolic stack bookkeeping.
func (g *codeGenerator) generateAssignment(op *Operation) {
	for i := range g.stack {
		if g.stack[i].Kind != SlotVariable {
			continue
		}
		for _, v := range op.Variables {
			if g.stack[i].Variable == v {
				g.stack[i] = JunkSlot()
				break
			}
		}
	}
	base := len(g.stack) - len(op.Variables)
	for i, v := range op.Variables {
		g.stack[base+i] = VariableSlot(v)
	}
}

// createStackLayout reshuffles g.stack to target, keeping any shared prefix
// untouched, regenerating slots the plain shuffler cannot reach by hoisting
// a dup earlier in program order when a needed slot still exists somewhere
// below, and falling back to the dialect/sink for anything genuinely
// regenerable (literals, junk, labels).
func (g *codeGenerator) createStackLayout(target Stack) {
	if g.err != nil {
		return
	}
	prefixLen := commonPrefixLen(g.stack, target)
	temp := g.stack[prefixLen:].Clone()
	rest := target[prefixLen:]

	if !g.canReach(temp, rest) {
		g.hoistMissing(prefixLen, rest)
		temp = g.stack[prefixLen:].Clone()
	}

	if unreachable := tryCreateStackLayout(g.stack, rest); len(unreachable) > 0 {
		g.err = ErrUnreachableSlot
		return
	}

	// height is the current length of the shuffled suffix, so that a
	// non-regenerable slot held only in the kept prefix is copied up with a
	// DUP at the right depth instead of being regenerated.
	height := len(temp)
	cb := ShuffleCallbacks{
		Swap: func(d int) { shuffleOpsCounter.Inc(1); g.sink.AppendInstruction(SwapOpcode(d)) },
		Dup:  func(d int) { shuffleOpsCounter.Inc(1); height++; g.sink.AppendInstruction(DupOpcode(d)) },
		Push: func(slot StackSlot) {
			shuffleOpsCounter.Inc(1)
			if i, ok := FindOffset(reverse(g.stack[:prefixLen]), slot); ok && !slot.Regenerable() {
				g.sink.AppendInstruction(DupOpcode(height + i + 1))
			} else {
				g.emitRegenerate(slot)
			}
			height++
		},
		Pop: func() { shuffleOpsCounter.Inc(1); height--; g.sink.AppendInstruction(OpPop) },
	}
	result := createStackLayout(temp, rest, cb)

	g.stack = append(g.stack[:prefixLen:prefixLen], result...)
}

// canReach reports whether shuffling temp into target needs no swap or dup
// deeper than 16, the VM's swap/dup depth limit. It does not check that the
// non-regenerable slots of target are present; createStackLayout checks that
// separately.
func (g *codeGenerator) canReach(temp, target Stack) bool {
	good := true
	cb := ShuffleCallbacks{
		Swap: func(d int) {
			if d > maxStackReach {
				good = false
			}
		},
		Dup: func(d int) {
			if d > maxStackReach {
				good = false
			}
		},
		Push: func(StackSlot) {},
		Pop:  func() {},
	}
	createStackLayout(temp.Clone(), target, cb)
	return good
}

// hoistMissing dups up to the top each slot of rest that is present in the
// kept prefix of the stack but absent from the suffix after prefixLen; a
// slot already in that suffix is left to the plain shuffler, however deep it
// sits. This mirrors createStackLayout's own ad hoc repair (dup first,
// shuffle after) rather than inventing an unreachable value.
func (g *codeGenerator) hoistMissing(prefixLen int, rest Stack) {
	type depthSlot struct {
		depth int
		slot  StackSlot
	}
	var ordered []depthSlot
	for _, slot := range rest {
		if depth, ok := FindOffset(reverse(g.stack), slot); ok {
			ordered = append(ordered, depthSlot{depth, slot})
		}
	}
	// Deepest first: hoisting a deep slot first keeps shallower ones' depth
	// stable for the next hoist.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1].depth < ordered[j].depth; j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	temp := g.stack[prefixLen:]
	for _, ds := range ordered {
		if _, ok := FindOffset(temp, ds.slot); ok {
			continue
		}
		depth, ok := FindOffset(reverse(g.stack), ds.slot)
		if !ok {
			continue
		}
		g.sink.AppendInstruction(DupOpcode(depth + 1))
		g.stack = append(g.stack, ds.slot)
		temp = g.stack[prefixLen:]
	}
}

func reverse(s Stack) Stack {
	out := make(Stack, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// emitRegenerate appends whatever is needed to materialise slot fresh on
// top of the stack, for slots the shuffler decided to Push rather than find
// already present.
func (g *codeGenerator) emitRegenerate(slot StackSlot) {
	switch slot.Kind {
	case SlotLiteral:
		g.sink.AppendConstant(slot.Value)
	case SlotCallReturnLabel:
		label, ok := g.returnLabels[slot.Call]
		if !ok {
			label = g.sink.NewLabel()
			g.returnLabels[slot.Call] = label
		}
		g.sink.AppendLabelReference(label)
	case SlotJunk:
		// Always popped before it matters; PC is a deterministic, cheap,
		// distinctive placeholder.
		g.sink.AppendInstruction(OpPc)
	case SlotVariable:
		mustHold(g.currentFunction != nil, "cannot regenerate a bare variable outside a function")
		mustHold(containsVariable(g.currentFunction.ReturnVariables, slot.Variable), "cannot regenerate a variable that was never assigned")
		g.sink.AppendConstant(zeroLiteral())
	default:
		mustHold(false, "cannot regenerate slot kind %v", slot.Kind)
	}
}

func containsVariable(vars []VariableID, v VariableID) bool {
	for _, x := range vars {
		if x == v {
			return true
		}
	}
	return false
}

// generateStaged drains blocks and functions queued by generateBlock and
// generateFunction's call sites, in the order they were first referenced:
// all blocks staged so far, then each staged function (which may itself
// stage further blocks), until both queues are empty.
func (g *codeGenerator) generateStaged() {
	for len(g.stagedBlocks) > 0 && g.err == nil {
		block := g.stagedBlocks[0]
		g.stagedBlocks = g.stagedBlocks[1:]
		g.stack = g.layout.Block[block].Entry.Clone()
		g.sink.SetStackHeight(len(g.stack))
		g.generateBlock(block)
	}
	for len(g.stagedFunctions) > 0 && g.err == nil {
		fi := g.stagedFunctions[0]
		g.stagedFunctions = g.stagedFunctions[1:]
		if !g.generatedFuncs[fi] {
			g.generatedFuncs[fi] = true
			g.generateFunction(fi)
		}
		for len(g.stagedBlocks) > 0 && g.err == nil {
			block := g.stagedBlocks[0]
			g.stagedBlocks = g.stagedBlocks[1:]
			g.stack = g.layout.Block[block].Entry.Clone()
			g.sink.SetStackHeight(len(g.stack))
			g.currentFunction = fi
			g.generateBlock(block)
			g.currentFunction = nil
		}
	}
}
