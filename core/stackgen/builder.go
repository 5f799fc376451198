package stackgen

import "github.com/holiman/uint256"

// Build lowers a resolved AST into a DFG, ready for stack layout generation.
// program is the outermost block; its Scope resolves top-level variables and
// functions. Build assumes a conforming front end: malformed input (an
// unresolved identifier, an arity mismatch between a declaration and its
// value) is a programmer-invariant violation and panics rather than
// returning an error, matching this package's error-handling split between
// "can't happen given a conforming front end" and "can happen even for valid
// input" (stack-too-deep, unreachable slots), which surface from the layout
// and code-transform stages instead.
func Build(dialect Dialect, program Block) *DFG {
	g := newDFG()
	b := &builder{graph: g, dialect: dialect, nextGhostVar: -1}
	g.Entry = g.newBlock()
	b.current = g.Entry
	b.visitBlock(program)
	if b.current.Exit.Kind == ExitUnset {
		b.current.Exit = Exit{Kind: ExitMain}
	}
	pruneUnreachable(g)
	return g
}

type loopContext struct {
	post  *BasicBlock
	after *BasicBlock
}

type builder struct {
	graph    *DFG
	dialect  Dialect
	current  *BasicBlock
	scope    Resolver
	function *FunctionInfo
	funcExit *BasicBlock
	loops    []loopContext

	nextGhostVar VariableID
}

func (b *builder) newGhostVariable() VariableID {
	id := b.nextGhostVar
	b.nextGhostVar--
	return id
}

// jumpTo closes the current block with an unconditional jump to target,
// unless the current block was already closed by a nested break, continue,
// leave, or terminating call (in which case the fallthrough edge this call
// represents was never actually reachable, and is silently dropped).
func (b *builder) jumpTo(target *BasicBlock, backwards bool) {
	if b.current.Exit.Kind != ExitUnset {
		return
	}
	b.current.Exit = Exit{Kind: ExitJump, Target: target, Backwards: backwards}
	target.Entries = append(target.Entries, b.current)
}

func (b *builder) visitBlock(blk Block) {
	savedScope := b.scope
	b.scope = blk.Scope
	for _, stmt := range blk.Statements {
		if b.current.Exit.Kind != ExitUnset {
			break
		}
		b.visitStatement(stmt)
	}
	b.scope = savedScope
}

func (b *builder) visitStatement(stmt Statement) {
	switch s := stmt.(type) {
	case VariableDeclaration:
		b.visitVariableDeclaration(s)
	case AssignmentStmt:
		b.visitAssignment(s)
	case ExpressionStatement:
		b.visitCall(s.Call)
	case Block:
		b.visitBlock(s)
	case IfStatement:
		b.visitIf(s)
	case SwitchStatement:
		b.visitSwitch(s)
	case ForLoop:
		b.visitForLoop(s)
	case BreakStatement:
		b.visitBreak()
	case ContinueStatement:
		b.visitContinue()
	case LeaveStatement:
		b.visitLeave()
	case FunctionDefinition:
		b.visitFunctionDefinition(s)
	default:
		mustHold(false, "unknown statement type %T", stmt)
	}
}

func (b *builder) visitVariableDeclaration(s VariableDeclaration) {
	var rhs Stack
	if s.Value != nil {
		rhs = b.visitExpression(s.Value)
	} else {
		for range s.Names {
			rhs = append(rhs, LiteralSlot(uint256.NewInt(0)))
		}
	}
	mustHold(len(rhs) == len(s.Names), "variable declaration arity mismatch: %d names, %d values", len(s.Names), len(rhs))
	b.emitAssignment(s.Names, rhs, s.Loc)
}

func (b *builder) visitAssignment(s AssignmentStmt) {
	rhs := b.visitExpression(s.Value)
	mustHold(len(rhs) == len(s.Names), "assignment arity mismatch: %d names, %d values", len(s.Names), len(rhs))
	b.emitAssignment(s.Names, rhs, s.Loc)
}

// emitAssignment records a purely symbolic renaming: the code transform
// emits no instructions for it, since naming an already-computed value is
// free and only numeric reshuffling between layouts costs bytecode.
func (b *builder) emitAssignment(names []string, rhs Stack, loc SourceLocation) {
	vars := make([]VariableID, len(names))
	for i, n := range names {
		id, ok := b.scope.LookupVariable(n)
		mustHold(ok, "unresolved variable %q", n)
		vars[i] = id
	}
	output := make(Stack, len(vars))
	for i, v := range vars {
		output[i] = VariableSlot(v)
	}
	b.current.Operations = append(b.current.Operations, &Operation{
		Kind:      OpAssignment,
		Input:     rhs,
		Output:    output,
		Variables: vars,
		Loc:       loc,
	})
}

func (b *builder) visitExpression(expr Expression) Stack {
	switch e := expr.(type) {
	case Literal:
		return Stack{LiteralSlot(e.Value)}
	case Identifier:
		id, ok := b.scope.LookupVariable(e.Name)
		mustHold(ok, "unresolved identifier %q", e.Name)
		return Stack{VariableSlot(id)}
	case FunctionCallExpr:
		return b.visitCall(e)
	default:
		mustHold(false, "unknown expression type %T", expr)
		return nil
	}
}

func (b *builder) visitCall(call FunctionCallExpr) Stack {
	if info, ok := b.dialect.Builtin(call.Name); ok {
		return b.emitBuiltinCall(call, info)
	}
	sig, ok := b.scope.LookupFunction(call.Name)
	mustHold(ok, "unresolved function %q", call.Name)
	return b.emitFunctionCall(call, sig)
}

// emitBuiltinCall and emitFunctionCall both evaluate stack-passed arguments
// from last to first: the calling convention puts the first argument
// nearest the top, so evaluating in reverse and appending as we go
// naturally lays down the deepest argument first. A user function call
// additionally sits its CallReturnLabel beneath every argument, since the
// callee only retrieves it after consuming all of them.
func (b *builder) emitBuiltinCall(call FunctionCallExpr, info BuiltinInfo) Stack {
	callID := b.graph.newCallID()
	var input Stack
	var literals map[int]*uint256.Int
	for i := info.Arity - 1; i >= 0; i-- {
		if info.LiteralArgument != nil && info.LiteralArgument(i) {
			lit, ok := call.Arguments[i].(Literal)
			mustHold(ok, "builtin %q requires a literal argument at position %d", call.Name, i)
			if literals == nil {
				literals = make(map[int]*uint256.Int)
			}
			literals[i] = lit.Value
			continue
		}
		input = append(input, b.visitExpression(call.Arguments[i])...)
	}

	output := make(Stack, info.Returns)
	for idx := info.Returns - 1; idx >= 0; idx-- {
		output[idx] = TemporarySlot(callID, idx)
	}

	b.current.Operations = append(b.current.Operations, &Operation{
		Kind:        OpBuiltinCall,
		Input:       input,
		Output:      output,
		BuiltinName: call.Name,
		Call:        callID,
		Literals:    literals,
		Loc:         call.Loc,
	})

	if info.Terminates {
		b.current.Exit = Exit{Kind: ExitTerminated}
		b.current = b.graph.newBlock()
	}
	return output
}

func (b *builder) emitFunctionCall(call FunctionCallExpr, sig FunctionSignature) Stack {
	callID := b.graph.newCallID()
	// The return label sits deepest, beneath every argument: the callee
	// retrieves it (generically, as its own FunctionReturnLabelSlot) only
	// after all arguments have been consumed.
	input := Stack{CallReturnLabelSlot(callID)}
	for i := sig.Arity - 1; i >= 0; i-- {
		input = append(input, b.visitExpression(call.Arguments[i])...)
	}

	output := make(Stack, sig.Returns)
	for idx := sig.Returns - 1; idx >= 0; idx-- {
		output[idx] = TemporarySlot(callID, idx)
	}

	b.current.Operations = append(b.current.Operations, &Operation{
		Kind:     OpFunctionCall,
		Input:    input,
		Output:   output,
		Function: sig.ID,
		Call:     callID,
		Loc:      call.Loc,
	})
	return output
}

func (b *builder) visitIf(s IfStatement) {
	cond := b.visitExpression(s.Condition)
	mustHold(len(cond) == 1, "if condition must produce exactly one value")

	thenBlock := b.graph.newBlock()
	afterBlock := b.graph.newBlock()
	b.current.Exit = Exit{Kind: ExitConditionalJump, Condition: cond[0], NonZero: thenBlock, Zero: afterBlock}
	thenBlock.Entries = append(thenBlock.Entries, b.current)
	afterBlock.Entries = append(afterBlock.Entries, b.current)

	b.current = thenBlock
	b.visitBlock(s.Body)
	b.jumpTo(afterBlock, false)

	b.current = afterBlock
}

// visitSwitch desugars to a ghost-variable assignment (the switch expression
// evaluated once) followed by a chain of equality comparisons, one per case,
// each a conditional jump to that case's body or on to the next comparison;
// the default body (if any) sits at the end of the chain.
func (b *builder) visitSwitch(s SwitchStatement) {
	exprResult := b.visitExpression(s.Expression)
	mustHold(len(exprResult) == 1, "switch expression must produce exactly one value")

	ghost := b.newGhostVariable()
	b.current.Operations = append(b.current.Operations, &Operation{
		Kind:      OpAssignment,
		Input:     exprResult,
		Output:    Stack{VariableSlot(ghost)},
		Variables: []VariableID{ghost},
		Loc:       s.Loc,
	})

	afterBlock := b.graph.newBlock()
	eq := b.dialect.Equality()

	for _, c := range s.Cases {
		callID := b.graph.newCallID()
		input := Stack{VariableSlot(ghost), LiteralSlot(c.Value)}
		condSlot := TemporarySlot(callID, 0)
		b.current.Operations = append(b.current.Operations, &Operation{
			Kind:        OpBuiltinCall,
			Input:       input,
			Output:      Stack{condSlot},
			BuiltinName: eq.Name,
			Call:        callID,
			Loc:         s.Loc,
		})

		caseBlock := b.graph.newBlock()
		nextBlock := b.graph.newBlock()
		b.current.Exit = Exit{Kind: ExitConditionalJump, Condition: condSlot, NonZero: caseBlock, Zero: nextBlock}
		caseBlock.Entries = append(caseBlock.Entries, b.current)
		nextBlock.Entries = append(nextBlock.Entries, b.current)

		b.current = caseBlock
		b.visitBlock(c.Body)
		b.jumpTo(afterBlock, false)

		b.current = nextBlock
	}

	if s.Default != nil {
		b.visitBlock(*s.Default)
	}
	b.jumpTo(afterBlock, false)
	b.current = afterBlock
}

// visitForLoop lowers pre; for !cond break; body; post; repeat. A
// compile-time-constant condition is special-cased: a literal zero means the
// loop body is unreachable and is skipped entirely; a nonzero literal means
// the loop can only be left via break, so no zero-edge to afterBlock is
// created at all (it remains reachable only if some break targets it).
func (b *builder) visitForLoop(s ForLoop) {
	preBlock := b.graph.newBlock()
	b.jumpTo(preBlock, false)
	b.current = preBlock
	b.visitBlock(s.Pre)

	condBlock := b.graph.newBlock()
	b.jumpTo(condBlock, false)
	b.current = condBlock

	bodyBlock := b.graph.newBlock()
	postBlock := b.graph.newBlock()
	afterBlock := b.graph.newBlock()

	if lit, ok := s.Condition.(Literal); ok && lit.Value.IsZero() {
		b.jumpTo(afterBlock, false)
		b.current = afterBlock
		return
	}
	if lit, ok := s.Condition.(Literal); ok && !lit.Value.IsZero() {
		b.current.Exit = Exit{Kind: ExitJump, Target: bodyBlock}
		bodyBlock.Entries = append(bodyBlock.Entries, b.current)
	} else {
		cond := b.visitExpression(s.Condition)
		mustHold(len(cond) == 1, "for-loop condition must produce exactly one value")
		b.current.Exit = Exit{Kind: ExitConditionalJump, Condition: cond[0], NonZero: bodyBlock, Zero: afterBlock}
		bodyBlock.Entries = append(bodyBlock.Entries, b.current)
		afterBlock.Entries = append(afterBlock.Entries, b.current)
	}

	b.loops = append(b.loops, loopContext{post: postBlock, after: afterBlock})
	b.current = bodyBlock
	b.visitBlock(s.Body)
	b.jumpTo(postBlock, false)

	b.current = postBlock
	b.visitBlock(s.Post)
	b.jumpTo(condBlock, true)

	b.loops = b.loops[:len(b.loops)-1]
	b.current = afterBlock
}

func (b *builder) visitBreak() {
	mustHold(len(b.loops) > 0, "break outside a loop")
	b.jumpTo(b.loops[len(b.loops)-1].after, false)
}

func (b *builder) visitContinue() {
	mustHold(len(b.loops) > 0, "continue outside a loop")
	b.jumpTo(b.loops[len(b.loops)-1].post, false)
}

func (b *builder) visitLeave() {
	mustHold(b.function != nil, "leave outside a function")
	b.jumpTo(b.funcExit, false)
}

// visitFunctionDefinition builds the function's own subgraph in isolation:
// a function definition is a declaration, not control flow, so it leaves
// the enclosing block's current position untouched.
func (b *builder) visitFunctionDefinition(fd FunctionDefinition) {
	entry := b.graph.newBlock()
	exit := b.graph.newBlock()
	fi := &FunctionInfo{ID: fd.ID, Name: fd.Name, Entry: entry, Parameters: fd.Parameters, ReturnVariables: fd.Returns}
	b.graph.Functions[fd.ID] = fi

	savedCurrent, savedFunction, savedExit, savedLoops, savedScope := b.current, b.function, b.funcExit, b.loops, b.scope

	b.current = entry
	b.function = fi
	b.funcExit = exit
	b.loops = nil

	b.visitBlock(fd.Body)
	b.jumpTo(exit, false)
	exit.Exit = Exit{Kind: ExitFunctionReturn, Function: fi}

	b.current, b.function, b.funcExit, b.loops, b.scope = savedCurrent, savedFunction, savedExit, savedLoops, savedScope
}

// pruneUnreachable discards every block not reachable by control flow from
// the main entry or from any function's entry, and trims each surviving
// block's Entries to only the predecessors that are themselves reachable.
func pruneUnreachable(g *DFG) {
	visited := make(map[*BasicBlock]bool)
	var order []*BasicBlock
	var visit func(*BasicBlock)
	visit = func(blk *BasicBlock) {
		if blk == nil || visited[blk] {
			return
		}
		visited[blk] = true
		order = append(order, blk)
		switch blk.Exit.Kind {
		case ExitJump:
			visit(blk.Exit.Target)
		case ExitConditionalJump:
			visit(blk.Exit.NonZero)
			visit(blk.Exit.Zero)
		}
	}
	visit(g.Entry)
	for _, fi := range orderedFunctions(g) {
		visit(fi.Entry)
	}
	for _, blk := range order {
		var kept []*BasicBlock
		for _, e := range blk.Entries {
			if visited[e] {
				kept = append(kept, e)
			}
		}
		blk.Entries = kept
	}
	g.blocks = order
}

func orderedFunctions(g *DFG) []*FunctionInfo {
	ids := make([]FunctionID, 0, len(g.Functions))
	for id := range g.Functions {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	out := make([]*FunctionInfo, len(ids))
	for i, id := range ids {
		out[i] = g.Functions[id]
	}
	return out
}
