package stackgen

import "github.com/holiman/uint256"

// BuiltinInfo describes one builtin function as the dialect sees it: its
// arity and return count, which argument positions (if any) are literal
// arguments passed as immediates rather than via the stack, whether it
// terminates control flow, and how to emit its native instructions.
type BuiltinInfo struct {
	Name    string
	Arity   int
	Returns int

	// Terminates is true for builtins such as stop/revert/return whose
	// control-flow side effect means there is no fallthrough after the call.
	Terminates bool

	// LiteralArgument reports whether the zero-based argument position pos
	// must be a literal AST node: the builder takes its value directly from
	// the call site's argument expression and passes it as an immediate
	// rather than evaluating it onto the stack. nil means no position is
	// literal.
	LiteralArgument func(pos int) bool

	// Emit appends the builtin's native instructions to sink, assuming its
	// stack-passed arguments already sit on top in reverse call order (the
	// first stack argument nearest the top). argc is the number of stack
	// arguments (i.e. Arity minus however many positions are literal).
	// literals holds the values of any positions LiteralArgument marked,
	// keyed by position.
	Emit func(sink AssemblySink, call CallID, argc int, literals map[int]*uint256.Int)
}

// Dialect is the collaborator that supplies builtin semantics; the DFG
// builder, layout generator, and code transform never hard-code opcode
// behaviour themselves.
type Dialect interface {
	// Builtin looks up a builtin by name.
	Builtin(name string) (BuiltinInfo, bool)
	// Equality returns the builtin used to desugar switch-case comparisons.
	Equality() BuiltinInfo
}
