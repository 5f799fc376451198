package stackgen

import (
	"testing"

	"github.com/holiman/uint256"
)

// TestCompileAddWithUnusedResult exercises spec.md's end-to-end scenario
// (2): `let x := add(1, 2)` with x never read again emits
// PUSH 2; PUSH 1; ADD; POP.
func TestCompileAddWithUnusedResult(t *testing.T) {
	scope := newMapResolver().declare("x", 0)
	program := Block{Scope: scope, Statements: []Statement{
		VariableDeclaration{Names: []string{"x"}, Value: call("add", litExpr(1), litExpr(2))},
	}}

	asm := compile(t, program)
	want := []byte{0x60, 2, 0x60, 1, byte(OpAdd), byte(OpPop), byte(OpStop)}
	if len(asm.Code) != len(want) {
		t.Fatalf("got %x want %x", asm.Code, want)
	}
	for i := range want {
		if asm.Code[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x (full: %x)", i, asm.Code[i], want[i], asm.Code)
		}
	}
}

func TestCompileEmptyTrueForLoopWithBreak(t *testing.T) {
	scope := newMapResolver().declare("x", 0)
	program := Block{Scope: scope, Statements: []Statement{
		VariableDeclaration{Names: []string{"x"}, Value: litExpr(0)},
		ForLoop{
			Pre:       Block{Scope: scope},
			Condition: litExpr(1),
			Post:      Block{Scope: scope},
			Body: Block{Scope: scope, Statements: []Statement{
				AssignmentStmt{Names: []string{"x"}, Value: call("add", ident("x"), litExpr(1))},
				IfStatement{
					Condition: call("eq", ident("x"), litExpr(3)),
					Body:      Block{Scope: scope, Statements: []Statement{BreakStatement{}}},
				},
			}},
		},
	}}

	asm := compile(t, program)
	if len(asm.Code) == 0 {
		t.Fatalf("expected non-empty assembled code")
	}
}

// TestCompileTerminatingBuiltinEmitsNoTrailingStop exercises spec.md's
// "Terminated -> no-op" exit rule: a block whose last operation is a
// terminating builtin (here revert) must not get a spurious extra STOP
// appended after it.
func TestCompileTerminatingBuiltinEmitsNoTrailingStop(t *testing.T) {
	scope := newMapResolver()
	program := Block{Scope: scope, Statements: []Statement{
		ExpressionStatement{Call: call("revert", litExpr(0), litExpr(0))},
	}}

	asm := compile(t, program)
	// The second zero argument is a DUP1 of the first, not a second PUSH.
	want := []byte{0x60, 0, byte(DupOpcode(1)), byte(OpRevert)}
	if len(asm.Code) != len(want) {
		t.Fatalf("expected no trailing opcode after revert, got %x want %x", asm.Code, want)
	}
	for i := range want {
		if asm.Code[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x (full: %x)", i, asm.Code[i], want[i], asm.Code)
		}
	}
}

func TestCompileMultiReturnFunctionCall(t *testing.T) {
	outerScope := newMapResolver().declare("q", 0).declare("r", 1).
		declareFunc("divmod", FunctionSignature{ID: 0, Arity: 2, Returns: 2})
	fnScope := newMapResolver().declare("a", 0).declare("b", 1).declare("qq", 10).declare("rr", 11)
	fnDef := FunctionDefinition{
		ID: 0, Name: "divmod",
		Parameters: []VariableID{0, 1},
		Returns:    []VariableID{10, 11},
		Body: Block{Scope: fnScope, Statements: []Statement{
			AssignmentStmt{Names: []string{"qq"}, Value: call("div", ident("a"), ident("b"))},
			AssignmentStmt{Names: []string{"rr"}, Value: call("mod", ident("a"), ident("b"))},
		}},
	}
	program := Block{Scope: outerScope, Statements: []Statement{
		fnDef,
		VariableDeclaration{Names: []string{"q", "r"}, Value: call("divmod", litExpr(7), litExpr(2))},
		ExpressionStatement{Call: call("pop", ident("q"))},
		ExpressionStatement{Call: call("pop", ident("r"))},
	}}

	asm := compile(t, program)
	if len(asm.LabelPC) == 0 {
		t.Fatalf("expected the function call/return labels to resolve")
	}

	// The call site lays down [CallReturnLabel, arg2=2, arg1=7] bottom to
	// top, then jumps into the function: PUSH2 <retLabel>; PUSH1 2;
	// PUSH1 7; PUSH2 <divmod entry>; JUMP; JUMPDEST. Label addresses vary,
	// but the opcode bytes around them do not.
	wantOpcodeAt := map[int]byte{
		0:  0x61, // PUSH2 (return label)
		3:  0x60, // PUSH1
		4:  0x02, // literal 2
		5:  0x60, // PUSH1
		6:  0x07, // literal 7
		7:  0x61, // PUSH2 (function entry)
		10: byte(OpJump),
		11: byte(OpJumpDest),
	}
	for offset, want := range wantOpcodeAt {
		if offset >= len(asm.Code) {
			t.Fatalf("code too short (%d bytes) to check offset %d: %x", len(asm.Code), offset, asm.Code)
		}
		if got := asm.Code[offset]; got != want {
			t.Fatalf("byte %d: got %#x want %#x (full: %x)", offset, got, want, asm.Code)
		}
	}
}

func TestCompileSwitchLowering(t *testing.T) {
	scope := newMapResolver().declare("x", 0).declare("y", 1)
	program := Block{Scope: scope, Statements: []Statement{
		VariableDeclaration{Names: []string{"x"}, Value: litExpr(2)},
		SwitchStatement{
			Expression: ident("x"),
			Cases: []SwitchCase{
				{Value: uint256.NewInt(1), Body: Block{Scope: scope, Statements: []Statement{
					AssignmentStmt{Names: []string{"y"}, Value: litExpr(10)},
				}}},
				{Value: uint256.NewInt(2), Body: Block{Scope: scope, Statements: []Statement{
					AssignmentStmt{Names: []string{"y"}, Value: litExpr(20)},
				}}},
			},
			Default: &Block{Scope: scope, Statements: []Statement{
				AssignmentStmt{Names: []string{"y"}, Value: litExpr(0)},
			}},
		},
		ExpressionStatement{Call: call("pop", ident("y"))},
	}}

	asm := compile(t, program)
	if len(asm.Code) == 0 {
		t.Fatalf("expected non-empty assembled code")
	}
}

func TestCompileLeaveInFunction(t *testing.T) {
	outerScope := newMapResolver().declareFunc("f", FunctionSignature{ID: 0, Arity: 1, Returns: 1})
	fnScope := newMapResolver().declare("a", 0).declare("r", 1)
	fnDef := FunctionDefinition{
		ID: 0, Name: "f",
		Parameters: []VariableID{0},
		Returns:    []VariableID{1},
		Body: Block{Scope: fnScope, Statements: []Statement{
			IfStatement{
				Condition: call("iszero", ident("a")),
				Body: Block{Scope: fnScope, Statements: []Statement{
					AssignmentStmt{Names: []string{"r"}, Value: litExpr(0)},
					LeaveStatement{},
				}},
			},
			AssignmentStmt{Names: []string{"r"}, Value: litExpr(1)},
		}},
	}
	outerScope2 := newMapResolver().declare("out", 2)
	outerScope2.funcs = outerScope.funcs
	program := Block{Scope: outerScope2, Statements: []Statement{
		fnDef,
		VariableDeclaration{Names: []string{"out"}, Value: call("f", litExpr(5))},
		ExpressionStatement{Call: call("pop", ident("out"))},
	}}

	asm := compile(t, program)
	if len(asm.Code) == 0 {
		t.Fatalf("expected non-empty assembled code")
	}
}

// TestCompileStackTooDeepRegression keeps enough simultaneously-live
// variables around that the naive entry layout would push the earliest one
// past swap/dup reach by the time it's finally used; the best-effort repair
// pass (and, if that's disabled, an explicit error) must handle it instead
// of silently emitting a wrong program.
func TestCompileStackTooDeepRegression(t *testing.T) {
	scope := newMapResolver()
	names := make([]string, 20)
	for i := range names {
		names[i] = "v" + itoa(i)
		scope.declare(names[i], VariableID(i))
	}

	var stmts []Statement
	for i, n := range names {
		stmts = append(stmts, VariableDeclaration{Names: []string{n}, Value: litExpr(uint64(i))})
	}
	// Use the very first declared variable only after all the others, so it
	// is buried deep by the time it's read.
	sum := Expression(ident(names[0]))
	for _, n := range names[1:] {
		sum = call("add", sum, ident(n))
	}
	stmts = append(stmts, ExpressionStatement{Call: call("pop", sum)})

	program := Block{Scope: scope, Statements: stmts}

	dfg := Build(EVMDialect, program)
	layout, err := GenerateLayout(dfg, CompileOptions{BestEffort: true, EnableCache: false})
	if err != nil {
		t.Fatalf("GenerateLayout with BestEffort: %v", err)
	}
	sink := NewInMemorySink()
	if err := Generate(dfg, layout, EVMDialect, sink, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := sink.Assemble(); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
}
