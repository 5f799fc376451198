package stackgen

import "testing"

func TestCombineStackCommonPrefixKept(t *testing.T) {
	a := Stack{VariableSlot(0), VariableSlot(1)}
	b := Stack{VariableSlot(0), VariableSlot(2)}
	combined := combineStack(a, b)
	if len(combined) == 0 || !combined[0].Equal(VariableSlot(0)) {
		t.Fatalf("expected shared prefix to survive combineStack, got %v", combined)
	}
}

func TestCombineStackEmptySides(t *testing.T) {
	a := Stack{VariableSlot(0)}
	if got := combineStack(nil, a); !got.Equal(a) {
		t.Fatalf("combining with an empty stack should return the other side, got %v", got)
	}
	if got := combineStack(a, nil); !got.Equal(a) {
		t.Fatalf("combining with an empty stack should return the other side, got %v", got)
	}
}

func TestTryCreateStackLayoutFindsUnreachable(t *testing.T) {
	current := Stack{VariableSlot(0)}
	target := Stack{VariableSlot(1)}
	unreachable := tryCreateStackLayout(current, target)
	if len(unreachable) != 1 || !unreachable[0].Equal(VariableSlot(1)) {
		t.Fatalf("expected VariableSlot(1) to be flagged unreachable, got %v", unreachable)
	}
}

func TestTryCreateStackLayoutIgnoresRegenerable(t *testing.T) {
	current := Stack{}
	target := Stack{JunkSlot(), LiteralSlot(nil)}
	if unreachable := tryCreateStackLayout(current, target); len(unreachable) != 0 {
		t.Fatalf("regenerable slots should never be flagged unreachable, got %v", unreachable)
	}
}

// TestGenerateLayoutBlockEntryExitRoundTrip exercises the property that
// every block's recorded entry layout, propagated forward through its own
// operations, reproduces its recorded exit layout. The carried stack is
// shuffled to each operation's entry layout, so it must already hold every
// non-regenerable slot that layout needs.
func TestGenerateLayoutBlockEntryExitRoundTrip(t *testing.T) {
	scope := newMapResolver().declare("a", 0).declare("b", 1)
	program := Block{Scope: scope, Statements: []Statement{
		VariableDeclaration{Names: []string{"a"}, Value: litExpr(1)},
		VariableDeclaration{Names: []string{"b"}, Value: call("add", ident("a"), litExpr(1))},
		ExpressionStatement{Call: call("pop", ident("b"))},
	}}
	dfg := Build(EVMDialect, program)
	layout, err := GenerateLayout(dfg, DefaultCompileOptions())
	if err != nil {
		t.Fatalf("GenerateLayout: %v", err)
	}

	bl, ok := layout.Block[dfg.Entry]
	if !ok {
		t.Fatalf("missing layout for entry block")
	}
	stack := bl.Entry.Clone()
	for _, op := range dfg.Entry.Operations {
		opEntry := layout.Operation[op]
		if missing := tryCreateStackLayout(stack, opEntry); len(missing) > 0 {
			t.Fatalf("operation entry layout %v needs %v, absent from carried stack %v", opEntry, missing, stack)
		}
		stack = opEntry.Clone()
		stack = stack[:len(stack)-len(op.Input)]
		stack = append(stack, op.Output...)
	}
	if !stack.CompatibleWith(bl.Exit) {
		t.Fatalf("propagated exit %v incompatible with recorded exit %v", stack, bl.Exit)
	}
}
