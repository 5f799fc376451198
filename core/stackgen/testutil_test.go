package stackgen

import "github.com/holiman/uint256"

// mapResolver is a flat, non-nested Resolver backed by plain maps: enough to
// drive the builder in tests without reimplementing real Yul scope
// resolution.
type mapResolver struct {
	vars  map[string]VariableID
	funcs map[string]FunctionSignature
}

func newMapResolver() *mapResolver {
	return &mapResolver{vars: make(map[string]VariableID), funcs: make(map[string]FunctionSignature)}
}

func (r *mapResolver) declare(name string, id VariableID) *mapResolver {
	r.vars[name] = id
	return r
}

func (r *mapResolver) declareFunc(name string, sig FunctionSignature) *mapResolver {
	r.funcs[name] = sig
	return r
}

func (r *mapResolver) LookupVariable(name string) (VariableID, bool) {
	id, ok := r.vars[name]
	return id, ok
}

func (r *mapResolver) LookupFunction(name string) (FunctionSignature, bool) {
	sig, ok := r.funcs[name]
	return sig, ok
}

// fakeDialect is a minimal Dialect for builder-level tests that need a
// builtin with an arity/return shape real EVM opcodes don't have (e.g. two
// return values), without pulling in EVMDialect's full opcode semantics.
type fakeDialect struct {
	builtins map[string]BuiltinInfo
}

func newFakeDialect() *fakeDialect { return &fakeDialect{builtins: make(map[string]BuiltinInfo)} }

func (d *fakeDialect) add(name string, arity, returns int) *fakeDialect {
	d.builtins[name] = BuiltinInfo{
		Name: name, Arity: arity, Returns: returns,
		Emit: func(sink AssemblySink, call CallID, argc int, literals map[int]*uint256.Int) {
			for i := 0; i < argc; i++ {
				sink.AppendInstruction(OpPop)
			}
			for i := 0; i < returns; i++ {
				sink.AppendConstant(uint256.NewInt(0))
			}
		},
	}
	return d
}

func (d *fakeDialect) Builtin(name string) (BuiltinInfo, bool) {
	info, ok := d.builtins[name]
	return info, ok
}

func (d *fakeDialect) Equality() BuiltinInfo {
	info, _ := d.Builtin("eq")
	return info
}

func litExpr(v uint64) Literal { return Literal{Value: uint256.NewInt(v)} }

func ident(name string) Identifier { return Identifier{Name: name} }

func call(name string, args ...Expression) FunctionCallExpr {
	return FunctionCallExpr{Name: name, Arguments: args}
}

// compile runs the full pipeline — Build, GenerateLayout, Generate, Assemble
// — and fails the test on any error, returning the assembled result for
// inspection.
func compile(t interface{ Fatalf(string, ...interface{}) }, program Block) Assembled {
	dfg := Build(EVMDialect, program)
	layout, err := GenerateLayout(dfg, DefaultCompileOptions())
	if err != nil {
		t.Fatalf("GenerateLayout: %v", err)
	}
	sink := NewInMemorySink()
	if err := Generate(dfg, layout, EVMDialect, sink, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	asm, err := sink.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return asm
}
