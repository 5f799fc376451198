package stackgen

import "github.com/holiman/uint256"

// VariableID identifies a variable. User-declared variables take the
// non-negative IDs the front end's Resolver assigns; the DFG builder mints
// negative IDs for its own ghost variables. IDs are stable for the lifetime
// of a DFG.
type VariableID int

// CallID identifies a single call site (builtin or user-function), used to
// key the Temporary and CallReturnLabel slot variants uniquely per call.
type CallID int

// SlotKind discriminates the StackSlot sum type.
type SlotKind uint8

const (
	// SlotLiteral is a concrete integer constant, emittable via PUSH.
	SlotLiteral SlotKind = iota
	// SlotVariable names a user variable.
	SlotVariable
	// SlotTemporary is the i-th return value of a specific call site.
	SlotTemporary
	// SlotCallReturnLabel is the return address pushed before a user-function call.
	SlotCallReturnLabel
	// SlotFunctionReturnLabel is the sole return-label slot expected at a
	// function's bottom on entry; all instances compare equal.
	SlotFunctionReturnLabel
	// SlotJunk is a placeholder for a slot whose value is never read again.
	SlotJunk
)

func (k SlotKind) String() string {
	switch k {
	case SlotLiteral:
		return "Literal"
	case SlotVariable:
		return "Variable"
	case SlotTemporary:
		return "Temporary"
	case SlotCallReturnLabel:
		return "CallReturnLabel"
	case SlotFunctionReturnLabel:
		return "FunctionReturnLabel"
	case SlotJunk:
		return "Junk"
	default:
		return "Unknown"
	}
}

// StackSlot is a symbolic occupant of one position of the concrete stack.
// It is a tagged union over SlotKind; only the fields relevant to Kind are
// meaningful.
type StackSlot struct {
	Kind     SlotKind
	Value    *uint256.Int // SlotLiteral
	Variable VariableID   // SlotVariable
	Call     CallID       // SlotTemporary, SlotCallReturnLabel
	Index    int          // SlotTemporary
}

// LiteralSlot constructs a Literal slot holding value.
func LiteralSlot(value *uint256.Int) StackSlot {
	return StackSlot{Kind: SlotLiteral, Value: value}
}

// VariableSlot constructs a Variable slot for the given variable id.
func VariableSlot(id VariableID) StackSlot {
	return StackSlot{Kind: SlotVariable, Variable: id}
}

// TemporarySlot constructs the index-th return value slot of call.
func TemporarySlot(call CallID, index int) StackSlot {
	return StackSlot{Kind: SlotTemporary, Call: call, Index: index}
}

// CallReturnLabelSlot constructs the return-label slot pushed before call.
func CallReturnLabelSlot(call CallID) StackSlot {
	return StackSlot{Kind: SlotCallReturnLabel, Call: call}
}

// FunctionReturnLabelSlot constructs the sole per-function return-label slot.
func FunctionReturnLabelSlot() StackSlot {
	return StackSlot{Kind: SlotFunctionReturnLabel}
}

// JunkSlot constructs a dead placeholder slot.
func JunkSlot() StackSlot {
	return StackSlot{Kind: SlotJunk}
}

// Equal reports whether s and other are the same stack slot value.
func (s StackSlot) Equal(other StackSlot) bool {
	if s.Kind != other.Kind {
		return false
	}
	switch s.Kind {
	case SlotLiteral:
		if s.Value == nil || other.Value == nil {
			return s.Value == other.Value
		}
		return s.Value.Eq(other.Value)
	case SlotVariable:
		return s.Variable == other.Variable
	case SlotTemporary:
		return s.Call == other.Call && s.Index == other.Index
	case SlotCallReturnLabel:
		return s.Call == other.Call
	case SlotFunctionReturnLabel:
		return true
	case SlotJunk:
		return true
	default:
		return false
	}
}

// CompatibleWith reports whether s may stand in for other at a block join:
// either they are Equal, or either side is Junk (don't-care).
func (s StackSlot) CompatibleWith(other StackSlot) bool {
	return s.Equal(other) || s.Kind == SlotJunk || other.Kind == SlotJunk
}

// Regenerable reports whether the emitter can recreate this slot from
// scratch without consulting the existing stack.
func (s StackSlot) Regenerable() bool {
	switch s.Kind {
	case SlotLiteral, SlotCallReturnLabel, SlotJunk:
		return true
	default:
		return false
	}
}

func (s StackSlot) String() string {
	switch s.Kind {
	case SlotLiteral:
		if s.Value == nil {
			return "0x0"
		}
		return s.Value.Hex()
	case SlotVariable:
		return "var#" + itoa(int(s.Variable))
	case SlotTemporary:
		return "tmp(" + itoa(int(s.Call)) + "," + itoa(s.Index) + ")"
	case SlotCallReturnLabel:
		return "retlabel(" + itoa(int(s.Call)) + ")"
	case SlotFunctionReturnLabel:
		return "RET"
	case SlotJunk:
		return "JUNK"
	default:
		return "?"
	}
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Stack is an ordered sequence of slots, bottom at index 0, top at the back.
type Stack []StackSlot

// Clone returns an independent copy of s.
func (s Stack) Clone() Stack {
	if s == nil {
		return nil
	}
	out := make(Stack, len(s))
	copy(out, s)
	return out
}

// Top returns the top slot, i.e. the last element, if any.
func (s Stack) Top() (StackSlot, bool) {
	if len(s) == 0 {
		return StackSlot{}, false
	}
	return s[len(s)-1], true
}

// AtDepth returns the slot at 1-based depth d counted from the top (d=1 is
// the top element).
func (s Stack) AtDepth(d int) (StackSlot, bool) {
	if d < 1 || d > len(s) {
		return StackSlot{}, false
	}
	return s[len(s)-d], true
}

// Equal reports whether s and other hold the same slots in the same order.
func (s Stack) Equal(other Stack) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !s[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// CompatibleWith reports whether every slot of s stands in for the
// corresponding slot of other (equal, or either side Junk); both stacks must
// be the same length.
func (s Stack) CompatibleWith(other Stack) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !s[i].CompatibleWith(other[i]) {
			return false
		}
	}
	return true
}

// Offsets returns, in ascending index order, every position in s holding a
// slot Equal to slot.
func Offsets(slot StackSlot, s Stack) []int {
	var out []int
	for i, v := range s {
		if v.Equal(slot) {
			out = append(out, i)
		}
	}
	return out
}

// FindOffset returns the index of the first (bottom-most) slot in s Equal to
// slot, if any.
func FindOffset(s Stack, slot StackSlot) (int, bool) {
	for i, v := range s {
		if v.Equal(slot) {
			return i, true
		}
	}
	return 0, false
}

// commonPrefixLen returns the length of the longest slot-wise-equal prefix
// shared by a and b.
func commonPrefixLen(a, b Stack) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i].Equal(b[i]) {
		i++
	}
	return i
}
