package stackgen

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestInMemorySinkAssembleLinearCode(t *testing.T) {
	s := NewInMemorySink()
	s.AppendConstant(uint256.NewInt(1))
	s.AppendConstant(uint256.NewInt(2))
	s.AppendInstruction(OpAdd)
	s.AppendInstruction(OpStop)

	asm, err := s.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []byte{0x60, 1, 0x60, 2, byte(OpAdd), byte(OpStop)}
	if len(asm.Code) != len(want) {
		t.Fatalf("unexpected code length: got %d want %d (%x)", len(asm.Code), len(want), asm.Code)
	}
	for i := range want {
		if asm.Code[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, asm.Code[i], want[i])
		}
	}
}

func TestInMemorySinkLabelResolution(t *testing.T) {
	s := NewInMemorySink()
	target := s.NewLabel()
	s.AppendJumpTo(target, 0, JumpOrdinary)
	s.AppendInstruction(OpInvalid)
	s.AppendLabel(target)
	s.AppendInstruction(OpStop)

	asm, err := s.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	pc, ok := asm.LabelPC[target]
	if !ok {
		t.Fatalf("label was not resolved")
	}
	if int(pc) >= len(asm.Code) || asm.Code[pc] != byte(OpJumpDest) {
		t.Fatalf("label %d does not point at a JUMPDEST in %x", pc, asm.Code)
	}
}

func TestInMemorySinkUnresolvedLabelErrors(t *testing.T) {
	s := NewInMemorySink()
	phantom := s.NewLabel()
	s.AppendJumpTo(phantom, 0, JumpOrdinary)
	if _, err := s.Assemble(); err == nil {
		t.Fatalf("expected an error referencing an undefined label")
	}
}

func TestCodeHashIsDeterministic(t *testing.T) {
	s1, s2 := NewInMemorySink(), NewInMemorySink()
	s1.AppendInstruction(OpStop)
	s2.AppendInstruction(OpStop)
	a1, _ := s1.Assemble()
	a2, _ := s2.Assemble()
	if a1.CodeHash() != a2.CodeHash() {
		t.Fatalf("identical code must hash identically")
	}
}
