package stackgen

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// itemKind discriminates one entry of an InMemorySink's pending item list.
type itemKind uint8

const (
	itemOpcode itemKind = iota
	itemPushConstant
	itemLabelDef
	itemPushLabel
	itemJumpTo
	itemJumpToIf
	itemJump
)

type item struct {
	kind   itemKind
	opcode Opcode
	value  *uint256.Int
	label  LabelID
	kind2  JumpKind
}

// InMemorySink is a reference AssemblySink: it records a flat item list as
// the code transform emits it, then Assemble resolves every label reference
// to a fixed-width two-byte address and lays out the final byte stream.
// Label addresses are resolved in a single pass under the simplifying
// assumption that the assembled code never exceeds 65535 bytes; a sink
// meant to back a real deployment pipeline would iterate to a fixed point
// the way a relocating linker does.
type InMemorySink struct {
	items      []item
	nextLabel  LabelID
	labelNames map[LabelID]string
}

// NewInMemorySink returns an empty sink ready to receive one code transform's
// output.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{labelNames: make(map[LabelID]string)}
}

func (s *InMemorySink) NewLabel() LabelID {
	s.nextLabel++
	return s.nextLabel
}

func (s *InMemorySink) NamedLabel(name string, params, returns int) LabelID {
	id := s.NewLabel()
	s.labelNames[id] = name
	return id
}

func (s *InMemorySink) AppendLabel(id LabelID) {
	s.items = append(s.items, item{kind: itemLabelDef, label: id})
}

func (s *InMemorySink) AppendConstant(v *uint256.Int) {
	s.items = append(s.items, item{kind: itemPushConstant, value: v})
}

func (s *InMemorySink) AppendInstruction(op Opcode) {
	s.items = append(s.items, item{kind: itemOpcode, opcode: op})
}

func (s *InMemorySink) AppendJumpTo(target LabelID, stackDelta int, kind JumpKind) {
	s.items = append(s.items, item{kind: itemJumpTo, label: target, kind2: kind})
}

func (s *InMemorySink) AppendJumpToIf(target LabelID) {
	s.items = append(s.items, item{kind: itemJumpToIf, label: target})
}

func (s *InMemorySink) AppendJump(stackDelta int, kind JumpKind) {
	s.items = append(s.items, item{kind: itemJump, kind2: kind})
}

func (s *InMemorySink) AppendLabelReference(id LabelID) {
	s.items = append(s.items, item{kind: itemPushLabel, label: id})
}

// SetStackHeight and SetSourceLocation are bookkeeping hints the reference
// sink has no use for; it assembles a flat instruction stream, not a
// debugger-facing artifact.
func (s *InMemorySink) SetStackHeight(height int)          {}
func (s *InMemorySink) SetSourceLocation(loc SourceLocation) {}

// Assembled is the resolved output of one Assemble call.
type Assembled struct {
	Code       []byte
	LabelPC    map[LabelID]uint16
	SourceSize int
}

// CodeHash returns the Keccak-256 hash of the assembled bytecode, the same
// content-addressing scheme go-ethereum uses to identify compiled contract
// code.
func (a Assembled) CodeHash() common.Hash {
	return crypto.Keccak256Hash(a.Code)
}

// Assemble resolves every label reference to a 2-byte big-endian address and
// emits the final byte stream: PUSH2 <addr> for a label pushed as a value or
// jumped to, followed by JUMP/JUMPI/JUMPDEST as appropriate.
func (s *InMemorySink) Assemble() (Assembled, error) {
	pcOf := make(map[LabelID]uint16)
	pc := uint16(0)
	for _, it := range s.items {
		switch it.kind {
		case itemLabelDef:
			pcOf[it.label] = pc
			pc++ // JUMPDEST
		case itemOpcode:
			pc++
		case itemPushConstant:
			pc += 1 + byteWidth(it.value)
		case itemPushLabel:
			pc += 1 + 2 // PUSH2 addr
		case itemJumpTo:
			pc += 1 + 2 + 1 // PUSH2 addr, JUMP
		case itemJumpToIf:
			pc += 1 + 2 + 1 // PUSH2 addr, JUMPI
		case itemJump:
			pc++ // a bare JUMP off an already-pushed address (function return)
		}
	}

	code := make([]byte, 0, pc)
	for _, it := range s.items {
		switch it.kind {
		case itemLabelDef:
			code = append(code, byte(OpJumpDest))
		case itemOpcode:
			code = append(code, byte(it.opcode))
		case itemPushConstant:
			code = appendPush(code, it.value)
		case itemPushLabel, itemJumpTo:
			addr, ok := pcOf[it.label]
			if !ok {
				return Assembled{}, fmt.Errorf("stackgen: label %d referenced but never defined", it.label)
			}
			code = appendPushAddr(code, addr)
			if it.kind == itemJumpTo {
				code = append(code, byte(OpJump))
			}
		case itemJumpToIf:
			addr, ok := pcOf[it.label]
			if !ok {
				return Assembled{}, fmt.Errorf("stackgen: label %d referenced but never defined", it.label)
			}
			code = appendPushAddr(code, addr)
			code = append(code, byte(OpJumpI))
		case itemJump:
			code = append(code, byte(OpJump))
		}
	}
	return Assembled{Code: code, LabelPC: pcOf, SourceSize: len(s.items)}, nil
}

func byteWidth(v *uint256.Int) uint16 {
	if v == nil || v.IsZero() {
		return 1
	}
	return uint16((v.BitLen() + 7) / 8)
}

func appendPush(code []byte, v *uint256.Int) []byte {
	width := byteWidth(v)
	code = append(code, byte(0x60+width-1)) // PUSH1..PUSH32
	buf := v.Bytes32()
	return append(code, buf[32-width:]...)
}

func appendPushAddr(code []byte, addr uint16) []byte {
	code = append(code, byte(0x61)) // PUSH2
	return append(code, byte(addr>>8), byte(addr))
}
