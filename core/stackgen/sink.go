package stackgen

import "github.com/holiman/uint256"

// LabelID identifies a label in the target assembly stream.
type LabelID int

// JumpKind hints the downstream linker/disassembler about the nature of a
// jump, matching the distinction the teacher's opcode compiler draws
// between ordinary control flow and call/return edges (see
// core/opcodeCompiler/compiler's basic-block successor classification).
type JumpKind uint8

const (
	// JumpOrdinary is a plain intra-function jump.
	JumpOrdinary JumpKind = iota
	// JumpIntoFunction is a call entering a user function.
	JumpIntoFunction
	// JumpOutOfFunction is a return leaving a user function.
	JumpOutOfFunction
)

// AssemblySink is the downstream collaborator the code transform emits
// into. It has no file format, CLI, or persistent state of its own; it is a
// pure command sink over a linear instruction stream.
type AssemblySink interface {
	NewLabel() LabelID
	NamedLabel(name string, params, returns int) LabelID
	AppendLabel(id LabelID)
	AppendConstant(v *uint256.Int)
	AppendInstruction(op Opcode)
	AppendJumpTo(target LabelID, stackDelta int, kind JumpKind)
	AppendJumpToIf(target LabelID)
	AppendJump(stackDelta int, kind JumpKind)
	AppendLabelReference(id LabelID)
	SetStackHeight(height int)
	SetSourceLocation(loc SourceLocation)
}

// SourceLocation is an opaque source-position marker threaded through for
// diagnostics; the backend itself never inspects its fields.
type SourceLocation struct {
	File string
	Line int
	Col  int
}

// Opcode is a native instruction of the stack-machine target. The constants
// below name both the opcodes this backend itself appends and the ones the
// reference EVM dialect appends through Dialect.Emit.
type Opcode uint8

// Native opcode values, matching standard EVM byte encoding (the same table
// the teacher's opcode compiler carries in internal/compiler/opCodeProcessor.go).
const (
	OpStop       Opcode = 0x00
	OpAdd        Opcode = 0x01
	OpMul        Opcode = 0x02
	OpSub        Opcode = 0x03
	OpDiv        Opcode = 0x04
	OpSDiv       Opcode = 0x05
	OpMod        Opcode = 0x06
	OpSMod       Opcode = 0x07
	OpAddMod     Opcode = 0x08
	OpMulMod     Opcode = 0x09
	OpExp        Opcode = 0x0a
	OpSignExtend Opcode = 0x0b

	OpLt     Opcode = 0x10
	OpGt     Opcode = 0x11
	OpSLt    Opcode = 0x12
	OpSGt    Opcode = 0x13
	OpEq     Opcode = 0x14
	OpIsZero Opcode = 0x15
	OpAnd    Opcode = 0x16
	OpOr     Opcode = 0x17
	OpXor    Opcode = 0x18
	OpNot    Opcode = 0x19
	OpByte   Opcode = 0x1a
	OpShl    Opcode = 0x1b
	OpShr    Opcode = 0x1c
	OpSar    Opcode = 0x1d

	OpKeccak256 Opcode = 0x20

	OpAddress        Opcode = 0x30
	OpBalance        Opcode = 0x31
	OpOrigin         Opcode = 0x32
	OpCaller         Opcode = 0x33
	OpCallValue      Opcode = 0x34
	OpCallDataLoad   Opcode = 0x35
	OpCallDataSize   Opcode = 0x36
	OpCallDataCopy   Opcode = 0x37
	OpCodeSize       Opcode = 0x38
	OpCodeCopy       Opcode = 0x39
	OpGasPrice       Opcode = 0x3a
	OpExtCodeSize    Opcode = 0x3b
	OpExtCodeCopy    Opcode = 0x3c
	OpReturnDataSize Opcode = 0x3d
	OpReturnDataCopy Opcode = 0x3e
	OpExtCodeHash    Opcode = 0x3f

	OpBlockHash   Opcode = 0x40
	OpCoinbase    Opcode = 0x41
	OpTimestamp   Opcode = 0x42
	OpNumber      Opcode = 0x43
	OpDifficulty  Opcode = 0x44
	OpGasLimit    Opcode = 0x45
	OpChainID     Opcode = 0x46
	OpSelfBalance Opcode = 0x47
	OpBaseFee     Opcode = 0x48
	OpBlobHash    Opcode = 0x49
	OpBlobBaseFee Opcode = 0x4a

	OpPop      Opcode = 0x50
	OpMLoad    Opcode = 0x51
	OpMStore   Opcode = 0x52
	OpMStore8  Opcode = 0x53
	OpSLoad    Opcode = 0x54
	OpSStore   Opcode = 0x55
	OpJump     Opcode = 0x56
	OpJumpI    Opcode = 0x57
	OpPc       Opcode = 0x58
	OpMSize    Opcode = 0x59
	OpGas      Opcode = 0x5a
	OpJumpDest Opcode = 0x5b
	OpTLoad    Opcode = 0x5c
	OpTStore   Opcode = 0x5d
	OpMCopy    Opcode = 0x5e

	OpLog0 Opcode = 0xa0
	OpLog1 Opcode = 0xa1
	OpLog2 Opcode = 0xa2
	OpLog3 Opcode = 0xa3
	OpLog4 Opcode = 0xa4

	OpCreate       Opcode = 0xf0
	OpCall         Opcode = 0xf1
	OpCallCode     Opcode = 0xf2
	OpReturn       Opcode = 0xf3
	OpDelegateCall Opcode = 0xf4
	OpCreate2      Opcode = 0xf5
	OpStaticCall   Opcode = 0xfa
	OpRevert       Opcode = 0xfd
	OpInvalid      Opcode = 0xfe
	OpSelfDestruct Opcode = 0xff
	// OpSwap1..OpSwap16 and OpDup1..OpDup16 are computed, not enumerated;
	// see SwapOpcode/DupOpcode.
)

// SwapOpcode and DupOpcode compute the native opcode for SWAPk/DUPk, k in
// [1,16]. Callers are expected to have already enforced the depth-16 reach
// limit; these return a sentinel (OpInvalid) for out-of-range k rather than
// panicking, since range validation is the caller's responsibility (the
// shuffler and the layout generator's repair pass).
func SwapOpcode(k int) Opcode {
	if k < 1 || k > maxStackReach {
		return OpInvalid
	}
	return Opcode(0x90 + k - 1)
}

func DupOpcode(k int) Opcode {
	if k < 1 || k > maxStackReach {
		return OpInvalid
	}
	return Opcode(0x80 + k - 1)
}
