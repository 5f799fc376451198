package stackgen

import "github.com/holiman/uint256"

// EVMDialect is the reference Dialect: plain EVM opcodes with Yul-style
// names, one argument per stack slot, arguments evaluated last to first (so
// the first syntactic argument ends up on top). It carries
// no state and is safe to share across goroutines.
var EVMDialect Dialect = evmDialect{}

type evmDialect struct{}

func (evmDialect) Equality() BuiltinInfo {
	info, _ := EVMDialect.Builtin("eq")
	return info
}

func (evmDialect) Builtin(name string) (BuiltinInfo, bool) {
	op, ok := evmOpTable[name]
	if !ok {
		return BuiltinInfo{}, false
	}
	return op.info(), true
}

// evmOpDesc describes one plain-opcode builtin: fixed arity/return count, an
// optional terminating flag, and the native opcode it lowers to. Multi-word
// builtins (log*, create*, call*, *copy) vary arity and are listed
// individually below rather than computed, matching the teacher's
// flat enumerated opcode table.
type evmOpDesc struct {
	arity      int
	returns    int
	terminates bool
	opcode     Opcode
}

func (d evmOpDesc) info() BuiltinInfo {
	opcode := d.opcode
	return BuiltinInfo{
		Arity:      d.arity,
		Returns:    d.returns,
		Terminates: d.terminates,
		Emit: func(sink AssemblySink, call CallID, argc int, literals map[int]*uint256.Int) {
			sink.AppendInstruction(opcode)
		},
	}
}

var evmOpTable = map[string]evmOpDesc{
	"stop": {0, 0, true, OpStop},

	"add":        {2, 1, false, OpAdd},
	"mul":        {2, 1, false, OpMul},
	"sub":        {2, 1, false, OpSub},
	"div":        {2, 1, false, OpDiv},
	"sdiv":       {2, 1, false, OpSDiv},
	"mod":        {2, 1, false, OpMod},
	"smod":       {2, 1, false, OpSMod},
	"addmod":     {3, 1, false, OpAddMod},
	"mulmod":     {3, 1, false, OpMulMod},
	"exp":        {2, 1, false, OpExp},
	"signextend": {2, 1, false, OpSignExtend},

	"lt":     {2, 1, false, OpLt},
	"gt":     {2, 1, false, OpGt},
	"slt":    {2, 1, false, OpSLt},
	"sgt":    {2, 1, false, OpSGt},
	"eq":     {2, 1, false, OpEq},
	"iszero": {1, 1, false, OpIsZero},
	"and":    {2, 1, false, OpAnd},
	"or":     {2, 1, false, OpOr},
	"xor":    {2, 1, false, OpXor},
	"not":    {1, 1, false, OpNot},
	"byte":   {2, 1, false, OpByte},
	"shl":    {2, 1, false, OpShl},
	"shr":    {2, 1, false, OpShr},
	"sar":    {2, 1, false, OpSar},

	"keccak256": {2, 1, false, OpKeccak256},

	"address":        {0, 1, false, OpAddress},
	"balance":        {1, 1, false, OpBalance},
	"origin":         {0, 1, false, OpOrigin},
	"caller":         {0, 1, false, OpCaller},
	"callvalue":      {0, 1, false, OpCallValue},
	"calldataload":   {1, 1, false, OpCallDataLoad},
	"calldatasize":   {0, 1, false, OpCallDataSize},
	"calldatacopy":   {3, 0, false, OpCallDataCopy},
	"codesize":       {0, 1, false, OpCodeSize},
	"codecopy":       {3, 0, false, OpCodeCopy},
	"gasprice":       {0, 1, false, OpGasPrice},
	"extcodesize":    {1, 1, false, OpExtCodeSize},
	"extcodecopy":    {4, 0, false, OpExtCodeCopy},
	"returndatasize": {0, 1, false, OpReturnDataSize},
	"returndatacopy": {3, 0, false, OpReturnDataCopy},
	"extcodehash":    {1, 1, false, OpExtCodeHash},

	"blockhash":   {1, 1, false, OpBlockHash},
	"coinbase":    {0, 1, false, OpCoinbase},
	"timestamp":   {0, 1, false, OpTimestamp},
	"number":      {0, 1, false, OpNumber},
	"prevrandao":  {0, 1, false, OpDifficulty},
	"gaslimit":    {0, 1, false, OpGasLimit},
	"chainid":     {0, 1, false, OpChainID},
	"selfbalance": {0, 1, false, OpSelfBalance},
	"basefee":     {0, 1, false, OpBaseFee},
	"blobhash":    {1, 1, false, OpBlobHash},
	"blobbasefee": {0, 1, false, OpBlobBaseFee},

	"pop":    {1, 0, false, OpPop},
	"mload":  {1, 1, false, OpMLoad},
	"mstore": {2, 0, false, OpMStore},
	"mstore8": {2, 0, false, OpMStore8},
	"sload":  {1, 1, false, OpSLoad},
	"sstore": {2, 0, false, OpSStore},
	"msize":  {0, 1, false, OpMSize},
	"gas":    {0, 1, false, OpGas},
	"tload":  {1, 1, false, OpTLoad},
	"tstore": {2, 0, false, OpTStore},
	"mcopy":  {3, 0, false, OpMCopy},

	"log0": {2, 0, false, OpLog0},
	"log1": {3, 0, false, OpLog1},
	"log2": {4, 0, false, OpLog2},
	"log3": {5, 0, false, OpLog3},
	"log4": {6, 0, false, OpLog4},

	"create":         {3, 1, false, OpCreate},
	"call":           {7, 1, false, OpCall},
	"callcode":       {7, 1, false, OpCallCode},
	"return":         {2, 0, true, OpReturn},
	"delegatecall":   {6, 1, false, OpDelegateCall},
	"create2":        {4, 1, false, OpCreate2},
	"staticcall":     {6, 1, false, OpStaticCall},
	"revert":         {2, 0, true, OpRevert},
	"invalid":        {0, 0, true, OpInvalid},
	"selfdestruct":   {1, 0, true, OpSelfDestruct},
}
