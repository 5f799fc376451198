// Package stackgen implements a stack-aware code generation backend for a
// Yul-like stack machine: a 256-bit integer stack VM with SWAP1..SWAP16,
// DUP1..DUP16, POP, PUSH, and direct/conditional jumps.
//
// The pipeline has three stages, run in order by callers (see Build,
// GenerateLayout, Generate):
//
//   - Build: lowers a resolved AST into a DFG, a control-flow graph of basic
//     blocks whose operations are stack-slot operations (builtin calls,
//     function calls, assignments).
//   - GenerateLayout: a backward dataflow pass computing, for every block and
//     every operation, the exact stack layout required on entry.
//   - Generate: a forward traversal that shuffles the concrete stack into
//     each precomputed layout and emits the operation's native code.
//
// The shuffling algorithm (createStackLayout) that mechanically turns one
// concrete stack into another using only SWAP/DUP/PUSH/POP is shared between
// the layout pass, which uses it to estimate shuffling cost, and the code
// transform, which uses it to emit real instructions.
package stackgen
