// Package expr compiles scalar expression ASTs from plan nodes into
// vectorized evaluators.
//
// Compile resolves column references against an input schema, checks
// argument types against each function's signature, and returns a Compiled
// evaluator producing one output column per input batch. Resolution or
// type disagreement fails with *CompilationError; nothing is defaulted.
//
// Evaluation follows SQL three-valued logic: a comparison or arithmetic
// application with a null operand yields null, and the logical connectives
// treat null accordingly.
package expr
