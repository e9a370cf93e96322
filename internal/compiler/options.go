package compiler

// Options configures one driver invocation. Small option structs passed by
// value into constructors is the teacher's own convention
// (ir.NewBuilder(context), layout.Allocate(program)) - this just collects
// the knobs that span multiple phases instead of threading each through
// its own constructor.
type Options struct {
	// Path is the source filename, used only for diagnostic positions.
	Path string

	// OptimizationLevel selects which of internal/ir's passes run, per
	// §4.4: 0 = identity, 1 = constant folding + dead-code elimination,
	// 2 = + common-subexpression elimination, 3 = reserved for cross-block
	// CSE (not implemented - see DESIGN.md - so level 3 currently runs the
	// same passes as level 2).
	OptimizationLevel int

	// TargetFork is carried through to codegen for forward compatibility
	// with fork-gated opcode selection (§4.4 note 5, "gate by fork").
	// The generator this repo ships only ever targets one opcode set, so
	// Compile does not read or validate this field.
	TargetFork string

	// EmitDebugInfo controls whether Compile populates Output.IRDump.
	EmitDebugInfo bool
}
