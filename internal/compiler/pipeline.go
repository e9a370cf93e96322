package compiler

import (
	"kanso/internal/ast"
	"kanso/internal/codegen"
	"kanso/internal/ir"
	"kanso/internal/layout"
	"kanso/internal/parser"
	"kanso/internal/semantic"
)

// Output is everything a phase of the driver produced, kept around so a
// caller that only wants the AST (the LSP) or only wants bytecode
// (kanso-cli build) doesn't have to re-run earlier phases.
type Output struct {
	Contract   *ast.Contract
	Context    *semantic.ContextRegistry
	Program    *ir.Program
	MemoryPlan *layout.MemoryPlan
	Artifact   *codegen.Artifact

	// IRDump is internal/ir/printer.go's text rendering of Program,
	// populated only when Options.EmitDebugInfo is set. It stands in for
	// §6's per-instruction debug context: this IR carries no source
	// position per instruction (the teacher's IR never added one - see
	// DESIGN.md), so the driver can offer a structural dump but not a
	// source-mapped one without extending ir.Value first.
	IRDump string
}

// Compile runs every phase in §4's order - type environment, IR builder
// (which itself finalizes SSA via the dominance/phi pass), optimizer,
// memory/layout planner, code generator - stopping at the first fatal
// phase. A failed Result carries only the diagnostics; the outputs of
// the phases that completed before the failure are not returned. Parse and semantic
// diagnostics are non-fatal per §7 and do not, by themselves, stop the
// pipeline; layout and codegen errors are fatal per §7's taxonomy.
func Compile(source string, opts Options) Result[*Output] {
	contract, parseErrs, scanErrs := parser.ParseSource(opts.Path, source)

	var warnings []Diagnostic
	for _, e := range scanErrs {
		warnings = append(warnings, fromScanError(e))
	}
	for _, e := range parseErrs {
		warnings = append(warnings, fromParseError(e))
	}
	if contract == nil {
		// The scanner/parser recover at statement boundaries and still
		// hand back a partial Contract for most errors; a nil contract
		// means recovery itself failed, the one case parse errors are
		// fatal rather than "surfaced unchanged" alongside a usable AST.
		return Err[*Output](warnings, nil)
	}

	analyzer := semantic.NewAnalyzer()
	analyzer.Analyze(contract) // populates analyzer.GetErrors(); []SemanticError return is a test-compatibility shim
	for _, e := range analyzer.GetErrors() {
		warnings = append(warnings, fromCompilerError(e))
	}
	context := analyzer.GetContext()

	program := ir.BuildProgram(contract, context)

	level := opts.OptimizationLevel
	if level > 0 {
		runOptimizations(program, level)
	}

	plan := layout.Allocate(program)

	for _, fn := range program.Functions {
		if _, err := layout.AnalyzeStacks(fn); err != nil {
			return Err[*Output]([]Diagnostic{fromErr("MEMORY_STACK_TOO_DEEP", err)}, warnings)
		}
	}

	artifact, err := codegen.Generate(program, plan)
	if err != nil {
		return Err[*Output]([]Diagnostic{fromErr("CODEGEN_ERROR", err)}, warnings)
	}

	out := &Output{
		Contract:   contract,
		Context:    context,
		Program:    program,
		MemoryPlan: plan,
		Artifact:   artifact,
	}
	if opts.EmitDebugInfo {
		out.IRDump = ir.Print(program)
	}

	return Ok(out, warnings)
}

// runOptimizations wires internal/ir/optimizations.go's passes into the
// driver (rather than NewOptimizationPipeline's fixed four) so
// Options.OptimizationLevel actually selects the §4.4 pass set: level 1 is
// constant folding + dead-code elimination, level 2 adds CSE. Level 3 is
// documented in §4.4 as adding cross-block CSE restricted to side-effect-
// free instructions; CommonSubexpressionElimination here only ever
// operates within a block (see its Apply), so levels 2 and 3 currently
// coincide - recorded as an open gap in DESIGN.md rather than silently
// claimed as implemented.
func runOptimizations(program *ir.Program, level int) {
	pipeline := &ir.OptimizationPipeline{}
	pipeline.AddPass(&ir.ConstantFolding{})
	pipeline.AddPass(&ir.CheckedArithmeticOptimization{})
	pipeline.AddPass(&ir.DeadCodeElimination{})
	if level >= 2 {
		pipeline.AddPass(&ir.CommonSubexpressionElimination{})
	}
	pipeline.Run(program)
}
