package compiler

import (
	"fmt"

	"kanso/internal/ast"
	"kanso/internal/errors"
	"kanso/internal/parser"
)

// Severity mirrors §6's diagnostic taxonomy: error, warning, info.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is the core's structured diagnostic type (§6): every phase
// from parsing through codegen reports through this one shape so
// cmd/kanso-cli's error printer consumes a single vocabulary instead of
// one per phase. internal/lsp's diagnostics.go does not use it; it
// converts parser and scanner errors itself.
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	Position *ast.Position
}

func (d Diagnostic) String() string {
	if d.Position == nil {
		return fmt.Sprintf("%s[%s]: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s[%s]: %s (%s:%d:%d)", d.Severity, d.Code, d.Message,
		d.Position.Filename, d.Position.Line, d.Position.Column)
}

func fromParseError(e parser.ParseError) Diagnostic {
	pos := e.Position
	return Diagnostic{Severity: SeverityError, Code: "PARSE_ERROR", Message: e.Message, Position: &pos}
}

func fromScanError(e parser.ScanError) Diagnostic {
	pos := ast.Position{Line: e.Position.Line, Column: e.Position.Column, Offset: e.Position.Offset}
	return Diagnostic{Severity: SeverityError, Code: "SCAN_ERROR", Message: e.Message, Position: &pos}
}

func fromCompilerError(e errors.CompilerError) Diagnostic {
	pos := e.Position
	sev := SeverityError
	if errors.IsWarning(e.Code) {
		sev = SeverityWarning
	}
	return Diagnostic{Severity: sev, Code: e.Code, Message: e.Message, Position: &pos}
}

// fromErr wraps any error the layout/codegen phases return. Both
// *layout.StackTooDeepError and *codegen.Error already format themselves
// through Error() with their own stable code prefix (MEMORY_STACK_TOO_DEEP,
// CODEGEN_*), so the message is passed through unchanged and the code is
// left for the caller to set from the phase that produced it.
func fromErr(code string, err error) Diagnostic {
	return Diagnostic{Severity: SeverityError, Code: code, Message: err.Error()}
}
