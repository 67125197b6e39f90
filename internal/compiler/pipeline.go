// Package compiler orchestrates the pipeline stages, tokenize, parse,
// check, lower, generate, into a single entry point used by both the CLI
// and the compile server.
package compiler

import (
	"fmt"

	"exprc/internal/ast"
	"exprc/internal/check"
	"exprc/internal/codegen"
	"exprc/internal/ir"
	"exprc/internal/parser"
	"exprc/internal/token"
)

// Result carries every intermediate artifact a caller might want to inspect
// (e.g. the CLI's --emit-ir/--emit-asm flags), alongside the final assembly.
type Result struct {
	Module   *ast.Module
	Program  *ir.Program
	Assembly string
}

// Pipeline runs the full compilation end to end. It holds no state between
// calls; each Compile call is independent (single-threaded,
// synchronous, no state observable across compilations).
type Pipeline struct{}

// New returns a ready-to-use Pipeline.
func New() Pipeline {
	return Pipeline{}
}

// Compile runs source through every stage and returns the compiled Result,
// or the first located diagnostics error encountered.
func (Pipeline) Compile(source string) (*Result, error) {
	tokens, err := token.Tokenize(source)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}

	module, err := parser.Parse(tokens)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	if err := check.Check(module); err != nil {
		return nil, fmt.Errorf("type checking: %w", err)
	}

	program, err := ir.Generate(module)
	if err != nil {
		return nil, fmt.Errorf("lowering to IR: %w", err)
	}

	assembly, err := codegen.Generate(program)
	if err != nil {
		return nil, fmt.Errorf("generating assembly: %w", err)
	}

	return &Result{Module: module, Program: program, Assembly: assembly}, nil
}
