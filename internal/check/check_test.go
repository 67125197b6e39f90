package check

import (
	"testing"

	"exprc/internal/ast"
	"exprc/internal/diagnostics"
	"exprc/internal/parser"
	"exprc/internal/token"
	"exprc/internal/types"
)

func checkSource(t *testing.T, src string) (*ast.Module, error) {
	t.Helper()
	toks, err := token.Tokenize(src)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	module, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return module, Check(module)
}

func TestCheckArithmeticAssignsIntType(t *testing.T) {
	module, err := checkSource(t, "1 + 2 * 3;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !module.TopLevelExpressions[0].NodeType().Equal(types.Int) {
		t.Fatalf("expected Int, got %s", module.TopLevelExpressions[0].NodeType())
	}
}

func TestCheckIfWithoutElseIsUnit(t *testing.T) {
	module, err := checkSource(t, "if true then 1;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !module.TopLevelExpressions[0].NodeType().Equal(types.Unit) {
		t.Fatalf("expected Unit, got %s", module.TopLevelExpressions[0].NodeType())
	}
}

func TestCheckIfWithElseUnifiesBranchTypes(t *testing.T) {
	module, err := checkSource(t, "if 3 < 5 then true else false;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !module.TopLevelExpressions[0].NodeType().Equal(types.Bool) {
		t.Fatalf("expected Bool, got %s", module.TopLevelExpressions[0].NodeType())
	}
}

func TestCheckWhileLoopIsUnitByDefault(t *testing.T) {
	module, err := checkSource(t, "var x = 1; while x < 10 do { x = x + 1; };")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := module.TopLevelExpressions[len(module.TopLevelExpressions)-1]
	if !last.NodeType().Equal(types.Unit) {
		t.Fatalf("expected Unit, got %s", last.NodeType())
	}
}

func TestCheckFunctionRecursion(t *testing.T) {
	src := "fun fact(n: Int): Int { if n <= 1 then return 1; return n * fact(n - 1); } print_int(fact(5));"
	_, err := checkSource(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckDeclaredTypeMismatchIsTypeError(t *testing.T) {
	_, err := checkSource(t, "var x: Bool = 5;")
	assertTypeError(t, err)
}

func TestCheckBreakOutsideLoopIsTypeError(t *testing.T) {
	_, err := checkSource(t, "break;")
	assertTypeError(t, err)
}

func TestCheckCallArityMismatchIsTypeError(t *testing.T) {
	src := "fun f(x: Int): Int { return x; } f(1, 2);"
	_, err := checkSource(t, src)
	assertTypeError(t, err)
}

func TestCheckRedeclarationInSameScopeIsTypeError(t *testing.T) {
	_, err := checkSource(t, "{ var x = 1; var x = 2; x };")
	assertTypeError(t, err)
}

func TestCheckShadowingInNestedScopeIsAllowed(t *testing.T) {
	_, err := checkSource(t, "var x = 1; { var x = 2; x };")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertTypeError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a type error")
	}
	if _, ok := err.(*diagnostics.TypeError); !ok {
		t.Fatalf("expected *diagnostics.TypeError, got %T (%v)", err, err)
	}
}
