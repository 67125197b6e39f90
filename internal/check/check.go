// Package check implements the static type checker: it walks a module AST in
// a lexically-scoped environment, annotates every node's type slot, and
// rejects ill-typed programs with a located diagnostics.TypeError.
package check

import (
	"exprc/internal/ast"
	"exprc/internal/diagnostics"
	"exprc/internal/types"
)

const returnBindingName = "return"

// Checker walks a Module, mutating each Expr's type slot in place. A single
// Checker instance is not reused across modules.
type Checker struct {
	root     *Env
	loopDepth int
}

// NewChecker builds a root environment pre-populated with operator and
// built-in signatures, per spec §4.3.
func NewChecker() *Checker {
	root := NewEnv(nil)

	arith := &types.Fun{Params: []types.Type{types.Int, types.Int}, Ret: types.Int}
	root.Define("+", arith)
	root.Define("-", arith)
	root.Define("*", arith)
	root.Define("/", arith)
	root.Define("%", arith)

	cmp := &types.Fun{Params: []types.Type{types.Int, types.Int}, Ret: types.Bool}
	root.Define("<", cmp)
	root.Define("<=", cmp)
	root.Define(">", cmp)
	root.Define(">=", cmp)

	logical := &types.Fun{Params: []types.Type{types.Bool, types.Bool}, Ret: types.Bool}
	root.Define("and", logical)
	root.Define("or", logical)

	root.Define("unary_-", &types.Fun{Params: []types.Type{types.Int}, Ret: types.Int})
	root.Define("unary_not", &types.Fun{Params: []types.Type{types.Bool}, Ret: types.Bool})

	root.Define("print_int", &types.Fun{Params: []types.Type{types.Int}, Ret: types.Unit})
	root.Define("print_bool", &types.Fun{Params: []types.Type{types.Bool}, Ret: types.Unit})
	root.Define("read_int", &types.Fun{Params: nil, Ret: types.Int})

	return &Checker{root: root}
}

// Check type-checks every function definition and the implicit main body
// formed by the module's top-level expressions.
func Check(module *ast.Module) error {
	return NewChecker().Check(module)
}

func (c *Checker) Check(module *ast.Module) error {
	// Pre-pass: bind every function's signature in the root scope first so
	// calls can resolve regardless of definition order, including
	// self-recursion and forward references.
	for _, fd := range module.FunctionDefinitions {
		sig, err := c.functionSignature(fd)
		if err != nil {
			return err
		}
		if c.root.DefinedHere(fd.Name) {
			return diagnostics.NewTypeError(fd.Loc, "function %q is already declared in this scope", fd.Name)
		}
		c.root.Define(fd.Name, sig)
	}

	for _, fd := range module.FunctionDefinitions {
		if err := c.checkFunctionBody(fd); err != nil {
			return err
		}
	}

	mainEnv := NewEnv(c.root)
	c.loopDepth = 0
	for _, expr := range module.TopLevelExpressions {
		if err := c.checkExpr(mainEnv, expr); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) functionSignature(fd *ast.FunctionDefinition) (*types.Fun, error) {
	params := make([]types.Type, len(fd.Parameters))
	for i, p := range fd.Parameters {
		t, ok := types.FromName(p.ParamType)
		if !ok {
			return nil, diagnostics.NewTypeError(fd.Loc, "unknown parameter type %q", p.ParamType)
		}
		params[i] = t
	}
	ret, ok := types.FromName(fd.ReturnType)
	if !ok {
		return nil, diagnostics.NewTypeError(fd.Loc, "unknown return type %q", fd.ReturnType)
	}
	return &types.Fun{Params: params, Ret: ret}, nil
}

func (c *Checker) checkFunctionBody(fd *ast.FunctionDefinition) error {
	sig, err := c.functionSignature(fd)
	if err != nil {
		return err
	}

	fnEnv := NewEnv(c.root)
	for i, p := range fd.Parameters {
		fnEnv.Define(p.Name, sig.Params[i])
	}
	fnEnv.Define(returnBindingName, sig.Ret)

	c.loopDepth = 0
	if err := c.checkExpr(fnEnv, fd.Body); err != nil {
		return err
	}

	if !containsReturn(fd.Body) {
		if !fd.Body.NodeType().Equal(sig.Ret) {
			return diagnostics.NewTypeError(fd.Loc,
				"function %q has no return statement but its body type %s does not match declared return type %s",
				fd.Name, fd.Body.NodeType(), sig.Ret)
		}
	}
	return nil
}

// checkExpr annotates e.Type and recurses into its children, per the rules
// in spec §4.3.
func (c *Checker) checkExpr(env *Env, e ast.Expr) error {
	switch n := e.(type) {

	case *ast.Literal:
		switch n.Kind {
		case ast.IntLiteralKind:
			n.SetType(types.Int)
		case ast.BoolLiteralKind:
			n.SetType(types.Bool)
		default:
			n.SetType(types.Unit)
		}
		return nil

	case *ast.Identifier:
		t, ok := env.Lookup(n.Name)
		if !ok {
			return diagnostics.NewTypeError(n.Loc, "unknown name %q", n.Name)
		}
		n.SetType(t)
		return nil

	case *ast.UnaryOp:
		if err := c.checkExpr(env, n.Operand); err != nil {
			return err
		}
		key := "unary_" + n.Op
		sig, ok := env.Lookup(key)
		if !ok {
			return diagnostics.NewTypeError(n.Loc, "unknown unary operator %q", n.Op)
		}
		fn := sig.(*types.Fun)
		if !n.Operand.NodeType().Equal(fn.Params[0]) {
			return diagnostics.NewTypeError(n.Loc, "operator %q expects %s, got %s", n.Op, fn.Params[0], n.Operand.NodeType())
		}
		n.SetType(fn.Ret)
		return nil

	case *ast.BinaryOp:
		return c.checkBinaryOp(env, n)

	case *ast.IfExpression:
		return c.checkIfExpression(env, n)

	case *ast.WhileLoop:
		return c.checkWhileLoop(env, n)

	case *ast.Block:
		return c.checkBlock(env, n)

	case *ast.VarDeclaration:
		return c.checkVarDeclaration(env, n)

	case *ast.FunctionCall:
		return c.checkFunctionCall(env, n)

	case *ast.BreakStatement:
		if c.loopDepth <= 0 {
			return diagnostics.NewTypeError(n.Loc, "'break' outside a loop")
		}
		n.SetType(types.Unit)
		return nil

	case *ast.ContinueStatement:
		if c.loopDepth <= 0 {
			return diagnostics.NewTypeError(n.Loc, "'continue' outside a loop")
		}
		n.SetType(types.Unit)
		return nil

	case *ast.ReturnStatement:
		return c.checkReturnStatement(env, n)

	default:
		return diagnostics.NewTypeError(e.Location(), "unhandled expression node %T", e)
	}
}

func (c *Checker) checkBinaryOp(env *Env, n *ast.BinaryOp) error {
	if n.Op == "=" {
		ident, ok := n.Left.(*ast.Identifier)
		if !ok {
			return diagnostics.NewTypeError(n.Loc, "left-hand side of '=' must be an identifier")
		}
		declaredType, ok := env.Lookup(ident.Name)
		if !ok {
			return diagnostics.NewTypeError(ident.Loc, "unknown name %q", ident.Name)
		}
		if err := c.checkExpr(env, n.Right); err != nil {
			return err
		}
		if !n.Right.NodeType().Equal(declaredType) {
			return diagnostics.NewTypeError(n.Loc, "cannot assign %s to %q of type %s", n.Right.NodeType(), ident.Name, declaredType)
		}
		ident.SetType(declaredType)
		n.SetType(declaredType)
		return nil
	}

	if err := c.checkExpr(env, n.Left); err != nil {
		return err
	}
	if err := c.checkExpr(env, n.Right); err != nil {
		return err
	}

	if n.Op == "==" || n.Op == "!=" {
		if !n.Left.NodeType().Equal(n.Right.NodeType()) {
			return diagnostics.NewTypeError(n.Loc, "operands of %q must have equal types, got %s and %s", n.Op, n.Left.NodeType(), n.Right.NodeType())
		}
		n.SetType(types.Bool)
		return nil
	}

	sig, ok := env.Lookup(n.Op)
	if !ok {
		return diagnostics.NewTypeError(n.Loc, "unknown operator %q", n.Op)
	}
	fn := sig.(*types.Fun)
	if !n.Left.NodeType().Equal(fn.Params[0]) || !n.Right.NodeType().Equal(fn.Params[1]) {
		return diagnostics.NewTypeError(n.Loc, "operator %q expects (%s, %s), got (%s, %s)",
			n.Op, fn.Params[0], fn.Params[1], n.Left.NodeType(), n.Right.NodeType())
	}
	n.SetType(fn.Ret)
	return nil
}

func (c *Checker) checkIfExpression(env *Env, n *ast.IfExpression) error {
	if err := c.checkExpr(env, n.Condition); err != nil {
		return err
	}
	if !n.Condition.NodeType().Equal(types.Bool) {
		return diagnostics.NewTypeError(n.Condition.Location(), "'if' condition must be Bool, got %s", n.Condition.NodeType())
	}
	if err := c.checkExpr(env, n.ThenBranch); err != nil {
		return err
	}
	if n.ElseBranch == nil {
		n.SetType(types.Unit)
		return nil
	}
	if err := c.checkExpr(env, n.ElseBranch); err != nil {
		return err
	}
	if !n.ThenBranch.NodeType().Equal(n.ElseBranch.NodeType()) {
		return diagnostics.NewTypeError(n.Loc, "'if' branches must have equal types, got %s and %s", n.ThenBranch.NodeType(), n.ElseBranch.NodeType())
	}
	n.SetType(n.ThenBranch.NodeType())
	return nil
}

func (c *Checker) checkWhileLoop(env *Env, n *ast.WhileLoop) error {
	if err := c.checkExpr(env, n.Condition); err != nil {
		return err
	}
	if !n.Condition.NodeType().Equal(types.Bool) {
		return diagnostics.NewTypeError(n.Condition.Location(), "'while' condition must be Bool, got %s", n.Condition.NodeType())
	}
	c.loopDepth++
	err := c.checkExpr(env, n.Body)
	c.loopDepth--
	if err != nil {
		return err
	}
	if containsReturn(n.Body) {
		n.SetType(n.Body.NodeType())
	} else {
		n.SetType(types.Unit)
	}
	return nil
}

func (c *Checker) checkBlock(env *Env, n *ast.Block) error {
	child := NewEnv(env)
	for _, stmt := range n.Statements {
		if err := c.checkExpr(child, stmt); err != nil {
			return err
		}
	}
	if err := c.checkExpr(child, n.Result); err != nil {
		return err
	}
	n.SetType(n.Result.NodeType())
	return nil
}

func (c *Checker) checkVarDeclaration(env *Env, n *ast.VarDeclaration) error {
	if err := c.checkExpr(env, n.Value); err != nil {
		return err
	}
	valueType := n.Value.NodeType()
	if n.DeclaredType != "" {
		declared, ok := types.FromName(n.DeclaredType)
		if !ok {
			return diagnostics.NewTypeError(n.Loc, "unknown type %q", n.DeclaredType)
		}
		if !declared.Equal(valueType) {
			return diagnostics.NewTypeError(n.Loc, "declared type %s does not match initializer type %s", declared, valueType)
		}
		valueType = declared
	}
	if env.DefinedHere(n.Name) {
		return diagnostics.NewTypeError(n.Loc, "%q is already declared in this scope", n.Name)
	}
	env.Define(n.Name, valueType)
	n.SetType(types.Unit)
	return nil
}

func (c *Checker) checkFunctionCall(env *Env, n *ast.FunctionCall) error {
	calleeType, ok := env.Lookup(n.Callee.Name)
	if !ok {
		return diagnostics.NewTypeError(n.Loc, "unknown function %q", n.Callee.Name)
	}
	fn, ok := calleeType.(*types.Fun)
	if !ok {
		return diagnostics.NewTypeError(n.Loc, "%q is not callable", n.Callee.Name)
	}
	n.Callee.SetType(fn)
	if len(n.Args) != len(fn.Params) {
		return diagnostics.NewTypeError(n.Loc, "%q expects %d argument(s), got %d", n.Callee.Name, len(fn.Params), len(n.Args))
	}
	for i, arg := range n.Args {
		if err := c.checkExpr(env, arg); err != nil {
			return err
		}
		if !arg.NodeType().Equal(fn.Params[i]) {
			return diagnostics.NewTypeError(arg.Location(), "argument %d of %q: expected %s, got %s", i+1, n.Callee.Name, fn.Params[i], arg.NodeType())
		}
	}
	n.SetType(fn.Ret)
	return nil
}

func (c *Checker) checkReturnStatement(env *Env, n *ast.ReturnStatement) error {
	returnType, ok := env.Lookup(returnBindingName)
	if !ok {
		return diagnostics.NewTypeError(n.Loc, "'return' outside a function")
	}
	if n.Value == nil {
		if !returnType.Equal(types.Unit) {
			return diagnostics.NewTypeError(n.Loc, "function must return %s, got Unit", returnType)
		}
		n.SetType(types.Unit)
		return nil
	}
	if err := c.checkExpr(env, n.Value); err != nil {
		return err
	}
	if !n.Value.NodeType().Equal(returnType) {
		return diagnostics.NewTypeError(n.Loc, "function must return %s, got %s", returnType, n.Value.NodeType())
	}
	n.SetType(types.Unit)
	return nil
}

// containsReturn reports whether a ReturnStatement appears anywhere in e's
// subtree, used to decide whether a WhileLoop or function body's declared
// "no return" type rule applies (spec §4.3).
func containsReturn(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.ReturnStatement:
		return true
	case *ast.Block:
		for _, s := range n.Statements {
			if containsReturn(s) {
				return true
			}
		}
		return containsReturn(n.Result)
	case *ast.IfExpression:
		if containsReturn(n.Condition) || containsReturn(n.ThenBranch) {
			return true
		}
		return n.ElseBranch != nil && containsReturn(n.ElseBranch)
	case *ast.WhileLoop:
		return containsReturn(n.Condition) || containsReturn(n.Body)
	case *ast.UnaryOp:
		return containsReturn(n.Operand)
	case *ast.BinaryOp:
		return containsReturn(n.Left) || containsReturn(n.Right)
	case *ast.VarDeclaration:
		return containsReturn(n.Value)
	case *ast.FunctionCall:
		for _, a := range n.Args {
			if containsReturn(a) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
