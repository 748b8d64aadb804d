package typeres

import (
	"context"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/emilycares/java-lsp/internal/symbol"
)

// pickOverload selects the best candidate for an argument list. Arity gates
// first; surviving candidates are scored positionally and the highest total
// wins. Two candidates tying for the top score return (first, second) so the
// caller can report ambiguity while still giving a best-effort answer.
func (e *Engine) pickOverload(ctx context.Context, candidates []*symbol.Member, args []*tree_sitter.Node) (*symbol.Member, *symbol.Member) {
	if len(candidates) == 0 {
		return nil, nil
	}
	argTypes := make([]string, len(args))
	for i, arg := range args {
		argTypes[i] = e.typeOfArgument(ctx, arg)
	}

	var best, tie *symbol.Member
	bestScore := scoreReject
	for _, cand := range candidates {
		s := e.scoreCandidate(cand, argTypes)
		if s < 0 {
			continue
		}
		switch {
		case s > bestScore:
			bestScore = s
			best = cand
			tie = nil
		case s == bestScore && best != nil:
			tie = cand
		}
	}
	return best, tie
}

// typeOfArgument resolves an argument expression to a type name, "" when it
// cannot be typed (a lambda, a method reference, an unresolved chain). An
// untypeable argument never disqualifies a candidate; it just scores low.
func (e *Engine) typeOfArgument(ctx context.Context, arg *tree_sitter.Node) string {
	switch arg.Kind() {
	case "lambda_expression", "method_reference":
		return ""
	}
	var steps []Step
	flatten(arg, e.Source, &steps)
	if len(steps) == 0 {
		return ""
	}
	if steps[0].Kind == StepLiteral && len(steps) == 1 {
		return steps[0].LiteralType
	}
	sub := &Engine{
		Universe:  e.Universe,
		Imports:   e.Imports,
		Scopes:    e.Scopes,
		Source:    e.Source,
		Enclosing: e.Enclosing,
		Static:    e.Static,
		Stale:     e.Stale,
	}
	r := sub.ResolveChain(ctx, steps)
	if r.Unknown || r.IsType {
		return ""
	}
	return r.TypeFQN
}

// scoreCandidate sums per-argument compatibility, or returns scoreReject
// when the arity or any argument rules the candidate out.
func (e *Engine) scoreCandidate(cand *symbol.Member, argTypes []string) int {
	arity := cand.Arity()
	fixed := len(argTypes) == arity
	viaVarargs := cand.Varargs && len(argTypes) >= arity-1
	if !fixed && !viaVarargs {
		return scoreReject
	}

	total := 0
	for i, argType := range argTypes {
		var paramType string
		varargPos := false
		if i < arity-1 || (fixed && i == arity-1) {
			paramType = cand.Params[i].Type
		} else {
			// Spilling into the trailing variadic parameter.
			paramType = trimArray(cand.Params[arity-1].Type)
			varargPos = true
		}
		s := e.scoreArg(argType, paramType)
		if s < 0 && fixed && cand.Varargs && i == arity-1 {
			// Fixed shape did not fit the array; retry as the first
			// variadic element.
			s = e.scoreArg(argType, trimArray(paramType))
			varargPos = true
		}
		if s < 0 {
			return scoreReject
		}
		if varargPos && s > scoreVarargs {
			s = scoreVarargs
		}
		total += s
	}
	return total
}

// scoreArg ranks one argument against one parameter type:
// exact > widening or boxing > reference supertype > rejected.
func (e *Engine) scoreArg(argType, paramType string) int {
	if argType == "" {
		return scoreUnknown
	}
	paramFQN := e.normalizeParam(paramType)
	if paramFQN == "" {
		return scoreUnknown
	}
	if argType == paramFQN {
		return scoreExact
	}
	if argType == "null" {
		if symbol.IsPrimitive(paramFQN) {
			return scoreReject
		}
		return scoreSupertype
	}

	// Boxing in either direction.
	if symbol.Boxed(argType) == paramFQN || symbol.Boxed(paramFQN) == argType {
		return scoreWidening
	}
	// Primitive widening per JLS 5.1.2.
	if symbol.IsPrimitive(argType) {
		for _, wide := range symbol.WideningOf(argType) {
			if wide == paramFQN {
				return scoreWidening
			}
		}
		// A primitive argument for an unrelated reference parameter only
		// survives via Object (autoboxed).
		if paramFQN == "java.lang.Object" {
			return scoreSupertype
		}
		return scoreReject
	}
	if symbol.IsPrimitive(paramFQN) {
		// Unboxing already handled above; other references don't unbox.
		return scoreReject
	}

	if paramFQN == "java.lang.Object" || e.isSupertype(paramFQN, argType) {
		return scoreSupertype
	}
	return scoreReject
}

// normalizeParam resolves a parameter's declared type to an index key.
// Compiled members carry FQNs already; project members may use simple names.
func (e *Engine) normalizeParam(paramType string) string {
	fqn, _, ok := e.normalizeType(paramType)
	if !ok {
		return symbol.Erase(paramType)
	}
	return fqn
}

// isSupertype walks sub's hierarchy looking for super, depth-capped the same
// way as every other traversal.
func (e *Engine) isSupertype(super, sub string) bool {
	sub = trimArray(sub)
	super = trimArray(super)
	visited := make(map[string]bool)
	queue := []string{sub}
	for steps := 0; len(queue) > 0 && steps < 16; steps++ {
		current := queue[0]
		queue = queue[1:]
		if current == "" || visited[current] {
			continue
		}
		visited[current] = true
		if current == super {
			return true
		}
		cls, ok := e.Universe.LookupCachedOnly(current)
		if !ok {
			continue
		}
		if cls.SuperClass != "" {
			queue = append(queue, cls.SuperClass)
		}
		queue = append(queue, cls.Interfaces...)
	}
	return false
}

func trimArray(t string) string {
	for len(t) > 2 && t[len(t)-2] == '[' && t[len(t)-1] == ']' {
		t = t[:len(t)-2]
	}
	return t
}
