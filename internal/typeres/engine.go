package typeres

import (
	"context"
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/emilycares/java-lsp/internal/imports"
	"github.com/emilycares/java-lsp/internal/index"
	"github.com/emilycares/java-lsp/internal/position"
	"github.com/emilycares/java-lsp/internal/scope"
	"github.com/emilycares/java-lsp/internal/symbol"
)

// Overload scoring weights. The relation between them is the policy the
// resolver commits to: exact beats widening/boxing beats supertype beats
// varargs. Tunable; exact parity with JLS overload selection is out of scope.
const (
	scoreExact     = 4
	scoreWidening  = 3
	scoreSupertype = 2
	scoreVarargs   = 1
	scoreUnknown   = 1
	scoreReject    = -1
)

// Resolved is the outcome of a chain resolution. A truncated chain keeps the
// portion already resolved: StepsResolved says how far it got, and Unknown
// marks the terminal state.
type Resolved struct {
	TypeFQN       string            // result type: FQN, primitive, or array ("java.lang.String[]")
	TypeArgs      map[string]string // generic substitution in effect for TypeFQN
	Member        *symbol.Member    // member selected at the last resolved step
	IsType        bool              // chain currently denotes a type, not a value
	StepsResolved int
	Unknown       bool
	Cancelled     bool
}

// Engine resolves call chains against one document revision. It is built per
// request and not shared; the universe handle is passed in explicitly.
type Engine struct {
	Universe  *index.Universe
	Imports   *imports.Table
	Scopes    *scope.Scope
	Source    []byte
	Enclosing *symbol.Class // type declaration containing the position, may be nil
	Static    bool          // position sits in a static context

	// Stale reports whether the originating document has moved past the
	// revision this engine was built for. Checked around expensive steps.
	Stale func() bool

	diags []position.Diagnostic
}

// Diagnostics returns findings accumulated across TypeOf calls on this engine.
func (e *Engine) Diagnostics() []position.Diagnostic {
	return e.diags
}

// TypeOf resolves the chain containing node to a static type.
func (e *Engine) TypeOf(ctx context.Context, node *tree_sitter.Node) Resolved {
	steps := ExtractChain(node, e.Source)
	if len(steps) == 0 {
		return Resolved{Unknown: true}
	}
	return e.ResolveChain(ctx, steps)
}

// ResolveChain walks steps left to right. The first unresolved segment
// truncates the chain to unknown without discarding what already resolved.
func (e *Engine) ResolveChain(ctx context.Context, steps []Step) Resolved {
	var state Resolved
	for i, step := range steps {
		if e.isStale(ctx) {
			state.Cancelled = true
			state.Unknown = true
			return state
		}
		var ok bool
		if i == 0 {
			state, ok = e.resolveReceiver(ctx, step)
		} else {
			state, ok = e.resolveMember(ctx, state, step)
		}
		if !ok {
			state.Unknown = true
			state.StepsResolved = i
			return state
		}
		state.StepsResolved = i + 1
	}
	return state
}

// ResolveChainToOffset resolves only the steps that end before the byte
// offset, for completion at a cursor inside a partially typed chain.
func (e *Engine) ResolveChainToOffset(ctx context.Context, steps []Step, offset uint) Resolved {
	var prefix []Step
	for _, s := range steps {
		if s.Node != nil && s.Node.EndByte() < offset {
			prefix = append(prefix, s)
		}
	}
	if len(prefix) == 0 {
		return Resolved{Unknown: true}
	}
	return e.ResolveChain(ctx, prefix)
}

func (e *Engine) isStale(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return e.Stale != nil && e.Stale()
}

// resolveReceiver types the leftmost segment: local variable first, then
// imported type name, then implicit this member, in that priority.
func (e *Engine) resolveReceiver(ctx context.Context, step Step) (Resolved, bool) {
	switch step.Kind {
	case StepThis:
		if e.Enclosing == nil {
			return Resolved{}, false
		}
		return Resolved{TypeFQN: e.Enclosing.FQN}, true

	case StepLiteral:
		if step.LiteralType == "null" {
			return Resolved{}, false
		}
		return Resolved{TypeFQN: step.LiteralType}, true

	case StepNew:
		fqn, args, ok := e.normalizeType(step.Name)
		if !ok {
			e.reportUnresolved(step, fmt.Sprintf("cannot resolve type %q", step.Name))
			return Resolved{}, false
		}
		return Resolved{TypeFQN: fqn, TypeArgs: args}, true

	case StepIdent:
		if b := e.Scopes.Lookup(step.Name, startByte(step)); b != nil && b.Type != "" {
			fqn, args, ok := e.normalizeType(b.Type)
			if !ok {
				return Resolved{}, false
			}
			return Resolved{TypeFQN: fqn, TypeArgs: args}, true
		}
		if fqn, err := e.Imports.Resolve(step.Name, e.Universe, e.Enclosing); fqn != "" {
			if err != nil {
				e.reportAmbiguity(step, err)
			}
			return Resolved{TypeFQN: fqn, IsType: true}, true
		} else if err != nil {
			e.reportAmbiguity(step, err)
			return Resolved{}, false
		}
		if r, ok := e.resolveImplicitMember(ctx, step); ok {
			return r, true
		}
		e.reportUnresolved(step, fmt.Sprintf("cannot resolve %q", step.Name))
		return Resolved{}, false

	case StepCall:
		// Unqualified call: implicit this (or statically imported) method.
		if r, ok := e.resolveImplicitMember(ctx, step); ok {
			return r, true
		}
		e.reportUnresolved(step, fmt.Sprintf("cannot resolve method %q", step.Name))
		return Resolved{}, false
	}
	return Resolved{}, false
}

// resolveImplicitMember looks the name up on the enclosing class (instance
// or static context) and then among static imports.
func (e *Engine) resolveImplicitMember(ctx context.Context, step Step) (Resolved, bool) {
	owners := []string{}
	if e.Enclosing != nil {
		owners = append(owners, e.Enclosing.FQN)
	}
	if owner, err := e.Imports.StaticOwner(ctx, step.Name, e.Universe); owner != "" {
		if err != nil {
			e.reportAmbiguity(step, err)
		}
		owners = append(owners, owner)
	}
	for _, owner := range owners {
		receiver := Resolved{TypeFQN: owner}
		if r, ok := e.memberOn(ctx, receiver, step, e.Static && owner == ownerFQN(e.Enclosing)); ok {
			return r, true
		}
	}
	return Resolved{}, false
}

func ownerFQN(cls *symbol.Class) string {
	if cls == nil {
		return ""
	}
	return cls.FQN
}

// resolveMember types one non-leftmost segment against the current state.
func (e *Engine) resolveMember(ctx context.Context, state Resolved, step Step) (Resolved, bool) {
	if state.TypeFQN == "" {
		return state, false
	}

	// Arrays expose only length; anything else on an array is unresolved.
	if strings.HasSuffix(state.TypeFQN, "[]") {
		if step.Kind == StepField && step.Name == "length" {
			return Resolved{TypeFQN: "int"}, true
		}
		if step.Kind == StepCall && step.Name == "clone" {
			return Resolved{TypeFQN: state.TypeFQN}, true
		}
		return state, false
	}
	if symbol.IsPrimitive(state.TypeFQN) {
		return state, false
	}

	// Type.Inner nested type access stays in the type namespace.
	if state.IsType && step.Kind == StepField {
		if nested := state.TypeFQN + "." + step.Name; e.Universe.Contains(nested) {
			return Resolved{TypeFQN: nested, IsType: true}, true
		}
	}
	// Widget.class
	if state.IsType && step.Kind == StepField && step.Name == "class" {
		return Resolved{TypeFQN: "java.lang.Class"}, true
	}

	r, ok := e.memberOn(ctx, state, step, state.IsType)
	if !ok {
		e.reportUnresolved(step, fmt.Sprintf("cannot resolve %q on %s", step.Name, state.TypeFQN))
	}
	return r, ok
}

// memberOn selects a field or method named step.Name on the receiver type.
// staticOnly restricts the candidate set to static members (receiver is a
// type, not a value).
func (e *Engine) memberOn(ctx context.Context, receiver Resolved, step Step, staticOnly bool) (Resolved, bool) {
	members := e.Universe.MembersOf(ctx, receiver.TypeFQN)
	if e.isStale(ctx) {
		return Resolved{Cancelled: true, Unknown: true}, false
	}

	switch step.Kind {
	case StepField, StepIdent:
		for i := range members {
			m := &members[i]
			if m.Kind != symbol.KindField || m.Name != step.Name {
				continue
			}
			if staticOnly && !m.Mods.IsStatic() {
				continue
			}
			return e.resultOf(receiver, m), true
		}
		return receiver, false

	case StepCall:
		candidates := make([]*symbol.Member, 0, 2)
		for i := range members {
			m := &members[i]
			if m.Kind != symbol.KindMethod || m.Name != step.Name {
				continue
			}
			if staticOnly && !m.Mods.IsStatic() {
				continue
			}
			candidates = append(candidates, m)
		}
		best, tie := e.pickOverload(ctx, candidates, step.Args)
		if best == nil {
			return receiver, false
		}
		if tie != nil {
			e.reportAmbiguity(step, &imports.AmbiguousError{
				Name:       step.Name,
				Candidates: []string{best.Owner + "." + best.Descriptor(), tie.Owner + "." + tie.Descriptor()},
			})
		}
		return e.resultOf(receiver, best), true
	}
	return receiver, false
}

// resultOf computes the state after selecting member m on the receiver,
// applying generic substitution when the receiver's type arguments are known.
func (e *Engine) resultOf(receiver Resolved, m *symbol.Member) Resolved {
	ret := m.Type
	if sub, ok := receiver.TypeArgs[ret]; ok {
		ret = sub
	} else if e.isTypeVarOf(receiver.TypeFQN, ret) {
		ret = "java.lang.Object" // raw receiver: erased
	} else {
		base := symbol.Erase(ret)
		// Substitute type vars appearing as type arguments: List<E> -> List.
		fqn, args, ok := e.normalizeType(base)
		if ok {
			ret = fqn
			if rawArgs := symbol.TypeArgs(m.Type); len(rawArgs) > 0 {
				resolved := make(map[string]string)
				if cls, found := e.Universe.LookupCachedOnly(fqn); found {
					for i, tp := range cls.TypeParams {
						if i >= len(rawArgs) {
							break
						}
						arg := rawArgs[i]
						if sub, has := receiver.TypeArgs[arg]; has {
							resolved[tp] = sub
						} else if argFQN, _, okArg := e.normalizeType(arg); okArg && !e.isTypeVarOf(receiver.TypeFQN, arg) {
							resolved[tp] = argFQN
						}
					}
				}
				return Resolved{TypeFQN: ret, TypeArgs: resolved, Member: m}
			}
			_ = args
		}
	}
	return Resolved{TypeFQN: ret, Member: m}
}

func (e *Engine) isTypeVarOf(typeFQN, name string) bool {
	cls, ok := e.Universe.LookupCachedOnly(typeFQN)
	if !ok {
		return false
	}
	for _, tp := range cls.TypeParams {
		if tp == name {
			return true
		}
	}
	return false
}

// normalizeType converts declared type text into an index key plus a generic
// substitution map: "List<String>" -> ("java.util.List", {E: java.lang.String}).
// Primitives and arrays pass through.
func (e *Engine) normalizeType(text string) (string, map[string]string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text == "var" {
		return "", nil, false
	}
	if strings.HasSuffix(text, "[]") {
		elemFQN, _, ok := e.normalizeType(strings.TrimSuffix(text, "[]"))
		if !ok {
			return "", nil, false
		}
		return elemFQN + "[]", nil, true
	}
	base := symbol.Erase(text)
	if symbol.IsPrimitive(base) {
		return base, nil, true
	}

	fqn := base
	if !strings.Contains(base, ".") {
		resolved, err := e.Imports.Resolve(base, e.Universe, e.Enclosing)
		if err != nil {
			return "", nil, false
		}
		if resolved == "" {
			// Last resort: a unique simple-name match anywhere in the index.
			candidates := e.Universe.CandidatesFor(base)
			if len(candidates) != 1 {
				return "", nil, false
			}
			resolved = candidates[0]
		}
		fqn = resolved
	} else if !e.Universe.Contains(fqn) {
		return "", nil, false
	}

	args := symbol.TypeArgs(text)
	if len(args) == 0 {
		return fqn, nil, true
	}
	cls, ok := e.Universe.LookupCachedOnly(fqn)
	if !ok || len(cls.TypeParams) == 0 {
		return fqn, nil, true
	}
	sub := make(map[string]string, len(args))
	for i, tp := range cls.TypeParams {
		if i >= len(args) {
			break
		}
		if argFQN, _, okArg := e.normalizeType(args[i]); okArg {
			sub[tp] = argFQN
		}
	}
	return fqn, sub, true
}

func (e *Engine) reportUnresolved(step Step, msg string) {
	e.diags = append(e.diags, position.Diagnostic{
		Range:    stepRange(e.Source, step),
		Severity: position.SeverityWarning,
		Message:  msg,
	})
}

func (e *Engine) reportAmbiguity(step Step, err error) {
	e.diags = append(e.diags, position.Diagnostic{
		Range:    stepRange(e.Source, step),
		Severity: position.SeverityWarning,
		Message:  err.Error(),
	})
}

func stepRange(source []byte, step Step) position.Range {
	if step.Node == nil {
		return position.Range{}
	}
	return position.NodeRange(source, step.Node)
}

func startByte(step Step) uint {
	if step.Node == nil {
		return 0
	}
	return step.Node.StartByte()
}
