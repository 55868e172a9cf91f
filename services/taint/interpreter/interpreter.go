// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package interpreter is the abstract interpreter: a recursive AST walker
// that threads a labelling.MultiLabelling through statements, evaluates
// expressions to a label.MultiLabel, and records sink violations into a
// vulnerability.Vulnerability. One Interpreter analyzes exactly one module.
package interpreter

import (
	"fmt"

	"github.com/aleutian-labs/flowguard/pkg/logging"
	"github.com/aleutian-labs/flowguard/services/taint/element"
	"github.com/aleutian-labs/flowguard/services/taint/label"
	"github.com/aleutian-labs/flowguard/services/taint/labelling"
	"github.com/aleutian-labs/flowguard/services/taint/policy"
	"github.com/aleutian-labs/flowguard/services/taint/script"
	"github.com/aleutian-labs/flowguard/services/taint/vulnerability"
)

// Interpreter holds the mutable state of one analysis run: the context
// stack (implicit-flow labels contributed by enclosing conditionals and
// loops) and the vulnerability collector. Both are owned exclusively by the
// instance; there is no re-entrancy and no state shared across runs.
type Interpreter struct {
	policy   policy.Policy
	vulns    *vulnerability.Vulnerability
	contexts []label.MultiLabel
	log      *logging.Logger
}

// New builds an interpreter for the given policy, with the context stack
// seeded with a single empty multilabel so currentContext never needs an
// empty-stack special case. Per-node debug logging is disabled; use
// NewWithLogger to enable it.
func New(p policy.Policy) *Interpreter {
	return NewWithLogger(p, nil)
}

// NewWithLogger builds an interpreter that emits debug-level log lines for
// source/sanitizer tagging, sink checks, and loop fixed-point iterations —
// the same per-node visibility the original implementation's logging.debug
// calls gave (see SPEC_FULL.md §5). log may be nil, in which case
// NewWithLogger behaves exactly like New.
func NewWithLogger(p policy.Policy, log *logging.Logger) *Interpreter {
	return &Interpreter{
		policy:   p,
		vulns:    vulnerability.New(),
		contexts: []label.MultiLabel{label.NewMultiLabel()},
		log:      log,
	}
}

func (in *Interpreter) debug(msg string, args ...any) {
	if in.log != nil {
		in.log.Debug(msg, args...)
	}
}

// Run interprets the module's top-level statements under an empty initial
// labelling and returns the accumulated report.
func (in *Interpreter) Run(mod script.Module) (*vulnerability.Vulnerability, error) {
	if _, err := in.visitStmts(mod.Body, labelling.New()); err != nil {
		return nil, err
	}
	return in.vulns, nil
}

func (in *Interpreter) currentContext() label.MultiLabel {
	return in.contexts[len(in.contexts)-1].Clone()
}

func (in *Interpreter) pushContext(ml label.MultiLabel) {
	in.contexts = append(in.contexts, ml)
}

func (in *Interpreter) popContext() {
	assertf(len(in.contexts) > 1, "popContext called with an empty context stack")
	in.contexts = in.contexts[:len(in.contexts)-1]
}

// visitStmts threads ml through each statement in order, returning the
// labelling that results after the last one.
func (in *Interpreter) visitStmts(stmts []script.Stmt, ml labelling.MultiLabelling) (labelling.MultiLabelling, error) {
	cur := ml
	for _, s := range stmts {
		next, err := in.visitStmt(s, cur)
		if err != nil {
			return labelling.MultiLabelling{}, err
		}
		cur = next
	}
	return cur, nil
}

func (in *Interpreter) visitStmt(s script.Stmt, ml labelling.MultiLabelling) (labelling.MultiLabelling, error) {
	switch node := s.(type) {
	case script.Module:
		return in.visitStmts(node.Body, ml)
	case script.Assign:
		return in.visitAssign(node, ml)
	case script.AugAssign:
		return in.visitAugAssign(node, ml)
	case script.If:
		return in.visitIf(node, ml)
	case script.While:
		return in.visitWhile(node, ml)
	case script.For:
		return in.visitFor(node, ml)
	case script.Pass:
		return ml, nil
	case script.ExprStmt:
		if _, err := in.visitExpr(node.Value, ml); err != nil {
			return labelling.MultiLabelling{}, err
		}
		return ml, nil
	default:
		return labelling.MultiLabelling{}, newUnsupported(fmt.Sprintf("%T", s), 0)
	}
}

// visitExpr evaluates e under ml, returning the multilabel of the value it
// computes. Per spec.md §4.6's expression table.
func (in *Interpreter) visitExpr(e script.Expr, ml labelling.MultiLabelling) (label.MultiLabel, error) {
	switch node := e.(type) {
	case script.Constant:
		return in.currentContext(), nil
	case script.Name:
		return in.visitName(node, ml), nil
	case script.BinOp:
		return in.visitBinOp(node, ml)
	case script.UnaryOp:
		return in.visitExpr(node.Operand, ml)
	case script.BoolOp:
		return in.visitBoolOp(node, ml)
	case script.Compare:
		return in.visitCompare(node, ml)
	case script.Attribute:
		return in.visitAttribute(node, ml)
	case script.Call:
		return in.visitCall(node, ml)
	default:
		return label.MultiLabel{}, newUnsupported(fmt.Sprintf("%T", e), 0)
	}
}

// visitName implements the `name x` row of spec.md §4.6's expression table:
// a bound variable's stored multilabel, with uninitialized-sentinel lines
// patched to the use site, unioned with "source for every pattern where x
// is declared a source" and the current context; an unbound variable is the
// uninitialized-sentinel multilabel unioned with the current context.
func (in *Interpreter) visitName(n script.Name, ml labelling.MultiLabelling) label.MultiLabel {
	bound, ok := ml.Of(n.Id)
	if !ok {
		uninit := patchUninitLines(in.policy.UninitializedMultiLabel(n.Id), n.Line)
		return uninit.Combine(in.currentContext())
	}

	patched := patchUninitLines(bound, n.Line)

	asSource := label.NewMultiLabel()
	for _, patName := range in.policy.SearchSource(n.Id) {
		l := asSource.GetLabel(patName)
		l.AddSource(element.NewSource(n.Id, n.Line))
		asSource.SetLabel(l)
	}

	return patched.Combine(asSource).Combine(in.currentContext())
}

// patchUninitLines returns a clone of ml with every value whose head line is
// element.UninitializedLine rewritten to useLine — the "rewritten to the
// use-site's line on first evaluation" rule of spec.md §4.5, applied
// uniformly whether ml came from a bound variable's stored multilabel or
// was just constructed fresh for an unbound one.
func patchUninitLines(ml label.MultiLabel, useLine int) label.MultiLabel {
	out := ml.Clone()
	for name, lbl := range out.Labels {
		lbl.PatchUninitializedLines(useLine)
		out.Labels[name] = lbl
	}
	return out
}

func (in *Interpreter) visitBinOp(b script.BinOp, ml labelling.MultiLabelling) (label.MultiLabel, error) {
	left, err := in.visitExpr(b.Left, ml)
	if err != nil {
		return label.MultiLabel{}, err
	}
	right, err := in.visitExpr(b.Right, ml)
	if err != nil {
		return label.MultiLabel{}, err
	}
	return left.Combine(right), nil
}

func (in *Interpreter) visitBoolOp(b script.BoolOp, ml labelling.MultiLabelling) (label.MultiLabel, error) {
	agg := label.NewMultiLabel()
	for i, v := range b.Values {
		vml, err := in.visitExpr(v, ml)
		if err != nil {
			return label.MultiLabel{}, err
		}
		if i == 0 {
			agg = vml
		} else {
			agg = agg.Combine(vml)
		}
	}
	return agg, nil
}

func (in *Interpreter) visitCompare(c script.Compare, ml labelling.MultiLabelling) (label.MultiLabel, error) {
	agg, err := in.visitExpr(c.Left, ml)
	if err != nil {
		return label.MultiLabel{}, err
	}
	for _, cmp := range c.Comparators {
		cml, err := in.visitExpr(cmp, ml)
		if err != nil {
			return label.MultiLabel{}, err
		}
		agg = agg.Combine(cml)
	}
	return agg, nil
}

// visitAttribute handles `e.a` as the join of e's value and the value of a
// synthesized name "a" — chains flatten uniformly because visitName doesn't
// care whether its Name came from source text or was synthesized here.
func (in *Interpreter) visitAttribute(a script.Attribute, ml labelling.MultiLabelling) (label.MultiLabel, error) {
	valueMl, err := in.visitExpr(a.Value, ml)
	if err != nil {
		return label.MultiLabel{}, err
	}
	attrMl := in.visitName(script.Name{Id: a.Attr, Line: a.Line}, ml)
	return valueMl.Combine(attrMl), nil
}

// visitCall implements spec.md §4.6's call semantics, including the
// dotted-callee rewrite: `c1.c2...cn(args...)` becomes the binary join of
// c1, c2, ..., and a call to cn with the same arguments.
func (in *Interpreter) visitCall(c script.Call, ml labelling.MultiLabelling) (label.MultiLabel, error) {
	names, err := flattenDotted(c.Func)
	if err != nil {
		return label.MultiLabel{}, err
	}

	if len(names) > 1 {
		mlb := in.currentContext()
		for _, n := range names[:len(names)-1] {
			mlb = mlb.Combine(in.visitName(script.Name{Id: n, Line: c.Line}, ml))
		}
		inner, err := in.evalCallFor(names[len(names)-1], c.Args, c.Line, ml)
		if err != nil {
			return label.MultiLabel{}, err
		}
		return mlb.Combine(inner), nil
	}

	return in.evalCallFor(names[0], c.Args, c.Line, ml)
}

// evalCallFor runs the six-step call rule for a single (non-dotted) callee
// name: join in the arguments, tag sources before applying sanitizers (the
// order matters — a function that is both taints, then immediately
// sanitizes, its own introduced taint), then check the name as a sink.
func (in *Interpreter) evalCallFor(name string, args []script.Expr, line int, ml labelling.MultiLabelling) (label.MultiLabel, error) {
	mlb := in.currentContext()
	for _, a := range args {
		amlb, err := in.visitExpr(a, ml)
		if err != nil {
			return label.MultiLabel{}, err
		}
		mlb = mlb.Combine(amlb)
	}

	for _, patName := range in.policy.SearchSource(name) {
		l := mlb.GetLabel(patName)
		l.AddSource(element.NewSource(name, line))
		mlb.SetLabel(l)
		in.debug("tagged call as source", "name", name, "line", line, "pattern", patName)
	}

	for _, patName := range in.policy.SearchSanitizer(name) {
		l := mlb.GetLabel(patName)
		l.AddSanitizer(element.New(name, line))
		mlb.SetLabel(l)
		in.debug("tagged call as sanitizer", "name", name, "line", line, "pattern", patName)
	}

	illegal := in.policy.FindIllegal(name, mlb)
	if len(illegal.Labels) > 0 {
		in.debug("sink check flagged call", "name", name, "line", line, "pattern_count", len(illegal.Labels))
	}
	in.vulns.Save(element.New(name, line), illegal)

	return mlb, nil
}

// flattenDotted turns a Name or Attribute chain into its dotted component
// names, outermost-receiver-first (flattenDotted(a.b.c) == ["a", "b", "c"]).
func flattenDotted(e script.Expr) ([]string, error) {
	switch v := e.(type) {
	case script.Name:
		return []string{v.Id}, nil
	case script.Attribute:
		base, err := flattenDotted(v.Value)
		if err != nil {
			return nil, err
		}
		return append(base, v.Attr), nil
	default:
		return nil, newUnsupported(fmt.Sprintf("%T", e), 0)
	}
}

// visitAssign implements spec.md §4.6's assignment rule: the rightmost
// component of each flattened target is the real l-value; prefix
// components are references whose (possibly pseudo-initialized) multilabel
// joins into the assigned value before every component is checked as a
// sink.
func (in *Interpreter) visitAssign(a script.Assign, ml labelling.MultiLabelling) (labelling.MultiLabelling, error) {
	vmlb, err := in.visitExpr(a.Value, ml)
	if err != nil {
		return labelling.MultiLabelling{}, err
	}

	next := ml.Clone()
	for _, target := range a.Targets {
		names, err := flattenDotted(target)
		if err != nil {
			return labelling.MultiLabelling{}, err
		}

		finalMlb := vmlb
		for _, prefix := range names[:len(names)-1] {
			prefixMlb, ok := next.Of(prefix)
			if !ok {
				prefixMlb = in.policy.UninitializedMultiLabel(prefix)
				next.Set(prefix, prefixMlb)
			}
			finalMlb = finalMlb.Combine(prefixMlb)
		}

		for _, name := range names {
			illegal := in.policy.FindIllegal(name, finalMlb)
			if len(illegal.Labels) > 0 {
				in.debug("sink check flagged assignment target", "name", name, "line", a.Line, "pattern_count", len(illegal.Labels))
			}
			in.vulns.Save(element.New(name, a.Line), illegal)
		}

		next.Set(names[len(names)-1], finalMlb)
	}

	return next, nil
}

// visitAugAssign rewrites `x op= e` to `x = e op x` and re-enters the
// assignment rule, per spec.md §4.6.
func (in *Interpreter) visitAugAssign(a script.AugAssign, ml labelling.MultiLabelling) (labelling.MultiLabelling, error) {
	rewritten := script.Assign{
		Targets: []script.Expr{a.Target},
		Value:   script.BinOp{Left: a.Value, Op: a.Op, Right: a.Target, Line: a.Line},
		Line:    a.Line,
	}
	return in.visitAssign(rewritten, ml)
}

// visitIf implements spec.md §4.6's if rule: the test's multilabel, filtered
// to implicit-tracking patterns, becomes the context for both branches; on
// rejoin, variables bound on only one side are filled with the
// uninitialized-sentinel multilabel before the pointwise join.
func (in *Interpreter) visitIf(s script.If, ml labelling.MultiLabelling) (labelling.MultiLabelling, error) {
	condMl, err := in.visitExpr(s.Test, ml)
	if err != nil {
		return labelling.MultiLabelling{}, err
	}

	in.pushContext(condMl.FilterImplicit(in.policy))
	defer in.popContext()

	taken, err := in.visitStmts(s.Body, ml.Clone())
	if err != nil {
		return labelling.MultiLabelling{}, err
	}

	notTaken := ml.Clone()
	if s.Orelse != nil {
		notTaken, err = in.visitStmts(s.Orelse, ml.Clone())
		if err != nil {
			return labelling.MultiLabelling{}, err
		}
	}

	taken.FillMissing(notTaken, in.policy.UninitializedMultiLabel)
	notTaken.FillMissing(taken, in.policy.UninitializedMultiLabel)

	return taken.Combine(notTaken), nil
}

// visitWhile implements spec.md §4.6's while rule: iterate the loop body to
// a labelling fixed point (guaranteed by the finite taint lattice), then
// leave the join of every test multilabel observed, filtered to
// implicit-tracking patterns, as the post-loop context — any variable
// observed in the condition may have determined whether the loop
// terminated, and so taints everything downstream of it.
func (in *Interpreter) visitWhile(s script.While, ml labelling.MultiLabelling) (labelling.MultiLabelling, error) {
	cur := ml.Clone()
	var old labelling.MultiLabelling
	first := true
	aggregate := label.NewMultiLabel()
	pushed := 0
	iterations := 0

	popAll := func() {
		for ; pushed > 0; pushed-- {
			in.popContext()
		}
	}

	for first || !old.Equal(cur) {
		first = false
		old = cur.Clone()
		iterations++

		condMl, err := in.visitExpr(s.Test, cur)
		if err != nil {
			popAll()
			return labelling.MultiLabelling{}, err
		}
		in.pushContext(condMl.FilterImplicit(in.policy))
		pushed++
		aggregate = aggregate.Combine(condMl)

		taken, err := in.visitStmts(s.Body, cur.Clone())
		if err != nil {
			popAll()
			return labelling.MultiLabelling{}, err
		}
		notTaken := cur.Clone()

		taken.FillMissing(notTaken, in.policy.UninitializedMultiLabel)
		notTaken.FillMissing(taken, in.policy.UninitializedMultiLabel)

		cur = taken.Combine(notTaken)
	}

	popAll()
	in.debug("loop reached labelling fixed point", "iterations", iterations)
	in.pushContext(aggregate.FilterImplicit(in.policy))

	return cur, nil
}

// visitFor rewrites `for target in iter: body` to
// `while (not iter): target = iter; body` and re-enters the while rule, per
// spec.md §4.6 — this avoids modeling an iterator protocol while preserving
// target's information-flow dependency on iter.
func (in *Interpreter) visitFor(s script.For, ml labelling.MultiLabelling) (labelling.MultiLabelling, error) {
	line := exprLine(s.Target)
	body := make([]script.Stmt, 0, len(s.Body)+1)
	body = append(body, script.Assign{Targets: []script.Expr{s.Target}, Value: s.Iter, Line: line})
	body = append(body, s.Body...)

	rewritten := script.While{
		Test: script.UnaryOp{Op: script.UnaryNot, Operand: s.Iter},
		Body: body,
	}
	return in.visitWhile(rewritten, ml)
}

// exprLine best-effort extracts a line number from an expression node, for
// synthesized nodes (like visitFor's rewrite) that have no line of their
// own.
func exprLine(e script.Expr) int {
	switch v := e.(type) {
	case script.Name:
		return v.Line
	case script.Constant:
		return v.Line
	case script.Call:
		return v.Line
	case script.BinOp:
		return v.Line
	case script.Attribute:
		return v.Line
	default:
		return 0
	}
}
