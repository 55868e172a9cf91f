// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SimpleAssignAndCall(t *testing.T) {
	mod, err := Parse("b = a\nsink(b)\n")
	require.NoError(t, err)
	require.Len(t, mod.Body, 2)

	assign, ok := mod.Body[0].(Assign)
	require.True(t, ok)
	require.Len(t, assign.Targets, 1)
	assert.Equal(t, "b", assign.Targets[0].(Name).Id)
	assert.Equal(t, "a", assign.Value.(Name).Id)

	exprStmt, ok := mod.Body[1].(ExprStmt)
	require.True(t, ok)
	call, ok := exprStmt.Value.(Call)
	require.True(t, ok)
	assert.Equal(t, "sink", call.Func.(Name).Id)
}

func TestParse_ChainedAssignmentBindsAllTargets(t *testing.T) {
	mod, err := Parse("a = b = value\n")
	require.NoError(t, err)
	require.Len(t, mod.Body, 1)

	assign := mod.Body[0].(Assign)
	require.Len(t, assign.Targets, 2)
	assert.Equal(t, "a", assign.Targets[0].(Name).Id)
	assert.Equal(t, "b", assign.Targets[1].(Name).Id)
	assert.Equal(t, "value", assign.Value.(Name).Id)
}

func TestParse_IfElifElse(t *testing.T) {
	src := "if a:\n    x = 1\nelif b:\n    x = 2\nelse:\n    x = 3\n"
	mod, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, mod.Body, 1)

	top := mod.Body[0].(If)
	assert.Equal(t, "a", top.Test.(Name).Id)
	require.Len(t, top.Orelse, 1)

	elif := top.Orelse[0].(If)
	assert.Equal(t, "b", elif.Test.(Name).Id)
	require.Len(t, elif.Orelse, 1)
}

func TestParse_AugAssign(t *testing.T) {
	mod, err := Parse("x += 1\n")
	require.NoError(t, err)

	aug := mod.Body[0].(AugAssign)
	assert.Equal(t, OpAdd, aug.Op)
	assert.Equal(t, "x", aug.Target.(Name).Id)
}

func TestParse_AttributeAndDottedCall(t *testing.T) {
	mod, err := Parse("os.system(cmd)\n")
	require.NoError(t, err)

	exprStmt := mod.Body[0].(ExprStmt)
	call := exprStmt.Value.(Call)
	attr := call.Func.(Attribute)
	assert.Equal(t, "system", attr.Attr)
	assert.Equal(t, "os", attr.Value.(Name).Id)
}

func TestParse_WhileAndFor(t *testing.T) {
	mod, err := Parse("while a:\n    pass\nfor x in y:\n    pass\n")
	require.NoError(t, err)
	require.Len(t, mod.Body, 2)

	_, isWhile := mod.Body[0].(While)
	assert.True(t, isWhile)

	forStmt := mod.Body[1].(For)
	assert.Equal(t, "x", forStmt.Target.(Name).Id)
	assert.Equal(t, "y", forStmt.Iter.(Name).Id)
}

func TestParse_BooleanAndComparisonPrecedence(t *testing.T) {
	mod, err := Parse("if a == 1 and b != 2 or not c:\n    pass\n")
	require.NoError(t, err)

	top := mod.Body[0].(If)
	boolOp := top.Test.(BoolOp)
	assert.Equal(t, BoolOr, boolOp.Op)
	require.Len(t, boolOp.Values, 2)
}

func TestParse_InconsistentIndentationErrors(t *testing.T) {
	_, err := Parse("if a:\n    x = 1\n  y = 2\n")
	assert.Error(t, err)
}
