// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseLiteralAccepts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  any
	}{
		{"42", float64(42)},
		{"-3.5", float64(-3.5)},
		{"1e3", float64(1000)},
		{"2.5e-2", float64(0.025)},
		{`"hello"`, "hello"},
		{`'world'`, "world"},
		{`'it\'s'`, "it's"},
		{"True", true},
		{"false", false},
		{"[]", []any{}},
		{"[1, 2, 3]", []any{float64(1), float64(2), float64(3)}},
		{"[1, 2, 3,]", []any{float64(1), float64(2), float64(3)}},
		{"['a', [1, 2]]", []any{"a", []any{float64(1), float64(2)}}},
		{"{}", map[string]any{}},
		{`{'lives': 3, 'boss': True}`, map[string]any{"lives": float64(3), "boss": true}},
		{`{"nested": {"deep": [1]}}`, map[string]any{"nested": map[string]any{"deep": []any{float64(1)}}}},
		{" [ 1 , 2 ] ", []any{float64(1), float64(2)}},
	}
	for _, c := range cases {
		got, err := ParseLiteral(c.input)
		if err != nil {
			t.Errorf("ParseLiteral(%q): %v", c.input, err)
			continue
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseLiteral(%q): got %#v, want %#v", c.input, got, c.want)
		}
	}
}

func TestParseLiteralRejects(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"__import__('os')",
		"1 + 1",
		"lambda: 0",
		"[1, 2",
		"{'a': }",
		"{1: 2}",
		"'unterminated",
		"[1] trailing",
		"None",
		"0x10",
	}
	for _, input := range cases {
		if got, err := ParseLiteral(input); err == nil {
			t.Errorf("ParseLiteral(%q): got %#v, want error", input, got)
		}
	}
}

func TestParseLiteralDepthBound(t *testing.T) {
	t.Parallel()

	deep := strings.Repeat("[", 100) + strings.Repeat("]", 100)
	if _, err := ParseLiteral(deep); err == nil {
		t.Error("pathologically nested payload accepted")
	}
}
