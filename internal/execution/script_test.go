package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScript(t *testing.T, source string) Result {
	t.Helper()
	res, err := NewScriptRuntime().Run(context.Background(), source)
	require.NoError(t, err)
	return res
}

func TestScriptFinalExpression(t *testing.T) {
	res := runScript(t, "1+1")
	assert.False(t, res.Failed)
	assert.Equal(t, "2", res.Output)
}

func TestScriptOutput(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "log lines", source: `console.log("x"); console.log("y")`, want: "\"x\"\n\"y\""},
		{name: "log then value", source: `console.log(1); 40 + 2`, want: "1\n42"},
		{name: "multiple args", source: `console.log("total", 3, true)`, want: `"total" 3 true`},
		{name: "info and debug", source: `console.info(1); console.debug(2)`, want: "1\n2"},
		{name: "warn and error tagged", source: `console.warn("careful"); console.error(404)`, want: "WARN: \"careful\"\nERROR: 404"},
		{name: "final string quoted", source: `"abc"`, want: `"abc"`},
		{name: "string quoted unescaped", source: `'say "hi"'`, want: `"say "hi""`},
		{name: "undefined final value", source: `let x = 5;`, want: ""},
		{name: "null final value", source: `console.log(1); null`, want: "1\nnull"},
		{name: "array", source: `[1, "b", [2, 3]]`, want: `[1, "b", [2, 3]]`},
		{name: "record", source: `({a: 1, b: "x"})`, want: `{ a: 1, b: "x" }`},
		{name: "empty record", source: `({})`, want: `{}`},
		{name: "map", source: `new Map([["a", 1], ["b", [2]]])`, want: `{ "a"=>1, "b"=>[2] }`},
		{name: "empty map", source: `new Map()`, want: `{}`},
		{name: "set", source: `new Set([1, "two"])`, want: `Set { 1, "two" }`},
		{name: "nested in log", source: `console.log({list: [1, 2]})`, want: `{ list: [1, 2] }`},
		{name: "circular", source: `const a = {}; a.self = a; a`, want: `{ self: [Circular] }`},
		{name: "default representation", source: `[undefined, null, 1.5, false]`, want: `[undefined, null, 1.5, false]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runScript(t, tt.source)
			assert.False(t, res.Failed)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestScriptThrowReplacesOutput(t *testing.T) {
	res := runScript(t, `console.log("before"); undefined.foo`)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Output, "TypeError")
	assert.NotContains(t, res.Output, "before")
}

func TestScriptThrowValue(t *testing.T) {
	res := runScript(t, `throw new Error("boom")`)
	assert.True(t, res.Failed)
	assert.Equal(t, "Error: boom", res.Output)

	res = runScript(t, `throw "plain"`)
	assert.True(t, res.Failed)
	assert.Equal(t, "plain", res.Output)
}

func TestScriptSyntaxError(t *testing.T) {
	res := runScript(t, `function (`)
	assert.True(t, res.Failed)
	assert.NotEmpty(t, res.Output)
}

func TestScriptRunsAreIsolated(t *testing.T) {
	rt := NewScriptRuntime()
	ctx := context.Background()

	_, err := rt.Run(ctx, `globalThis.leak = 1; console.log = null`)
	require.NoError(t, err)

	res, err := rt.Run(ctx, `typeof leak`)
	require.NoError(t, err)
	assert.Equal(t, `"undefined"`, res.Output)
}

func TestScriptHasNoHostBindings(t *testing.T) {
	res := runScript(t, `[typeof require, typeof process, typeof window, typeof fetch]`)
	assert.Equal(t, `["undefined", "undefined", "undefined", "undefined"]`, res.Output)
}

func TestScriptCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScriptRuntime().Run(ctx, `while (true) {}`)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptThrowingAccessorsAreOutput(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "getter in final value", source: `({get a() { throw new Error("boom") }})`, want: "Error: boom"},
		{name: "toString override", source: `let d = new Date(0); d.toString = () => { throw 1 }; d`, want: "1"},
		{name: "getter in log", source: `console.log({get a() { throw new RangeError("nope") }})`, want: "RangeError: nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runScript(t, tt.source)
			assert.True(t, res.Failed)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestScriptUnprintableError(t *testing.T) {
	res := runScript(t, `throw new (class extends Error { get message() { throw 1 } })()`)
	assert.True(t, res.Failed)
	assert.Equal(t, "Uncaught exception", res.Output)
}

func TestScriptLargeCollectionsAreElided(t *testing.T) {
	res := runScript(t, `const a = []; a.length = 1e9; a`)
	assert.False(t, res.Failed)
	assert.True(t, strings.HasSuffix(res.Output, ", ... 999999900 more items]"), res.Output)
	assert.True(t, strings.HasPrefix(res.Output, "[undefined, undefined"))

	res = runScript(t, `new Set(Array.from({length: 150}, (_, i) => i))`)
	assert.True(t, strings.HasSuffix(res.Output, ", 99, ... 50 more items }"), res.Output)

	res = runScript(t, `const o = {}; for (let i = 0; i < 101; i++) o["k" + i] = i; o`)
	assert.True(t, strings.HasSuffix(res.Output, "k99: 99, ... 1 more item }"), res.Output)
}

func TestScriptDeepNestingIsBounded(t *testing.T) {
	res := runScript(t, `let v = []; for (let i = 0; i < 1000; i++) v = [v]; v`)
	assert.False(t, res.Failed)
	assert.Contains(t, res.Output, "[Array]")
}

func TestScriptFormattingStopsAtDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewScriptRuntime().Run(ctx, `
		const big = [];
		for (let i = 0; i < 100; i++) big.push({get slow() { const t = Date.now(); while (Date.now() - t < 50) {} return i }});
		big`)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
