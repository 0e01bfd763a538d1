package execution

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

const (
	// maxItems is how many elements of one collection are shown.
	maxItems = 100
	// maxDepth bounds how far nested values are expanded.
	maxDepth = 16
	// formatBudget caps the bytes a single run may render.
	formatBudget = 1 << 20
)

const elided = "..."

var errFormatStopped = errors.New("formatting stopped")

// formatter renders JavaScript values the way the output pane shows them.
// It stops expanding once the run's context is done or its byte budget is
// spent, so a huge value cannot outlive the run's deadline.
type formatter struct {
	ctx   context.Context
	vm    *goja.Runtime
	seen  map[*goja.Object]bool
	depth int
	size  int
	// interrupted is set once the context cut the rendering short.
	interrupted bool
}

func newFormatter(ctx context.Context, vm *goja.Runtime) *formatter {
	return &formatter{ctx: ctx, vm: vm, seen: make(map[*goja.Object]bool)}
}

func (f *formatter) stopped() bool {
	if f.ctx.Err() != nil {
		f.interrupted = true
		return true
	}
	return f.size > formatBudget
}

func (f *formatter) emit(s string) string {
	f.size += len(s)
	return s
}

// protect runs fn inside the VM so that exceptions thrown by getters or
// toString overrides come back as an error instead of a panic.
func (f *formatter) protect(fn func() string) (out string, err error) {
	call, _ := goja.AssertFunction(f.vm.ToValue(func(goja.FunctionCall) goja.Value {
		out = fn()
		return goja.Undefined()
	}))
	_, err = call(goja.Undefined())
	return out, err
}

// value formats v recursively. Strings are quoted at every level.
func (f *formatter) value(v goja.Value) string {
	if f.stopped() {
		return elided
	}
	switch {
	case v == nil || goja.IsUndefined(v):
		return f.emit("undefined")
	case goja.IsNull(v):
		return f.emit("null")
	case isString(v):
		return f.emit(`"` + v.String() + `"`)
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return f.emit(v.String())
	}
	if f.seen[obj] {
		return f.emit("[Circular]")
	}
	if f.depth >= maxDepth {
		return f.emit("[" + obj.ClassName() + "]")
	}
	f.seen[obj] = true
	f.depth++
	defer func() {
		delete(f.seen, obj)
		f.depth--
	}()

	switch obj.ClassName() {
	case "Map":
		parts := f.each(obj, func(val, key goja.Value) string {
			return f.value(key) + "=>" + f.value(val)
		})
		return braced("", parts)
	case "Set":
		parts := f.each(obj, func(val, _ goja.Value) string {
			return f.value(val)
		})
		return braced("Set ", parts)
	case "Array":
		n := obj.Get("length").ToInteger()
		shown := min(n, maxItems)
		parts := make([]string, 0, shown+1)
		for i := int64(0); i < shown && !f.stopped(); i++ {
			parts = append(parts, f.value(obj.Get(strconv.FormatInt(i, 10))))
		}
		if rest := n - int64(len(parts)); rest > 0 {
			parts = append(parts, more(rest))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case "Object":
		keys := obj.Keys()
		shown := min(len(keys), maxItems)
		parts := make([]string, 0, shown+1)
		for _, k := range keys[:shown] {
			if f.stopped() {
				break
			}
			parts = append(parts, f.emit(k)+": "+f.value(obj.Get(k)))
		}
		if rest := len(keys) - len(parts); rest > 0 {
			parts = append(parts, more(int64(rest)))
		}
		return braced("", parts)
	default:
		return f.emit(obj.String())
	}
}

// each walks a Map or Set through its own forEach, rendering at most
// maxItems entries.
func (f *formatter) each(obj *goja.Object, render func(val, key goja.Value) string) []string {
	forEach, ok := goja.AssertFunction(obj.Get("forEach"))
	if !ok {
		return nil
	}
	var parts []string
	total := int64(0)
	if sz := obj.Get("size"); sz != nil {
		total = sz.ToInteger()
	}
	cb := f.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if len(parts) >= maxItems || f.stopped() {
			// Ends the forEach early.
			panic(f.vm.NewGoError(errFormatStopped))
		}
		parts = append(parts, render(call.Argument(0), call.Argument(1)))
		return goja.Undefined()
	})
	_, _ = forEach(obj, cb)
	if rest := total - int64(len(parts)); rest > 0 {
		parts = append(parts, more(rest))
	}
	return parts
}

func more(n int64) string {
	if n == 1 {
		return "... 1 more item"
	}
	return "... " + strconv.FormatInt(n, 10) + " more items"
}

func braced(prefix string, parts []string) string {
	if len(parts) == 0 {
		return prefix + "{}"
	}
	return prefix + "{ " + strings.Join(parts, ", ") + " }"
}

func isString(v goja.Value) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(*goja.Object); ok {
		return false
	}
	t := v.ExportType()
	return t != nil && t.Kind() == reflect.String
}
