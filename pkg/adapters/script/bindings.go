package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/pageflow/internal/chain"
	"github.com/aretw0/pageflow/internal/runtime"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/dop251/goja"
)

// listener runs a script function for a stage.
type listener struct {
	host    *Host
	binding *binding
	fn      goja.Callable
}

func (l *listener) Handle(ctx context.Context, st *runtime.State) error {
	_, release := l.host.enter(ctx)
	defer release()
	if !l.host.attached(l.binding) {
		l.host.drop(l.binding)
		return nil
	}
	_, err := l.fn(goja.Undefined(), l.host.stateObject(st))
	return err
}

func (h *Host) install() {
	page := h.vm.NewObject()
	_ = page.Set("on", h.jsOn)
	_ = page.Set("off", h.jsOff)
	_ = page.Set("finish", h.jsFinish)
	_ = h.vm.Set("page", page)
	_ = h.vm.Set("log", h.jsLog)
}

func (h *Host) stageArg(call goja.FunctionCall) domain.Stage {
	stage, err := domain.ParseStage(call.Argument(0).String())
	if err != nil {
		panic(h.vm.NewTypeError(err.Error()))
	}
	return stage
}

func (h *Host) funcArg(call goja.FunctionCall, i int) (goja.Value, goja.Callable) {
	v := call.Argument(i)
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(h.vm.NewTypeError("argument %d is not a function", i))
	}
	return v, fn
}

func (h *Host) jsOn(call goja.FunctionCall) goja.Value {
	stage := h.stageArg(call)
	v, fn := h.funcArg(call, 1)
	if h.find(stage, v) >= 0 {
		return goja.Undefined()
	}
	if h.registry == nil {
		panic(h.vm.NewGoError(ErrDetached))
	}

	b := &binding{stage: stage, fn: v, owner: h.owner}
	b.listener = &listener{host: h, binding: b, fn: fn}
	h.bindings = append(h.bindings, b)
	h.emitter.Add(stage, b.listener)
	if st := h.registry.Latest(); st != nil {
		st.Replay(h.ctx, stage, b.listener)
	}
	return goja.Undefined()
}

func (h *Host) jsOff(call goja.FunctionCall) goja.Value {
	stage := h.stageArg(call)
	v, _ := h.funcArg(call, 1)
	if i := h.find(stage, v); i >= 0 {
		h.drop(h.bindings[i])
	}
	return goja.Undefined()
}

func (h *Host) jsFinish(call goja.FunctionCall) goja.Value {
	_, fn := h.funcArg(call, 0)
	err := chain.Finish(h.ctx, func(ctx context.Context) error {
		_, release := h.enter(ctx)
		defer release()
		_, err := fn(goja.Undefined())
		return err
	})
	if err != nil {
		panic(h.vm.NewGoError(err))
	}
	return goja.Undefined()
}

func (h *Host) jsLog(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = a.String()
	}
	line := strings.Join(parts, " ")
	h.logger.Debug("script log", "line", line)
	fmt.Fprintln(h.out, line)
	return goja.Undefined()
}

func (h *Host) find(stage domain.Stage, v goja.Value) int {
	for i, b := range h.bindings {
		if b.stage == stage && b.fn.SameAs(v) {
			return i
		}
	}
	return -1
}

// attached reports whether the script that registered b is still part of
// the live document. Registrations made outside a script element always are.
func (h *Host) attached(b *binding) bool {
	if b.owner == nil || h.registry == nil {
		return true
	}
	top := b.owner
	for top.Parent != nil {
		top = top.Parent
	}
	return top == h.registry.Document()
}

// drop forgets b and removes its listener.
func (h *Host) drop(b *binding) {
	for i, cur := range h.bindings {
		if cur == b {
			h.bindings = append(h.bindings[:i], h.bindings[i+1:]...)
			break
		}
	}
	h.emitter.Remove(b.stage, b.listener)
}

// prune drops the bindings of scripts that left the document.
func (h *Host) prune() {
	for _, b := range append([]*binding(nil), h.bindings...) {
		if !h.attached(b) {
			h.drop(b)
		}
	}
}

func (h *Host) stateObject(st *runtime.State) goja.Value {
	obj := h.vm.NewObject()
	_ = obj.Set("id", st.ID)
	_ = obj.Set("href", st.Href())
	_ = obj.Set("pathname", st.Pathname)
	_ = obj.Set("query", location.FormatQuery(st.Query))
	_ = obj.Set("hash", st.Hash)
	_ = obj.Set("stage", string(st.Stage()))
	_ = obj.Set("data", st.Data)
	if err := st.Err(); err != nil {
		_ = obj.Set("error", err.Error())
	} else {
		_ = obj.Set("error", goja.Null())
	}
	_ = obj.Set("fail", func(call goja.FunctionCall) goja.Value {
		st.SetErr(errors.New(call.Argument(0).String()))
		return goja.Undefined()
	})
	_ = obj.Set("recover", func(goja.FunctionCall) goja.Value {
		st.ClearError()
		return goja.Undefined()
	})
	return obj
}
