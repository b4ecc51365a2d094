package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// Tool is an agent-callable operation. Parameters returns a JSON Schema object.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry holds the tools exposed to agents.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute runs the named tool. Unknown tools and panics become error results.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (res *Result) {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("tools.panic", "tool", name, "panic", p, "stack", string(debug.Stack()))
			res = ErrorResult(fmt.Sprintf("tool %s failed", name))
		}
		slog.Debug("tools.executed", "tool", name, "duration", time.Since(start), "is_error", res.IsError)
	}()
	return t.Execute(ctx, args)
}
