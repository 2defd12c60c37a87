package engine

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Runner is the closed categorization of the two executable shapes a task
// registration may supply: a plain function or a stateful Task. The rest of
// the system is agnostic to which.
type Runner interface {
	// Name identifies the executable for diagnostics and plan fingerprints.
	Name() string
	// Invoke executes the underlying function or task with bound inputs.
	Invoke(ctx context.Context, inputs map[string]any) (any, error)
}

// Task is an executable unit of work exposing a single execute capability.
// Task implementations generally produce artifacts as a side effect and
// return a product value describing them.
type Task interface {
	Execute(ctx context.Context, inputs map[string]any) (any, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, inputs map[string]any) (any, error)

// Invoke implements Runner.
func (f RunnerFunc) Invoke(ctx context.Context, inputs map[string]any) (any, error) {
	return f(ctx, inputs)
}

// Name implements Runner using the function's symbol name.
func (f RunnerFunc) Name() string {
	pc := reflect.ValueOf(f).Pointer()
	if fn := runtime.FuncForPC(pc); fn != nil {
		name := fn.Name()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return "func"
}

// taskRunner adapts a stateful Task to the Runner interface.
type taskRunner struct {
	task Task
}

func (t taskRunner) Invoke(ctx context.Context, inputs map[string]any) (any, error) {
	return t.task.Execute(ctx, inputs)
}

func (t taskRunner) Name() string {
	typ := reflect.TypeOf(t.task)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Name() != "" {
		return typ.Name()
	}
	return typ.String()
}

// runnerOf normalizes an executable reference into a Runner. Accepted shapes
// are a Runner, a Task, or a func(ctx, map[string]any) (any, error); anything
// else is a registration-time programmer error.
func runnerOf(executable any) Runner {
	switch e := executable.(type) {
	case Runner:
		return e
	case Task:
		return taskRunner{task: e}
	case func(ctx context.Context, inputs map[string]any) (any, error):
		return RunnerFunc(e)
	default:
		panic(fmt.Sprintf("engine: a task must be a function, Task, or Runner, got %T", executable))
	}
}
