// Package handler provides reflection-based handler execution for the jobs package.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	unitType    = reflect.TypeOf((*core.Unit)(nil)).Elem()
	optsType    = reflect.TypeOf(core.StyleOptions{})
	argsMapType = reflect.TypeOf(map[string]any(nil))
)

// Handler holds metadata about a registered job handler.
type Handler struct {
	Fn         reflect.Value
	ArgsType   reflect.Type
	HasContext bool

	// Extended is set when the handler also declares the reserved unit
	// and the style options.
	Extended bool
}

// NewHandler creates a Handler from a function.
// The function must have one of the signatures:
//
//	func(ctx context.Context, args T) error
//	func(ctx context.Context, args T, unit core.Unit, opts core.StyleOptions) error
//
// The context parameter is optional. A classic handler may also omit args,
// as in func(ctx context.Context) error or func() error. (T, error) is
// accepted as a return type with the result discarded.
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)

	// Check for typed nil (e.g., var fn func() = nil)
	if !fnVal.IsValid() || (fnVal.Kind() == reflect.Func && fnVal.IsNil()) {
		return nil, fmt.Errorf("handler function cannot be nil")
	}

	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}

	handler := &Handler{Fn: fnVal}

	numIn := fnType.NumIn()
	if numIn > 4 {
		return nil, fmt.Errorf("handler must have at most 4 arguments")
	}

	idx := 0
	if numIn > 0 && fnType.In(0).Implements(contextType) {
		handler.HasContext = true
		idx = 1
	}

	if idx < numIn {
		handler.ArgsType = fnType.In(idx)
		if handler.ArgsType == unitType || handler.ArgsType == optsType {
			return nil, fmt.Errorf("handler must accept args before the unit and options")
		}
		idx++
	}

	switch numIn - idx {
	case 0:
	case 2:
		if fnType.In(idx) != unitType || fnType.In(idx+1) != optsType {
			return nil, fmt.Errorf("extended handler must take (args, core.Unit, core.StyleOptions)")
		}
		handler.Extended = true
	default:
		return nil, fmt.Errorf("handler must take args, or args, core.Unit and core.StyleOptions")
	}

	// Validate return type - allow error or (T, error)
	numOut := fnType.NumOut()
	switch numOut {
	case 1:
		if !fnType.Out(0).Implements(errorType) {
			return nil, fmt.Errorf("handler must return error")
		}
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			return nil, fmt.Errorf("handler must return (T, error)")
		}
	default:
		return nil, fmt.Errorf("handler must return error or (T, error)")
	}

	return handler, nil
}

// Execute runs the handler with the decoded args. unit and opts are only
// passed to extended handlers; a nil unit is passed as a nil interface.
func (h *Handler) Execute(ctx context.Context, args map[string]any, unit core.Unit, opts core.StyleOptions) error {
	// A zero Handler has no function to call.
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return fmt.Errorf("handler function is nil or invalid")
	}

	in := make([]reflect.Value, 0, 4)

	if h.HasContext {
		in = append(in, reflect.ValueOf(ctx))
	}

	if h.ArgsType != nil {
		argVal, err := decodeArgs(args, h.ArgsType)
		if err != nil {
			return err
		}
		in = append(in, argVal)
	}

	if h.Extended {
		if unit == nil {
			in = append(in, reflect.Zero(unitType))
		} else {
			in = append(in, reflect.ValueOf(unit))
		}
		in = append(in, reflect.ValueOf(opts))
	}

	results := h.Fn.Call(in)

	errVal := results[len(results)-1]
	if !errVal.IsNil() {
		return errVal.Interface().(error)
	}
	return nil
}

// decodeArgs converts the envelope's args object into a value of type t.
// map[string]any (and any) is handed over as-is; everything else goes
// through a JSON round trip.
func decodeArgs(args map[string]any, t reflect.Type) (reflect.Value, error) {
	if args == nil {
		args = map[string]any{}
	}

	if t == argsMapType || (t.Kind() == reflect.Interface && t.NumMethod() == 0) {
		return reflect.ValueOf(args).Convert(t), nil
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("failed to marshal args: %w", err)
	}

	argPtr := reflect.New(t)
	if err := json.Unmarshal(argsJSON, argPtr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return argPtr.Elem(), nil
}
