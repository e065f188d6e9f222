package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/fffauto/internal/fakes"
	"github.com/jward/fffauto/internal/syntax"
)

// makeNormalizeTypeFn creates the "normalize_type" host function.
//
// normalize_type(text) → string
func makeNormalizeTypeFn() *object.Builtin {
	return object.NewBuiltin("normalize_type", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("normalize_type", 1, len(args))
		}
		text, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("normalize_type: text must be a string, got %s", args[0].Type())
		}
		return object.NewString(syntax.NormalizeType(text.Value()))
	})
}

// makeParseFunctionTypeFn creates the "parse_function_type" host function.
//
// parse_function_type(text) → {"return_type": string, "arg_types": [string]} or nil
func makeParseFunctionTypeFn() *object.Builtin {
	return object.NewBuiltin("parse_function_type", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse_function_type", 1, len(args))
		}
		text, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("parse_function_type: text must be a string, got %s", args[0].Type())
		}
		ret, argTypes, ok := fakes.ParseFunctionType(text.Value())
		if !ok {
			return object.Nil
		}
		return object.NewMap(map[string]object.Object{
			"return_type": object.NewString(ret),
			"arg_types":   stringList(argTypes),
		})
	})
}

// recordObject converts a record into the map scripts see as "fake".
func recordObject(r fakes.Record) *object.Map {
	return object.NewMap(map[string]object.Object{
		"name":        object.NewString(r.Name),
		"return_type": object.NewString(r.ReturnType),
		"arg_types":   stringList(r.ArgTypes),
	})
}

// applyRecordMap overwrites the fields of r present in m.
func applyRecordMap(r fakes.Record, m map[string]object.Object) (fakes.Record, error) {
	if v, ok := m["name"]; ok {
		name, err := toString(v)
		if err != nil {
			return r, fmt.Errorf("name: %w", err)
		}
		if name == "" {
			return r, fmt.Errorf("name: must not be empty")
		}
		r.Name = name
	}
	if v, ok := m["return_type"]; ok {
		ret, err := toString(v)
		if err != nil {
			return r, fmt.Errorf("return_type: %w", err)
		}
		r.ReturnType = ret
	}
	if v, ok := m["arg_types"]; ok {
		list, ok := v.(*object.List)
		if !ok {
			return r, fmt.Errorf("arg_types: expected list, got %s", v.Type())
		}
		var argTypes []string
		for i, item := range list.Value() {
			s, err := toString(item)
			if err != nil {
				return r, fmt.Errorf("arg_types[%d]: %w", i, err)
			}
			argTypes = append(argTypes, s)
		}
		r.ArgTypes = argTypes
	}
	return r, nil
}

func stringList(items []string) *object.List {
	objs := make([]object.Object, len(items))
	for i, s := range items {
		objs[i] = object.NewString(s)
	}
	return object.NewList(objs)
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	logger *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
