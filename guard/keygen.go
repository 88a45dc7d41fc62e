package guard

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// Call describes one invocation of a guarded operation: its name and its
// arguments in declaration order.
type Call struct {
	Operation string
	Args      []Arg
}

// Arg is a named argument. Object-shaped arguments list their fields in
// declaration order.
type Arg struct {
	Name   string
	Value  any
	Fields []Field
}

type Field struct {
	Name  string
	Value any
}

// KeyPolicy marks the identifying parts of a call. Params name top-level
// arguments. Fields name fields of object arguments, either bare ("token")
// or qualified by the argument name ("book.isbn").
type KeyPolicy struct {
	Params []string `mapstructure:"params"`
	Fields []string `mapstructure:"fields"`
}

func Param(name string, value any) Arg {
	return Arg{Name: name, Value: value}
}

func Object(name string, fields ...Field) Arg {
	return Arg{Name: name, Fields: fields}
}

func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// DeriveKey builds prefix + delimiter + value1 + delimiter + value2 ...
//
// Marked top-level arguments are used when there is any, otherwise marked
// fields of object arguments in argument-then-field order. When nothing is
// marked the key is the bare prefix and degenerate is true: every call of
// the operation then shares one lock.
//
// Values are not escaped, a delimiter inside a value makes distinct calls
// produce the same key.
func DeriveKey(prefix, delimiter string, policy KeyPolicy, call Call) (key string, degenerate bool) {
	var sb strings.Builder
	sb.WriteString(prefix)
	segments := 0
	for _, arg := range call.Args {
		if !slices.Contains(policy.Params, arg.Name) {
			continue
		}
		sb.WriteString(delimiter)
		sb.WriteString(canonical(arg.Value))
		segments++
	}
	if segments > 0 {
		return sb.String(), false
	}

	for _, arg := range call.Args {
		for _, field := range arg.Fields {
			if !slices.Contains(policy.Fields, field.Name) && !slices.Contains(policy.Fields, arg.Name+"."+field.Name) {
				continue
			}
			sb.WriteString(delimiter)
			sb.WriteString(canonical(field.Value))
			segments++
		}
	}
	return sb.String(), segments == 0
}

func canonical(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

