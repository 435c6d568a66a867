// Package validate is the form-boundary validation contract,
// validate(data, schema) -> {isValid, fieldErrors}, backed by CUE schemas.
package validate

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

type Result struct {
	IsValid     bool              `json:"is_valid"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Schema is a compiled CUE schema. A cue.Context is not safe for concurrent
// use, so evaluation is serialised.
type Schema struct {
	mu  sync.Mutex
	ctx *cue.Context
	v   cue.Value
}

func Compile(src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{ctx: ctx, v: v}, nil
}

func MustCompile(src string) *Schema {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a JSON document against schema. JSON is valid CUE, so the
// document is compiled as-is and unified with the schema.
func Validate(data []byte, schema *Schema) Result {
	schema.mu.Lock()
	defer schema.mu.Unlock()

	doc := schema.ctx.CompileBytes(data)
	if err := doc.Err(); err != nil {
		return Result{FieldErrors: map[string]string{"": "malformed document"}}
	}
	err := schema.v.Unify(doc).Validate(cue.Concrete(true))
	if err == nil {
		return Result{IsValid: true}
	}

	fields := make(map[string]string)
	for _, e := range cueerrors.Errors(err) {
		path := strings.Join(e.Path(), ".")
		if _, seen := fields[path]; seen {
			continue
		}
		format, args := e.Msg()
		fields[path] = fmt.Sprintf(format, args...)
	}
	return Result{FieldErrors: fields}
}
