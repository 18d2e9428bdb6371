package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema names accepted by Validate.
const (
	SchemaSubscribe   = "subscribe"
	SchemaWelcome     = "welcome"
	SchemaAssignments = "assignments"
	SchemaCancelled   = "cancelled"
	SchemaDone        = "done"
	SchemaError       = "error"
	SchemaStroke      = "stroke"
)

var ErrUnknownSchema = errors.New("unknown schema")

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		names := []string{
			SchemaSubscribe, SchemaWelcome, SchemaAssignments, SchemaCancelled,
			SchemaDone, SchemaError, SchemaStroke,
		}
		c := jsonschema.NewCompiler()
		for _, name := range names {
			raw, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
			if err != nil {
				compileErr = err
				return
			}
			if err := c.AddResource(name+".schema.json", bytes.NewReader(raw)); err != nil {
				compileErr = fmt.Errorf("%s schema: %w", name, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			s, err := c.Compile(name + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("%s schema: %w", name, err)
				return
			}
			out[name] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// Validate checks raw JSON against the named schema.
func Validate(name string, raw []byte) error {
	all, err := schemas()
	if err != nil {
		return err
	}
	s := all[name]
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

// ValidateValue marshals v and validates it, for outbound messages.
func ValidateValue(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return Validate(name, raw)
}
