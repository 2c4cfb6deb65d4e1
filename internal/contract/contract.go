package contract

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/attrsync/internal/ir"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed default.cue
var defaultSource []byte

// DefaultFilename is the name reported in positions of the embedded contract.
const DefaultFilename = "default.cue"

// Mapping binds one source column to one attribute key.
type Mapping struct {
	Source string `json:"source" yaml:"source"`
	Key    string `json:"key" yaml:"key"`
}

// Contract is a compiled data contract. It is read-only after loading.
type Contract struct {
	Name       string    `json:"name" yaml:"name"`
	IDField    string    `json:"id_field" yaml:"id_field"`
	Attributes []Mapping `json:"attributes" yaml:"attributes"`
}

// RequiredFields returns every source column the input must carry:
// the identifier column first, then the attribute columns in order.
func (c *Contract) RequiredFields() []string {
	fields := make([]string, 0, len(c.Attributes)+1)
	fields = append(fields, c.IDField)
	for _, m := range c.Attributes {
		fields = append(fields, m.Source)
	}
	return fields
}

// Keys returns the attribute keys in contract order.
func (c *Contract) Keys() []string {
	keys := make([]string, len(c.Attributes))
	for i, m := range c.Attributes {
		keys[i] = m.Key
	}
	return keys
}

// Default returns the embedded default contract.
func Default() (*Contract, error) {
	return Parse(DefaultFilename, defaultSource)
}

// Load reads a contract file. An empty path selects the default contract.
func Load(path string) (*Contract, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeRead,
			Field:   path,
			Message: err.Error(),
		}
	}
	return Parse(path, data)
}

// Parse compiles CUE source holding a top-level contract field and
// validates it against the embedded schema.
//
// Uses CUE SDK's Go API directly (not CLI subprocess).
func Parse(filename string, src []byte) (*Contract, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile contract schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	contractVal := v.LookupPath(cue.ParsePath("contract"))
	if !contractVal.Exists() {
		return nil, &Error{
			Code:    ErrCodeMissing,
			Field:   "contract",
			Message: fmt.Sprintf("%s: top-level contract field is required", filename),
		}
	}

	unified := schema.LookupPath(cue.ParsePath("#Contract")).Unify(contractVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	c, err := compile(unified)
	if err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// compile extracts a Contract from a validated CUE value.
func compile(v cue.Value) (*Contract, error) {
	c := &Contract{}

	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	c.Name = name

	idField, err := v.LookupPath(cue.ParsePath("id_field")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	c.IDField = ir.CleanField(idField)

	iter, err := v.LookupPath(cue.ParsePath("attributes")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		item := iter.Value()
		source, err := item.LookupPath(cue.ParsePath("source")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		key, err := item.LookupPath(cue.ParsePath("key")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		c.Attributes = append(c.Attributes, Mapping{
			Source: ir.CleanField(source),
			Key:    key,
		})
	}

	return c, nil
}

// validate checks the rules the schema cannot express: cleaned names are
// non-blank, and no source column or key is used twice.
func (c *Contract) validate() error {
	if c.IDField == "" {
		return &Error{Code: ErrCodeBlank, Field: "id_field", Message: "must not be blank"}
	}

	sources := map[string]bool{c.IDField: true}
	keys := make(map[string]bool, len(c.Attributes))
	for i, m := range c.Attributes {
		field := fmt.Sprintf("attributes[%d]", i)
		if m.Source == "" {
			return &Error{Code: ErrCodeBlank, Field: field + ".source", Message: "must not be blank"}
		}
		if sources[m.Source] {
			return &Error{
				Code:    ErrCodeDuplicate,
				Field:   field + ".source",
				Message: fmt.Sprintf("column %q is used more than once", m.Source),
			}
		}
		if keys[m.Key] {
			return &Error{
				Code:    ErrCodeDuplicate,
				Field:   field + ".key",
				Message: fmt.Sprintf("attribute key %q is used more than once", m.Key),
			}
		}
		sources[m.Source] = true
		keys[m.Key] = true
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: ErrCodeCUE, Message: err.Error()}
	}

	first := errs[0]
	ce := &Error{Code: ErrCodeCUE, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
