package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/resmodel/internal/compiler"
	"github.com/roach88/resmodel/internal/ir"
)

// validator checks resource models against the JSON Schema of their
// definition. Schemas are compiled on first use and cached per definition.
type validator struct {
	mu      sync.Mutex
	schemas map[*ir.ResourceDefinition]*jsonschema.Schema
	printer *message.Printer
}

func newValidator() *validator {
	return &validator{
		schemas: make(map[*ir.ResourceDefinition]*jsonschema.Schema),
		printer: message.NewPrinter(language.English),
	}
}

func (v *validator) schema(def *ir.ResourceDefinition) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.schemas[def]; ok {
		return sch, nil
	}

	raw, err := json.Marshal(compiler.ResourceSchema(def, compiler.SchemaOptions{}))
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", def.Path, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", def.Path, err)
	}

	url := fmt.Sprintf("resource-%d.json", len(v.schemas))
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema for %s: %w", def.Path, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", def.Path, err)
	}
	v.schemas[def] = sch
	return sch, nil
}

// Validate checks model against def. A violation is a ValidationFailure
// naming the first offending attribute.
func (v *validator) Validate(addr ir.Address, def *ir.ResourceDefinition, model ir.Object) error {
	sch, err := v.schema(def)
	if err != nil {
		return err
	}
	if model == nil {
		model = ir.Object{}
	}

	err = sch.Validate(ir.ToAny(model))
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return ir.Errorf(ir.KindValidationFailure, "invalid model").At(addr).Wrap(err)
	}

	leaf := firstLeaf(ve)
	out := ir.Errorf(ir.KindValidationFailure, "%s", leaf.ErrorKind.LocalizedString(v.printer)).At(addr)
	if len(leaf.InstanceLocation) > 0 {
		out = out.Attr(leaf.InstanceLocation[0])
	}
	return out
}

// firstLeaf returns the deepest cause with the smallest instance location,
// so the reported attribute is deterministic.
func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	var leaves []*jsonschema.ValidationError
	var collect func(e *jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			leaves = append(leaves, e)
			return
		}
		for _, c := range e.Causes {
			collect(c)
		}
	}
	collect(ve)

	return slices.MinFunc(leaves, func(a, b *jsonschema.ValidationError) int {
		return strings.Compare(strings.Join(a.InstanceLocation, "/"), strings.Join(b.InstanceLocation, "/"))
	})
}
