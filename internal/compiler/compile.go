package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileView parses a CUE value into a ViewSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the view struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`view: postsView: { ... }`)
//	spec, err := CompileView(v.LookupPath(cue.ParsePath("view.postsView")))
func CompileView(v cue.Value) (*ViewSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ViewSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	spec.Source, err = requiredString(v, "source")
	if err != nil {
		return nil, err
	}
	spec.Target, err = requiredString(v, "target")
	if err != nil {
		return nil, err
	}

	syncVal := v.LookupPath(cue.ParsePath("sync"))
	if !syncVal.Exists() {
		return nil, &CompileError{
			Field:   "sync",
			Message: "sync is required",
			Pos:     v.Pos(),
		}
	}
	spec.Sync, err = parseFields(syncVal, "sync")
	if err != nil {
		return nil, err
	}

	postSyncVal := v.LookupPath(cue.ParsePath("postSync"))
	if postSyncVal.Exists() {
		spec.PostSync, err = parseFields(postSyncVal, "postSync")
		if err != nil {
			return nil, err
		}
	}

	refreshVal := v.LookupPath(cue.ParsePath("refreshBy"))
	if refreshVal.Exists() {
		spec.RefreshBy, err = parseBindings(refreshVal)
		if err != nil {
			return nil, err
		}
	}

	return spec, nil
}

// CompileViews compiles every view declared under the top-level "view" field
// of root, in declaration order. It stops at the first error.
func CompileViews(root cue.Value) ([]ViewSpec, error) {
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	viewsVal := root.LookupPath(cue.ParsePath("view"))
	if !viewsVal.Exists() {
		return nil, nil
	}

	iter, err := viewsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []ViewSpec
	for iter.Next() {
		spec, err := CompileView(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("view %s: %w", iter.Selector().String(), err)
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// CompileString compiles CUE source text. filename is only used in error
// positions.
func CompileString(src, filename string) ([]ViewSpec, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	return CompileViews(v)
}

// parseFields parses a stage struct. Every member is a field whose value is a
// struct naming exactly one operation.
func parseFields(v cue.Value, stage string) ([]FieldSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []FieldSpec
	for iter.Next() {
		name := strings.Trim(iter.Selector().String(), `"`)
		field, err := parseField(iter.Value(), stage+"."+name)
		if err != nil {
			return nil, err
		}
		field.Name = name
		fields = append(fields, field)
	}
	return fields, nil
}

func parseField(v cue.Value, where string) (FieldSpec, error) {
	op, arg, err := singleMember(v, where)
	if err != nil {
		return FieldSpec{}, err
	}

	field := FieldSpec{Op: op}
	switch op {
	case OpCount, OpCopy:
		field.Path, err = stringValue(arg, where+"."+op)
	case OpLookup, OpLookupMany:
		if field.From, err = requiredString(arg, "from"); err != nil {
			break
		}
		field.Path, err = requiredString(arg, "path")
	case OpReferencing:
		if field.From, err = requiredString(arg, "from"); err != nil {
			break
		}
		field.ForeignKey, err = requiredString(arg, "foreignKey")
	case OpPluck:
		if field.Path, err = requiredString(arg, "path"); err != nil {
			break
		}
		field.Field, err = requiredString(arg, "field")
	case OpConcat:
		if field.Sep, err = optionalString(arg, "sep"); err != nil {
			break
		}
		field.Parts, err = parseParts(arg, where+"."+op)
	default:
		// reported by Validate
	}
	if err != nil {
		return FieldSpec{}, err
	}
	return field, nil
}

func parseParts(v cue.Value, where string) ([]PartSpec, error) {
	partsVal := v.LookupPath(cue.ParsePath("parts"))
	if !partsVal.Exists() {
		return nil, &CompileError{
			Field:   where + ".parts",
			Message: "concat requires parts",
			Pos:     v.Pos(),
		}
	}

	iter, err := partsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var parts []PartSpec
	for i := 0; iter.Next(); i++ {
		partWhere := fmt.Sprintf("%s.parts[%d]", where, i)
		kind, arg, err := singleMember(iter.Value(), partWhere)
		if err != nil {
			return nil, err
		}

		part := PartSpec{Kind: kind}
		switch kind {
		case PartPath:
			part.Path, err = stringValue(arg, partWhere+".path")
		case PartLiteral:
			part.Literal, err = stringValue(arg, partWhere+".literal")
		case PartJoined:
			if part.Path, err = requiredString(arg, "path"); err != nil {
				break
			}
			if part.Field, err = requiredString(arg, "field"); err != nil {
				break
			}
			part.Sep, err = optionalString(arg, "sep")
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// parseBindings parses refreshBy: a list of {trigger, <resolver>: path}.
func parseBindings(v cue.Value) ([]BindingSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var bindings []BindingSpec
	for i := 0; iter.Next(); i++ {
		bv := iter.Value()
		where := fmt.Sprintf("refreshBy[%d]", i)

		trigger, err := requiredString(bv, "trigger")
		if err != nil {
			return nil, err
		}
		binding := BindingSpec{Trigger: trigger}

		members, err := bv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for members.Next() {
			label := members.Selector().String()
			if label == "trigger" {
				continue
			}
			if binding.Resolver != "" {
				return nil, &CompileError{
					Field:   where,
					Message: fmt.Sprintf("binding names two resolvers (%s, %s)", binding.Resolver, label),
					Pos:     members.Value().Pos(),
				}
			}
			binding.Resolver = label
			binding.Path, err = stringValue(members.Value(), where+"."+label)
			if err != nil {
				return nil, err
			}
		}
		if binding.Resolver == "" {
			return nil, &CompileError{
				Field:   where,
				Message: "binding requires a resolver (referencedBy or containedIn)",
				Pos:     bv.Pos(),
			}
		}

		bindings = append(bindings, binding)
	}
	return bindings, nil
}

// singleMember returns the label and value of the only member of struct v.
func singleMember(v cue.Value, where string) (string, cue.Value, error) {
	if v.IncompleteKind() != cue.StructKind {
		return "", cue.Value{}, &CompileError{
			Field:   where,
			Message: fmt.Sprintf("expected a struct naming one operation, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}

	iter, err := v.Fields()
	if err != nil {
		return "", cue.Value{}, formatCUEError(err)
	}

	var (
		label string
		value cue.Value
		n     int
	)
	for iter.Next() {
		label = strings.Trim(iter.Selector().String(), `"`)
		value = iter.Value()
		n++
	}
	if n != 1 {
		return "", cue.Value{}, &CompileError{
			Field:   where,
			Message: fmt.Sprintf("expected exactly one operation, found %d", n),
			Pos:     v.Pos(),
		}
	}
	return label, value, nil
}

func requiredString(v cue.Value, name string) (string, error) {
	val := v.LookupPath(cue.ParsePath(name))
	if !val.Exists() {
		return "", &CompileError{
			Field:   name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	return stringValue(val, name)
}

func optionalString(v cue.Value, name string) (string, error) {
	val := v.LookupPath(cue.ParsePath(name))
	if !val.Exists() {
		return "", nil
	}
	return stringValue(val, name)
}

func stringValue(v cue.Value, field string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: "must be a string",
			Pos:     v.Pos(),
		}
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
