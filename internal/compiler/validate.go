package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/viewsync/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// View errors (E101-E109)
	ErrViewSourceEmpty   = "E101" // source collection is required
	ErrViewTargetEmpty   = "E102" // target collection is required
	ErrSourceIsTarget    = "E103" // source and target are the same collection
	ErrNoSyncFields      = "E104" // at least one sync field required
	ErrDuplicateName     = "E105" // duplicate field name within a stage
	ErrReservedField     = "E106" // field would overwrite _id
	ErrUnknownOperation  = "E107" // field names an unknown operation
	ErrMissingArgument   = "E108" // operation argument empty
	ErrInvalidConcatPart = "E109" // concat part is malformed

	// Refresh binding errors (E110-E119)
	ErrTriggerEmpty      = "E110" // trigger collection is required
	ErrTriggerIsSource   = "E111" // trigger equals the view's source
	ErrUnknownResolver   = "E112" // resolver is not referencedBy or containedIn
	ErrResolverPathEmpty = "E113" // resolver path is required

	// Cross-view errors (E120-E129)
	ErrDuplicateViewID = "E120" // two views share an identifier
	ErrDuplicatePair   = "E121" // two views share a (source, target) pair
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled view.
// Returns all errors found (does not fail-fast).
func Validate(spec *ViewSpec) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("view.%s.%s", spec.ID, field),
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E101, E102: collections are required
	if strings.TrimSpace(spec.Source) == "" {
		add("source", ErrViewSourceEmpty, "source collection is required")
	}
	if strings.TrimSpace(spec.Target) == "" {
		add("target", ErrViewTargetEmpty, "target collection is required")
	}

	// E103: source and target must differ
	if spec.Source != "" && spec.Source == spec.Target {
		add("target", ErrSourceIsTarget, "source and target are both %q", spec.Source)
	}

	// E104: at least one sync field
	if len(spec.Sync) == 0 {
		add("sync", ErrNoSyncFields, "at least one sync field is required")
	}

	for _, stage := range []struct {
		name   string
		fields []FieldSpec
	}{
		{"sync", spec.Sync},
		{"postSync", spec.PostSync},
	} {
		seen := make(map[string]bool)
		for i, f := range stage.fields {
			path := fmt.Sprintf("%s[%d]", stage.name, i)

			// E105: duplicate name within a stage
			if seen[f.Name] {
				add(path, ErrDuplicateName, "duplicate field name: %q", f.Name)
			}
			seen[f.Name] = true

			// E106: _id is reserved
			if f.Name == ir.IDField {
				add(path, ErrReservedField, "field may not overwrite %s", ir.IDField)
			}

			for _, e := range validateField(f) {
				add(path+"."+e.Field, e.Code, "%s", e.Message)
			}
		}
	}

	for i, b := range spec.RefreshBy {
		path := fmt.Sprintf("refreshBy[%d]", i)

		// E110, E111: trigger must exist and differ from the source
		switch {
		case strings.TrimSpace(b.Trigger) == "":
			add(path+".trigger", ErrTriggerEmpty, "trigger collection is required")
		case b.Trigger == spec.Source:
			add(path+".trigger", ErrTriggerIsSource, "trigger %q is the view's source", b.Trigger)
		}

		// E112, E113: resolver
		if b.Resolver != ResolverReferencedBy && b.Resolver != ResolverContainedIn {
			add(path, ErrUnknownResolver, "unknown resolver %q, must be %q or %q",
				b.Resolver, ResolverReferencedBy, ResolverContainedIn)
		}
		if strings.TrimSpace(b.Path) == "" {
			add(path+"."+b.Resolver, ErrResolverPathEmpty, "resolver path is required")
		}
	}

	return errs
}

// ValidateAll validates each view and the relations between them.
func ValidateAll(specs []ViewSpec) []ValidationError {
	var errs []ValidationError

	ids := make(map[string]bool)
	pairs := make(map[[2]string]string)
	for i := range specs {
		spec := &specs[i]
		errs = append(errs, Validate(spec)...)

		// E120: duplicate identifier
		if ids[spec.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("view.%s", spec.ID),
				Message: fmt.Sprintf("duplicate view identifier: %q", spec.ID),
				Code:    ErrDuplicateViewID,
			})
		}
		ids[spec.ID] = true

		// E121: duplicate (source, target) pair
		pair := [2]string{spec.Source, spec.Target}
		if other, ok := pairs[pair]; ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("view.%s", spec.ID),
				Message: fmt.Sprintf("view %q already syncs %s -> %s", other, spec.Source, spec.Target),
				Code:    ErrDuplicatePair,
			})
			continue
		}
		pairs[pair] = spec.ID
	}

	return errs
}

// validateField checks the arguments of one field. Returned errors carry a
// Field relative to the field itself.
func validateField(f FieldSpec) []ValidationError {
	var errs []ValidationError
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, ValidationError{
				Field:   f.Op + "." + name,
				Message: fmt.Sprintf("%s requires %s", f.Op, name),
				Code:    ErrMissingArgument,
			})
		}
	}

	switch f.Op {
	case OpLookup, OpLookupMany:
		require("from", f.From)
		require("path", f.Path)
	case OpReferencing:
		require("from", f.From)
		require("foreignKey", f.ForeignKey)
	case OpCount, OpCopy:
		require("path", f.Path)
	case OpPluck:
		require("path", f.Path)
		require("field", f.Field)
	case OpConcat:
		if len(f.Parts) == 0 {
			errs = append(errs, ValidationError{
				Field:   f.Op + ".parts",
				Message: "concat requires at least one part",
				Code:    ErrInvalidConcatPart,
			})
		}
		for i, p := range f.Parts {
			if msg := validatePart(p); msg != "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.parts[%d]", f.Op, i),
					Message: msg,
					Code:    ErrInvalidConcatPart,
				})
			}
		}
	default:
		errs = append(errs, ValidationError{
			Field:   f.Op,
			Message: fmt.Sprintf("unknown operation %q", f.Op),
			Code:    ErrUnknownOperation,
		})
	}

	return errs
}

func validatePart(p PartSpec) string {
	switch p.Kind {
	case PartPath:
		if p.Path == "" {
			return "path part requires a path"
		}
	case PartLiteral:
	case PartJoined:
		if p.Path == "" || p.Field == "" {
			return "joined part requires path and field"
		}
	default:
		return fmt.Sprintf("unknown part kind %q, must be path, literal or joined", p.Kind)
	}
	return ""
}
