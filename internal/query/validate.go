package query

import (
	"fmt"

	"github.com/roach88/viewsync/internal/ir"
)

// Validate checks that a predicate is well formed: every leaf has a path and a
// value, and Contains compares against a scalar. Validate is a pure function.
func Validate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Eq:
		return validateLeaf("eq", pred.Path, pred.Value)
	case *Eq:
		return Validate(*pred)
	case Contains:
		if err := validateLeaf("contains", pred.Path, pred.Value); err != nil {
			return err
		}
		switch pred.Value.(type) {
		case ir.Array, ir.Object:
			return fmt.Errorf("contains %q: value must be a scalar, got %T", pred.Path, pred.Value)
		}
		return nil
	case *Contains:
		return Validate(*pred)
	case And:
		for i, sub := range pred.Predicates {
			if err := Validate(sub); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
		return nil
	case *And:
		return Validate(*pred)
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func validateLeaf(op, path string, value ir.Value) error {
	if path == "" {
		return fmt.Errorf("%s: path is required", op)
	}
	if value == nil {
		return fmt.Errorf("%s %q: value is required", op, path)
	}
	return nil
}
