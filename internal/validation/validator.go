package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates request structs by their validate tags
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every tagged field of a struct. Supported rules:
// required, min=N and max=N, where N is a length for strings and
// slices and a bound for integers.
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%s: %w", fieldType.Name, err)
		}
	}

	return nil
}

// validateField applies the comma-separated rules of one tag
func (v *Validator) validateField(field reflect.Value, tag string) error {
	rules := strings.Split(tag, ",")

	for _, rule := range rules {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]

		switch ruleName {
		case "required":
			if field.IsZero() {
				return fmt.Errorf("field is required")
			}

		case "min":
			if len(parts) < 2 {
				continue
			}
			bound, err := strconv.Atoi(parts[1])
			if err != nil {
				continue
			}
			if size, sized := fieldSize(field); sized && size < bound {
				return fmt.Errorf("minimum is %d", bound)
			}

		case "max":
			if len(parts) < 2 {
				continue
			}
			bound, err := strconv.Atoi(parts[1])
			if err != nil {
				continue
			}
			if size, sized := fieldSize(field); sized && size > bound {
				return fmt.Errorf("maximum is %d", bound)
			}
		}
	}

	return nil
}

// fieldSize returns the comparable size of a field: length for strings
// and slices, the value itself for integers.
func fieldSize(field reflect.Value) (int, bool) {
	switch field.Kind() {
	case reflect.String:
		return len(field.String()), true
	case reflect.Slice, reflect.Array, reflect.Map:
		return field.Len(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(field.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(field.Uint()), true
	default:
		return 0, false
	}
}
