package utils

import (
	"fmt"
	"reflect"
)

// CheckMissingFields reports the first required field of the struct behind obj
// that holds its zero value. Field names are matched against the Go field name.
func CheckMissingFields(obj interface{}, requiredFields []string) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("expected a non-nil pointer to a struct, got %T", obj)
	}
	v = v.Elem()
	for _, field := range requiredFields {
		f := v.FieldByName(field)
		if !f.IsValid() {
			return fmt.Errorf("field %s is not valid", field)
		}
		if f.IsZero() {
			return fmt.Errorf("missing required field: %s", field)
		}
	}
	return nil
}
