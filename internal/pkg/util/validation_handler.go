package util

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// report the wire name so clients can match it against their command
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// ValidateDTO checks the validate tags of a command payload and reports the
// first failure by its json field name.
func ValidateDTO(dto any) error {
	if err := validate.Struct(dto); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			first := vErrs[0]
			if first.Param() != "" {
				return fmt.Errorf("field [%s] failed rule [%s=%s]", first.Field(), first.Tag(), first.Param())
			}
			return fmt.Errorf("field [%s] failed rule [%s]", first.Field(), first.Tag())
		}
		return err
	}
	return nil
}
