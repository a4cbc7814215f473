package utils

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator reports field names by their json tag so errors read "product_type", not "ProductType".
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct runs the validate tags on s. Failures come back as *inventory.ValidationError;
// "required" failures are listed in Missing.
func ValidateStruct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &inventory.ValidationError{Reason: err.Error()}
	}
	out := &inventory.ValidationError{}
	var reasons []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			out.Missing = append(out.Missing, fe.Field())
			continue
		}
		reasons = append(reasons, fe.Field()+" failed "+fe.Tag())
	}
	if len(out.Missing) == 0 {
		out.Reason = strings.Join(reasons, "; ")
	}
	return out
}
