package httpapi

import (
	"math"
	"reflect"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"budgetfx/internal/currency"
)

var registerOnce sync.Once

// registerValidators adds the "currency" tag, accepting supported codes in any case,
// and the "finite" tag, rejecting NaN and infinite floats.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			_, ok := currency.Parse(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			field := fl.Field()
			if field.Kind() == reflect.Ptr {
				if field.IsNil() {
					return true
				}
				field = field.Elem()
			}
			if field.Kind() != reflect.Float32 && field.Kind() != reflect.Float64 {
				return true
			}
			f := field.Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		})
	})
}

// mustCode parses a value already checked by the "currency" tag.
func mustCode(raw string) currency.Code {
	code, _ := currency.Parse(raw)
	return code
}
