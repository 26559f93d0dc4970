package utils

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the marketplace tags (phone_in, gstin, pan) to gin's validator engine
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("phone_in", func(fl validator.FieldLevel) bool {
			_, ok := NormalizePhone(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
			return IsValidGSTIN(fl.Field().String())
		})
		_ = v.RegisterValidation("pan", func(fl validator.FieldLevel) bool {
			return IsValidPAN(fl.Field().String())
		})
	})
}
