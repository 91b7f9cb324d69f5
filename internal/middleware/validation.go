package middleware

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/consult-api/internal/model"
)

// RegisterValidators reports json field names in validation errors and
// adds the appointment_kind tag. It is safe to call more than once.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return v.RegisterValidation("appointment_kind", func(fl validator.FieldLevel) bool {
		kind := model.AppointmentKind(fl.Field().String())
		return kind == "" || kind.Valid()
	})
}
