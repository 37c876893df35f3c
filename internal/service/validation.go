package service

import (
	"classplay/internal/model"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("gametype", func(fl validator.FieldLevel) bool {
		return model.GameType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("movetype", func(fl validator.FieldLevel) bool {
		return model.MoveType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("turnfield", func(fl validator.FieldLevel) bool {
		return model.TurnField(fl.Field().String()).Valid()
	})
	return v
}

// validateStruct runs the struct tags and converts failures into a ValidationError
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Error: fieldMessage(fe)})
	}
	return NewValidationError(errInvalidInput, fields...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "excludes":
		return "must not contain " + fe.Param()
	case "gametype":
		return "unknown game type"
	case "movetype":
		return "unknown move type"
	case "turnfield":
		return "unknown turn field"
	}
	return "failed on " + fe.Tag()
}
