package llm

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance used across the package.
var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("notblank", validateNotBlank); err != nil {
		panic(fmt.Sprintf("failed to register notblank validator: %v", err))
	}
}

// validateNotBlank rejects strings that are empty after trimming whitespace.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validate checks s against its validate struct tags.
//
// Example:
//
//	type Prompt struct {
//	    Text string `validate:"notblank"`
//	}
//
//	if err := Validate(&Prompt{Text: "hi"}); err != nil {
//	    log.Fatal(err)
//	}
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// RegisterCustomValidation registers a custom validation tag with the
// shared validator. It must be called before any concurrent Validate call.
func RegisterCustomValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}
