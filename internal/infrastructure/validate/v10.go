package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// PlaygroundV10 Validator implementation using go-playground
type PlaygroundV10 struct {
	core  *validator.Validate
	trans ut.Translator
}

var _ Validator = &PlaygroundV10{}

// NewValidator create a new Validator
func NewValidator() *PlaygroundV10 {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")

	validate := validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, trans)
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &PlaygroundV10{
		core:  validate,
		trans: trans,
	}
}

// Struct validate struct
func (v *PlaygroundV10) Struct(s interface{}) []*FieldError {
	return v.collect("", v.core.Struct(s))
}

// Var validate a single value
func (v *PlaygroundV10) Var(name string, value interface{}, tag string) []*FieldError {
	return v.collect(name, v.core.Var(value, tag))
}

func (v *PlaygroundV10) collect(name string, err error) []*FieldError {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []*FieldError{NewFieldError(name, err.Error())}
	}

	var result []*FieldError
	for _, item := range verrs {
		domain := item.Field()
		reason := item.Translate(v.trans)
		if name != "" {
			domain = name
			reason = name + reason
		}
		result = append(result, NewFieldError(domain, reason))
	}
	return result
}
