package handlers

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

type requestValidator struct {
	once       sync.Once
	validate   *validator.Validate
	translator ut.Translator
}

var defaultValidator requestValidator

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validate returns the first human-readable violation, or "".
func validate(obj any) string {
	if kindOfData(obj) != reflect.Struct {
		return ""
	}
	v := &defaultValidator
	v.lazyinit()

	err := v.validate.Struct(obj)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Translate(v.translator)
	}
	return err.Error()
}

func (v *requestValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New(validator.WithRequiredStructEnabled())

		// Messages name fields the way clients send them.
		v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})

		_ = v.validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return identifierPattern.MatchString(fl.Field().String())
		})

		locale := en.New()
		uni := ut.New(locale, locale)
		v.translator, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v.validate, v.translator)

		v.registerCustomTranslations()
	})
}

func (v *requestValidator) registerCustomTranslations() {
	add := func(tag, text string, withParam bool) {
		_ = v.validate.RegisterTranslation(tag, v.translator, func(t ut.Translator) error {
			return t.Add(tag, text, true)
		}, func(t ut.Translator, fe validator.FieldError) string {
			var msg string
			if withParam {
				msg, _ = t.T(tag, fe.Field(), fe.Param())
			} else {
				msg, _ = t.T(tag, fe.Field())
			}
			return msg
		})
	}

	add("required", "{0} is required", false)
	add("min", "{0} must be at least {1}", true)
	add("max", "{0} must be at most {1}", true)
	add("email", "{0} must be a valid email address", false)
	add("oneof", "{0} must be one of: {1}", true)
	add("identifier", "{0} may contain only letters, digits, '_' and '-'", false)
}

func kindOfData(data any) reflect.Kind {
	value := reflect.ValueOf(data)
	valueType := value.Kind()

	if valueType == reflect.Ptr {
		valueType = value.Elem().Kind()
	}
	return valueType
}
