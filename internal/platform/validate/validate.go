// Package validate wraps go-playground/validator with english messages and
// the few custom tags the relay needs for records and options
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// FieldLevel aliases validator.FieldLevel
type FieldLevel = validator.FieldLevel

// Svc holds a singleton validator and translator
type Svc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	once sync.Once
	svc  *Svc

	chatIDRe = regexp.MustCompile(`^(-?\d+|@[A-Za-z][A-Za-z0-9_]{3,})$`)
	digitsRe = regexp.MustCompile(`^\+?\d{5,16}$`)
)

// Get returns the validator singleton, initializing on first use
func Get() *Svc {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// env and json names read better in messages than Go field names
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"env", "json"} {
				tag := fld.Tag.Get(key)
				if idx := strings.Index(tag, ","); idx >= 0 {
					tag = tag[:idx]
				}
				if tag != "" && tag != "-" {
					return tag
				}
			}
			return fld.Name
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		register(v, trans, "min", "{0} must be at least {1}", true)
		register(v, trans, "max", "{0} must be at most {1}", true)
		register(v, trans, "chat_id", "{0} must be a numeric chat id or an @channel name", false)
		register(v, trans, "msisdn", "{0} must be 5 to 16 digits with an optional leading +", false)

		_ = v.RegisterValidation("chat_id", func(fl validator.FieldLevel) bool {
			return chatIDRe.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
			return digitsRe.MatchString(fl.Field().String())
		})

		svc = &Svc{Validator: v, Translator: trans}
	})
	return svc
}

// RegisterValidation registers a custom tag on the singleton
func RegisterValidation(tag string, fn validator.Func) error {
	return Get().Validator.RegisterValidation(tag, fn)
}

// Struct validates v and maps the first failure to a Validation error with its field
func Struct(v any) error {
	err := Get().Validator.Struct(v)
	if err == nil {
		return nil
	}
	var inv *validator.InvalidValidationError
	if errors.As(err, &inv) {
		logger.Get().Error().Err(inv).Msg("validator internal error")
		return perr.Wrap(inv, perr.ErrorCodeUnknown, "validation error")
	}
	field, msg := FieldAndMessage(err)
	return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "%s", msg), field)
}

// Var validates a single value against a tag expression
func Var(field string, v any, tag string) error {
	if err := Get().Validator.Var(v, tag); err != nil {
		_, msg := FieldAndMessage(err)
		return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "%s %s", field, strings.TrimSpace(msg)), field)
	}
	return nil
}

// FieldAndMessage returns the first field and translated message
func FieldAndMessage(err error) (field, message string) {
	if err == nil {
		return "", ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			return fe.Field(), fe.Translate(Get().Translator)
		}
	}
	return "", err.Error()
}

func register(v *validator.Validate, trans ut.Translator, tag, text string, withParam bool) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			var msg string
			if withParam {
				msg, _ = ut.T(tag, fe.Field(), fe.Param())
			} else {
				msg, _ = ut.T(tag, fe.Field())
			}
			return msg
		},
	)
}
