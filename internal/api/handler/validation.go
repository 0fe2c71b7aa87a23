package handler

import (
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/breatheroute/cleanroute/internal/api/models"
)

// Validator validates request models and renders failures as field errors
// with English messages. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// NewValidator creates a Validator that names fields by their json or query
// tag, so errors read "origin.lat" rather than "Origin.Lat".
func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)

	return &Validator{validate: validate, trans: trans}
}

// Struct validates v and returns the failures as field errors. It returns
// nil when v is valid.
func (v *Validator) Struct(s interface{}) []models.FieldError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "", Message: err.Error(), Code: "invalid"}}
	}

	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: fe.Translate(v.trans),
			Code:    fe.Tag(),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// queryParser reads typed query parameters and collects parse failures.
type queryParser struct {
	values url.Values
	errs   []models.FieldError
}

func newQueryParser(values url.Values) *queryParser {
	return &queryParser{values: values}
}

// float returns nil when the parameter is absent so required checks apply.
func (p *queryParser) float(name string) *float64 {
	raw := strings.TrimSpace(p.values.Get(name))
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, models.FieldError{
			Field:   name,
			Message: name + " must be a number",
			Code:    "number",
		})
		return nil
	}
	return &f
}

// timestamp parses an RFC 3339 timestamp and returns nil when it is absent.
func (p *queryParser) timestamp(name string) *time.Time {
	raw := strings.TrimSpace(p.values.Get(name))
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		p.errs = append(p.errs, models.FieldError{
			Field:   name,
			Message: name + " must be an RFC 3339 timestamp",
			Code:    "datetime",
		})
		return nil
	}
	return &t
}

func (p *queryParser) int(name string) int {
	raw := strings.TrimSpace(p.values.Get(name))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, models.FieldError{
			Field:   name,
			Message: name + " must be an integer",
			Code:    "number",
		})
		return 0
	}
	return n
}
