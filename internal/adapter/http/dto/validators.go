package dto

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"regexp"
	"strings"

	"banking-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const maxTokenLength = 128

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("owner_id", validateOwnerID)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// ValidIdempotencyToken applies the body token rules to a header value.
func ValidIdempotencyToken(token string) bool {
	return len(token) <= maxTokenLength && safeStringRe.MatchString(token)
}

func validateOwnerID(fl validator.FieldLevel) bool {
	return domain.ValidateOwnerID(fl.Field().String()) == nil
}

// DecodeJSON decodes a request body, trims its string fields and only then
// runs the binding validator, so padded values validate as their trimmed form.
func DecodeJSON(body io.Reader, v interface{}) error {
	if body == nil {
		return errors.New("request body is empty")
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	TrimStrings(v)
	return binding.Validator.ValidateStruct(v)
}

// TrimStrings trims surrounding whitespace from every exported string field
// (including *string) of a struct pointer. Call it before validation.
func TrimStrings(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	trimFields(rv.Elem())
}

func trimFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			if elem := f.Elem(); elem.Kind() == reflect.String {
				elem.SetString(strings.TrimSpace(elem.String()))
			}
		}
	}
}
