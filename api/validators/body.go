package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

var structValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so details match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}()

// DecodeJSONBody reads one JSON object into dest and runs its validate tags.
// Unknown fields, trailing data and bodies over MaxBodyBytes are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes+1))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return bodyError(err)
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	if dec.InputOffset() > MaxBodyBytes {
		return tooLarge()
	}
	return Struct(dest)
}

// Struct validates v and converts failures into a CodeValidation error whose
// details map each offending field to a short message.
func Struct(v any) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describeRule(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func bodyError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return pkgerrors.New(pkgerrors.CodeValidation, "request body is required")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return tooLargeOrTruncated(err)
	case errors.As(err, &syntaxErr):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed JSON").
			WithDetails(map[string]any{"offset": syntaxErr.Offset})
	case errors.As(err, &typeErr):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]string{typeErr.Field: "must be " + typeErr.Type.String()})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]string{field: "is not allowed"})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body")
}

// A limited reader ends early, so an oversize body surfaces as a truncated one.
func tooLargeOrTruncated(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body truncated or larger than 1MiB")
}

func tooLarge() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "request body larger than 1MiB")
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url", "http_url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}
