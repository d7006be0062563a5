package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/liftlog-io/liftlog/internal/apperr"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			if name, _, _ := strings.Cut(fld.Tag.Get(key), ","); name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation(apperr.FieldError{
			Loc:  []string{"body"},
			Msg:  "Request body is not valid JSON for this endpoint",
			Type: "json_invalid",
		}).WithCause(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation(apperr.FieldError{
			Loc:  []string{"body"},
			Msg:  "Request body must contain a single JSON value",
			Type: "json_invalid",
		}).WithCause(err)
	}
	return validateStruct(dst, "body")
}

// parseForm accepts urlencoded and multipart bodies.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var err error
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "multipart/form-data" {
		err = r.ParseMultipartForm(maxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return apperr.Validation(apperr.FieldError{
			Loc:  []string{"body"},
			Msg:  "Request body is not a valid form",
			Type: "value_error",
		}).WithCause(err)
	}
	return nil
}

func validateStruct(v any, loc string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldError(loc, fe))
	}
	return apperr.Validation(fields...)
}

func fieldError(loc string, fe validator.FieldError) apperr.FieldError {
	out := apperr.FieldError{Loc: []string{loc, fe.Field()}}
	switch fe.Tag() {
	case "required":
		out.Msg, out.Type = "Field required", "missing"
	case "email":
		out.Msg, out.Type = "value is not a valid email address", "value_error"
	case "max":
		out.Msg, out.Type = fmt.Sprintf("String should have at most %s characters", fe.Param()), "string_too_long"
	default:
		out.Msg, out.Type = "Invalid value", "value_error"
	}
	return out
}
