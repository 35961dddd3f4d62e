/*
respond.go - Response envelope, error mapping and request decoding

ENVELOPE:
  success:  {"success": true,  "statusCode": 200, "message": "...", "data": ...}
  failure:  {"success": false, "statusCode": 400, "message": "...", "errors": {...}}

ERROR MAPPING:
  ValidationError                                  400 (field errors in "errors")
  ErrUnauthenticated, ErrInvalidCredentials         401
  ErrForbidden                                     403
  ErrNotFound                                      404
  Conflict, outstanding issuances, inventory races 409
  Unavailable, Blocked, DuplicateIssuance,
  AlreadyReturned                                  400
  anything else                                    500, logged, generic message

SEE ALSO:
  - library/errors.go: Error taxonomy
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/library-engine/access"
	"github.com/warp/library-engine/library"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// ENVELOPE
// =============================================================================

type envelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

type errorEnvelope struct {
	Success    bool              `json:"success"`
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, StatusCode: status, Message: message, Data: data})
}

// writeError maps err onto a status and writes the failure envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	resp := errorEnvelope{StatusCode: status, Message: message}

	var verr *library.ValidationError
	if errors.As(err, &verr) {
		resp.Errors = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": requestID(r),
		}).Error("request failed")
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, library.ErrValidation):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, access.ErrUnauthenticated):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, library.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, access.ErrForbidden.Error()
	case library.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case library.IsConflict(err):
		return http.StatusConflict, err.Error()
	case library.IsRuleViolation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

// =============================================================================
// DECODING AND VALIDATION
// =============================================================================

var errBodyTooLarge = errors.New("request body too large")

// decodeJSON reads exactly one JSON value into dst. Unknown fields are
// rejected. An empty body is accepted only when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			if allowEmpty {
				return nil
			}
			return library.NewValidationError("body", "must not be empty")
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, maxErr.Limit)
		case errors.As(err, &syntaxErr):
			return library.NewValidationError("body", fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
		case errors.Is(err, io.ErrUnexpectedEOF):
			return library.NewValidationError("body", "malformed JSON")
		case errors.As(err, &typeErr):
			field := typeErr.Field
			if field == "" {
				field = "body"
			}
			return library.NewValidationError(field, "has the wrong type")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			name := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return library.NewValidationError(name, "is not an accepted field")
		}
		return library.NewValidationError("body", err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return library.NewValidationError("body", "must contain a single JSON value")
	}
	return nil
}

var (
	cnicPattern  = regexp.MustCompile(`^[0-9]{5}-[0-9]{7}-[0-9]$`)
	phonePattern = regexp.MustCompile(`^(?:\+92|0)?3[0-9]{9}$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{f.Tag.Get("json"), f.Tag.Get("form")} {
			name := strings.SplitN(tag, ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	v.RegisterValidation("cnic", func(fl validator.FieldLevel) bool {
		return cnicPattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("pkphone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// validate runs struct tags and converts failures to a ValidationError.
func (h *Handler) validate(dst any) error {
	err := h.validator.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &library.ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters long", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters long", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "cnic":
		return "must look like 12345-1234567-1"
	case "pkphone":
		return "must be a valid phone number"
	}
	return "is invalid"
}
