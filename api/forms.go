package api

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/warp/library-engine/library"
	"github.com/warp/library-engine/upload"
)

// multipartMemory is how much of a form is held in memory before spilling
// file parts to disk.
const multipartMemory = 8 << 20

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart caps the body at two files plus the text fields.
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.opts.MaxFileSize+maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, maxErr.Limit)
		}
		return library.NewValidationError("body", "must be a valid multipart form")
	}
	return nil
}

// formFile returns the named file part, or nil when it was not sent. The
// caller closes the returned closer.
func (h *Handler) formFile(r *http.Request, field string) (*upload.File, func(), error) {
	f, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, library.NewValidationError(field, "could not be read")
	}
	if header.Size > h.opts.MaxFileSize {
		f.Close()
		return nil, func() {}, library.NewValidationError(field,
			fmt.Sprintf("must be at most %d bytes", h.opts.MaxFileSize))
	}
	return &upload.File{
		Name:        header.Filename,
		ContentType: contentType(header),
		Size:        header.Size,
		Body:        f,
	}, func() { f.Close() }, nil
}

func contentType(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return ct
}

// decodeForm copies form values into the string, int, *string and *int
// fields of dst named by their `form` tag. Absent keys leave fields alone.
func decodeForm(values url.Values, dst any) error {
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	fields := make(map[string]string)

	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			continue
		}
		value := strings.TrimSpace(raw[0])
		field := v.Field(i)

		target := field
		if field.Kind() == reflect.Pointer {
			target = reflect.New(field.Type().Elem()).Elem()
		}
		switch target.Kind() {
		case reflect.String:
			target.SetString(value)
		case reflect.Int:
			n, err := strconv.Atoi(value)
			if err != nil {
				fields[name] = "must be a number"
				continue
			}
			target.SetInt(int64(n))
		default:
			return fmt.Errorf("form field %s has unsupported kind %s", name, target.Kind())
		}
		if field.Kind() == reflect.Pointer {
			field.Set(target.Addr())
		}
	}
	if len(fields) > 0 {
		return &library.ValidationError{Fields: fields}
	}
	return nil
}
