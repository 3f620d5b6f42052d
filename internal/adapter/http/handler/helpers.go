package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	t "github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

const maxBodyBytes = 1 << 20

// responses go through jsoniter; requests keep encoding/json for its typed decode errors
var encoder = jsoniter.ConfigCompatibleWithStandardLibrary

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data envelope, headers http.Header) error {
	js, err := encoder.MarshalIndent(data, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	js = append(js, '\n')

	maps.Copy(w.Header(), headers)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(js)

	return nil
}

// readJSON decodes exactly one JSON object of at most 1MB into dst and turns
// decoder errors into messages fit for the client.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxError        *json.SyntaxError
			unmarshalTypeError *json.UnmarshalTypeError
			maxBytesError      *http.MaxBytesError
		)

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		// golang/go#29035: no typed error for unknown fields yet
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return fmt.Errorf("body contains unknown key %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)
		default:
			return err
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

// GetCode maps service errors to HTTP statuses. Order matters: an expired pool
// that cannot be confirmed is a state error, not a gone resource.
func GetCode(err error) int {
	switch {
	case t.IsOneOf(err, t.ErrInvalidRequest):
		return http.StatusUnprocessableEntity
	case t.IsOneOf(err, t.ErrNotFound):
		return http.StatusNotFound
	case t.IsOneOf(err, t.ErrInvalidState, t.ErrConflict):
		return http.StatusConflict
	case t.IsOneOf(err, t.ErrPoolExpired):
		return http.StatusGone
	case t.IsOneOf(err, t.ErrConstraintViolation):
		return http.StatusUnprocessableEntity
	case t.IsOneOf(err, t.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
