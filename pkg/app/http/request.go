package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
)

// IdempotencyKeyHeader is the header every mutating entry point requires.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20 // 1MB

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReadBody reads the raw request body up to 1MB.
func ReadBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.BadRequestError(err, "failed to read request")
	}
	return body, nil
}

// DecodeJSON reads the request body into dst and validates it.
func DecodeJSON(r *http.Request, dst any) error {
	body, err := ReadBody(r)
	if err != nil {
		return err
	}
	return UnmarshalAndValidate(body, dst)
}

// UnmarshalAndValidate decodes body into dst and runs struct validation on it.
func UnmarshalAndValidate(body []byte, dst any) error {
	if err := Unmarshal(body, dst); err != nil {
		return err
	}
	return Validate(dst)
}

// Unmarshal decodes body into dst.
func Unmarshal(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

// Validate runs struct validation on v.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return apperrors.BadRequestError(err, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "invalid payload: " + strings.Join(fields, ", ")
}

// IdempotencyKey returns the trimmed Idempotency-Key header, rejecting keys shorter than minLen.
func IdempotencyKey(r *http.Request, minLen int) (string, error) {
	return CheckIdempotencyKey(r.Header.Get(IdempotencyKeyHeader), minLen)
}

// CheckIdempotencyKey validates a caller-supplied idempotency key.
func CheckIdempotencyKey(key string, minLen int) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", apperrors.BadRequestErrorWithCode(nil, apperrors.CodeMissingIdempotencyKey,
			"Idempotency-Key header is required.")
	}
	if len(key) < minLen {
		return "", apperrors.BadRequestErrorWithCode(nil, apperrors.CodeMissingIdempotencyKey,
			fmt.Sprintf("Idempotency-Key must be at least %d characters.", minLen))
	}
	return key, nil
}
