// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryNoError is used when a call completed without error.
	CategoryNoError Category = iota
	// CategoryDataError The client sends some invalid data in the request,
	// for example, missing or incorrect content in the payload or parameters.
	// Could also represent a generic client error.
	CategoryDataError
	// CategoryUnauthorized The client is not authenticated
	CategoryUnauthorized
	// CategoryForbidden The client is not allowed to access the requested resource
	CategoryForbidden
	// CategoryResourceNotFound The client is attempting to access a resource that does not exist
	CategoryResourceNotFound
	// CategoryNotSupported The requested functionality is not supported
	CategoryNotSupported
	// CategoryDataConflict The client send some data that can create conflict with existing data
	CategoryDataConflict
	// CategoryDependencyFailure A dependent service is throwing errors
	CategoryDependencyFailure
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryUnauthorized:
		return "CategoryUnauthorized"
	case CategoryForbidden:
		return "CategoryForbidden"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryNotSupported:
		return "CategoryNotSupported"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	default:
		return "CategoryGeneralError"
	}
}

// Stable machine-readable codes returned in the error envelope.
const (
	CodeInvalidPayload          = "INVALID_PAYLOAD"
	CodeInvalidQuery            = "INVALID_QUERY"
	CodeMissingIdempotencyKey   = "MISSING_IDEMPOTENCY_KEY"
	CodeIdempotencyConflict     = "IDEMPOTENCY_CONFLICT"
	CodeIdempotencyInProgress   = "IDEMPOTENCY_IN_PROGRESS"
	CodeQuoteNotFound           = "QUOTE_NOT_FOUND"
	CodeQuoteExpired            = "QUOTE_EXPIRED"
	CodeTransferNotFound        = "TRANSFER_NOT_FOUND"
	CodeTransferValidation      = "TRANSFER_VALIDATION_ERROR"
	CodeTransferLimitExceeded   = "TRANSFER_LIMIT_EXCEEDED"
	CodeTransferStateInvalid    = "TRANSFER_STATE_INVALID"
	CodePayoutNotFound          = "PAYOUT_NOT_FOUND"
	CodePayoutStateInvalid      = "PAYOUT_STATE_INVALID"
	CodePayoutInProgress        = "PAYOUT_IN_PROGRESS"
	CodeFeatureDisabled         = "FEATURE_DISABLED"
	CodeWebhookSignatureInvalid = "WEBHOOK_SIGNATURE_INVALID"
	CodeReceiverKYCNotFound     = "RECEIVER_KYC_NOT_FOUND"
	CodeInvalidSignatureHeaders = "INVALID_SIGNATURE_HEADERS"
	CodeInvalidCallbackSig      = "INVALID_CALLBACK_SIGNATURE"
	CodeInvalidFundingEvent     = "INVALID_FUNDING_EVENT"
	CodeJournalNotFound         = "JOURNAL_NOT_FOUND"
	CodeRunNotFound             = "RECONCILIATION_RUN_NOT_FOUND"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeNotFound                = "NOT_FOUND"
	CodeConflict                = "CONFLICT"
	CodeNotSupported            = "NOT_SUPPORTED"
	CodeInternal                = "INTERNAL_ERROR"
)

// ServiceError represents service specific type that
// is used all over the services.
type ServiceError struct {
	Category Category
	Code     string
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// HasCode checks that provided error is a ServiceError carrying code.
func HasCode(err error, code string) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == code
}

// IsInternalError checks that provided error is a Internal system error
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && (svcErr.Category < CategoryDependencyFailure) {
		return false
	}
	return true
}

// GeneralError returns a general service error.
// The message sent to the user is generic, the wrapped error is only logged.
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &ServiceError{
		Category: CategoryGeneralError,
		Code:     CodeInternal,
		Message:  "Unexpected internal error.",
		Err:      err,
	}
}

// ResourceNotFoundError returns an error with category ResourceNotFound
// the error message provided is returned to the user
// the err object provided is logged in logger
func ResourceNotFoundError(err error, message string) error {
	return ResourceNotFoundErrorWithCode(err, CodeNotFound, message)
}

// ResourceNotFoundErrorWithCode is ResourceNotFoundError with an explicit code.
func ResourceNotFoundErrorWithCode(err error, code, message string) error {
	if err == nil {
		err = errors.New("resource not found: " + message)
	}
	return &ServiceError{Category: CategoryResourceNotFound, Code: code, Message: message, Err: err}
}

// BadRequestError returns  an error with category DataError
// the error message provided is returned to the user
// the error object provided is logged in logger
func BadRequestError(err error, message string) error {
	return BadRequestErrorWithCode(err, CodeInvalidPayload, message)
}

// BadRequestErrorWithCode is BadRequestError with an explicit code.
func BadRequestErrorWithCode(err error, code, message string) error {
	if err == nil {
		err = errors.New("bad request: " + message)
	}
	return &ServiceError{Category: CategoryDataError, Code: code, Message: message, Err: err}
}

// NotSupportedError returns  an error with category NotSupported
func NotSupportedError(err error, message string) error {
	if err == nil {
		err = errors.New("not supported: " + message)
	}
	return &ServiceError{Category: CategoryNotSupported, Code: CodeNotSupported, Message: message, Err: err}
}

// ForbiddenError returns a an error with category CategoryForbidden
// the error message provided is returned to the user
// the error object provided is logged in logger
func ForbiddenError(err error, message string) error {
	return ForbiddenErrorWithCode(err, CodeForbidden, message)
}

// ForbiddenErrorWithCode is ForbiddenError with an explicit code.
func ForbiddenErrorWithCode(err error, code, message string) error {
	if err == nil {
		err = errors.New("request forbidden")
	}
	return &ServiceError{Category: CategoryForbidden, Code: code, Message: message, Err: err}
}

// UnAuthorizedError returns an error with category CategoryUnauthorized
// the error message provided is returned to the user
// the error object provided is logged in logger
func UnAuthorizedError(err error, message string) error {
	return UnAuthorizedErrorWithCode(err, CodeUnauthorized, message)
}

// UnAuthorizedErrorWithCode is UnAuthorizedError with an explicit code.
func UnAuthorizedErrorWithCode(err error, code, message string) error {
	if err == nil {
		err = errors.New("unauthorized")
	}
	return &ServiceError{Category: CategoryUnauthorized, Code: code, Message: message, Err: err}
}

// ConflictError returns an error with category CategoryDataConflict
// the error message provided is returned to the user
// the error object provided is logged in logger
func ConflictError(err error, message string) error {
	return ConflictErrorWithCode(err, CodeConflict, message)
}

// ConflictErrorWithCode is ConflictError with an explicit code.
func ConflictErrorWithCode(err error, code, message string) error {
	if err == nil {
		err = errors.New("conflict")
	}
	return &ServiceError{Category: CategoryDataConflict, Code: code, Message: message, Err: err}
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryNotSupported:
		return http.StatusMethodNotAllowed
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
