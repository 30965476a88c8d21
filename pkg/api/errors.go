package api

import (
	"errors"
	"net/http"

	"github.com/uhyunpark/energy-gateway/pkg/ledger"
	"github.com/uhyunpark/energy-gateway/pkg/storage"
)

const (
	KindInvalidRequest = "InvalidRequest"
	KindInternal       = "InternalError"
)

// errorResponse maps err onto a status code and body. Submits that time out
// are not retryable: the ledger may already have applied them.
func errorResponse(err error, submit bool) (int, ErrorResponse) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, ErrorResponse{
			Error:   KindInvalidRequest,
			Message: verr.Message,
			Field:   verr.Field,
		}
	}

	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:   KindInternal,
			Message: "unexpected ledger response",
		}
	}

	body := ErrorResponse{Error: lerr.Kind.String(), Message: lerr.Msg}
	switch lerr.Kind {
	case ledger.KindConnection:
		body.Retryable = true
		return http.StatusServiceUnavailable, body
	case ledger.KindTimeout:
		body.Retryable = !submit
		return http.StatusGatewayTimeout, body
	default:
		return http.StatusInternalServerError, body
	}
}

// outcome classifies a submit for the journal.
func outcome(err error) string {
	if err == nil {
		return storage.OutcomeCommitted
	}
	switch k, _ := ledger.KindOf(err); k {
	case ledger.KindRejected:
		return storage.OutcomeRejected
	case ledger.KindTimeout:
		return storage.OutcomeUnknown
	default:
		return storage.OutcomeFailed
	}
}
