package api

import (
	"net/http"

	"shareit/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const internalErrorMessage = "internal error"

// httpStatus maps a service error to its HTTP status code.
// InvalidState is reported as 400, like any other rejected request.
func httpStatus(err error) int {
	switch domain.Kind(err) {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrInvalidArgument, domain.ErrInvalidState:
		return http.StatusBadRequest
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch domain.Kind(err) {
	case domain.ErrNotFound:
		return codes.NotFound
	case domain.ErrInvalidArgument:
		return codes.InvalidArgument
	case domain.ErrInvalidState:
		return codes.FailedPrecondition
	case domain.ErrForbidden:
		return codes.PermissionDenied
	case domain.ErrConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

// grpcError converts a service error to a status error. Unclassified errors
// keep their text out of the response.
func grpcError(err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		return status.Error(code, internalErrorMessage)
	}
	return status.Error(code, err.Error())
}
