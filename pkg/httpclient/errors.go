package httpclient

import (
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// maxErrorBody bounds how much of a failed response is kept in the error text.
const maxErrorBody = 512

// CheckResponse returns nil for 2xx/3xx responses. For anything else it
// drains and closes the body and returns an error describing the failure,
// typed as an AppError for the statuses callers commonly branch on.
func CheckResponse(resp *http.Response, target string) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := fmt.Sprintf("%s returned status %d", target, resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return apperrors.NotFound("resource", target)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(detail)
	case http.StatusForbidden:
		return apperrors.Forbidden(detail)
	case http.StatusServiceUnavailable:
		return apperrors.Unavailable(detail, nil)
	}

	if len(body) > 0 {
		return fmt.Errorf("%s: %s", detail, string(body))
	}
	return fmt.Errorf("%s", detail)
}

// IsClientError reports whether status is a 4xx code.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
