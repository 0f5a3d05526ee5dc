package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"

	"golang.org/x/oauth2"

	"github.com/torosent/kvcrank/internal/runner"
)

// Error categories reported in the Errors section of a stats block.
const (
	ErrorTimeout           = "Timeout"
	ErrorCanceled          = "Canceled"
	ErrorConnRefused       = "Connection refused"
	ErrorConnReset         = "Connection reset"
	ErrorNetwork           = "Network error"
	ErrorRequestURL        = "Request URL error"
	ErrorAuthToken         = "Auth token error"
	ErrorOther             = "Other error"
	errorHTTPStatusPattern = "HTTP %dxx response"
)

// Classify maps a failed operation's error to a small fixed set of
// categories so reports stay readable under high failure volume.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var httpErr *runner.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf(errorHTTPStatusPattern, httpErr.StatusCode/100)
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return ErrorAuthToken
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ErrorTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCanceled
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorConnRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorConnReset
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorRequestURL
	}
	return ErrorOther
}
