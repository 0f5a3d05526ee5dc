package runner

import "context"

// FailureLogger logs failed operations.
type FailureLogger interface {
	LogFailure(op string, err error)
}

// loggingRequester wraps a Requester with failure logging.
type loggingRequester struct {
	inner  Requester
	logger FailureLogger
}

// WithLogging wraps a Requester to log failures.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{
		inner:  req,
		logger: logger,
	}
}

func (l *loggingRequester) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil && l.logger != nil {
		l.logger.LogFailure(nameOf(l.inner), err)
	}
	return err
}

func (l *loggingRequester) Name() string {
	return nameOf(l.inner)
}
