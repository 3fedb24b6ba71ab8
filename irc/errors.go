package irc

import (
	"errors"
	"strings"
)

// ErrAuthFailed indicates the server rejected the credentials. Fatal: the
// connection loop surfaces it to the operator instead of retrying.
var ErrAuthFailed = errors.New("irc: login authentication failed")

// ErrorClass represents whether a connection error should be retried.
type ErrorClass int

const (
	// ErrorClassRetryable indicates a transient transport failure.
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates the connection must not be retried.
	ErrorClassFatal
)

func (ec ErrorClass) String() string {
	if ec == ErrorClassFatal {
		return "fatal"
	}
	return "retryable"
}

// ClassifyConnError classifies connection errors. Credential rejections are
// fatal; everything else (resets, timeouts, DNS failures, closed sockets) is
// transient and handled by the reconnect loop.
func ClassifyConnError(err error) ErrorClass {
	if err == nil {
		return ErrorClassRetryable
	}
	if errors.Is(err, ErrAuthFailed) {
		return ErrorClassFatal
	}
	lower := strings.ToLower(err.Error())
	fatalPatterns := []string{
		"login authentication failed",
		"improperly formatted auth",
		"invalid nick",
	}
	for _, pattern := range fatalPatterns {
		if strings.Contains(lower, pattern) {
			return ErrorClassFatal
		}
	}
	return ErrorClassRetryable
}

// IsFatalConnError reports whether err must abort the connection loop.
func IsFatalConnError(err error) bool {
	return ClassifyConnError(err) == ErrorClassFatal
}
