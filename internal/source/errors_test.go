package source

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPError_Classes(t *testing.T) {
	cases := map[int]error{
		404: ErrNotFound,
		401: ErrAuth,
		403: ErrAuth,
		429: ErrRateLimited,
		400: ErrRangeRejected,
		500: ErrTransientHTTP,
		502: ErrTransientHTTP,
	}
	for status, class := range cases {
		err := fmt.Errorf("chunk: %w", &HTTPError{Vendor: "tiingo", Status: status})
		assert.ErrorIs(t, err, class, "status %d", status)
	}
	assert.Contains(t, (&HTTPError{Vendor: "polygon", Status: 503}).Error(), "request failed with status 503")
	assert.Contains(t, (&HTTPError{Vendor: "polygon", Status: 404}).Error(), "symbol not found")
}

func TestFileNotFoundIsNotFound(t *testing.T) {
	assert.ErrorIs(t, ErrFileNotFound, ErrNotFound)
}

func TestFallbackError_ListsEveryFailure(t *testing.T) {
	err := &FallbackError{
		Request: "AAPL 1d",
		Failures: []Failure{
			{Source: "tiingo", Err: &HTTPError{Vendor: "tiingo", Status: 401}},
			{Source: "polygon", Err: fmt.Errorf("polygon: %w", ErrParse)},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "tiingo")
	assert.Contains(t, msg, "authentication failed")
	assert.Contains(t, msg, "polygon")
	assert.Contains(t, msg, "parse error")
	assert.True(t, errors.Is(err, ErrAuth))
	assert.True(t, errors.Is(err, ErrParse))
}
