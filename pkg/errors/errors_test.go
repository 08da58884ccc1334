package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataTableIsConsistent(t *testing.T) {
	for code, meta := range metadataByCode {
		t.Run(string(code), func(t *testing.T) {
			require.NotEmpty(t, meta.PublicMessage)
			require.GreaterOrEqual(t, meta.HTTPStatus, 400)
			if meta.ExposeMessage {
				assert.Less(t, meta.HTTPStatus, 500, "server-side messages must stay internal")
			}
			if meta.Retryable {
				assert.GreaterOrEqual(t, meta.HTTPStatus, 500, "client errors are never retryable")
			}
		})
	}
}

func TestMetadataForDomainCodes(t *testing.T) {
	cases := map[Code]int{
		CodeInsufficientCredits:    http.StatusPaymentRequired,
		CodeUnsupportedCombination: http.StatusUnprocessableEntity,
		CodeStateConflict:          http.StatusUnprocessableEntity,
		CodeIdempotency:            http.StatusConflict,
		CodeRateLimit:              http.StatusTooManyRequests,
		CodeGenerationFailed:       http.StatusBadGateway,
		CodeUpstreamUnavailable:    http.StatusBadGateway,
		CodeDependency:             http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		assert.Equal(t, status, MetadataFor(code).HTTPStatus, code)
	}

	assert.True(t, MetadataFor(CodeInsufficientCredits).DetailsAllowed)
	assert.False(t, MetadataFor(CodeUpstreamUnavailable).DetailsAllowed)
	assert.False(t, MetadataFor(CodeGenerationFailed).ExposeMessage)
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorAccessors(t *testing.T) {
	e := New(CodeValidation, "missing email")
	assert.Equal(t, CodeValidation, e.Code())
	assert.Equal(t, "missing email", e.Message())
	assert.Nil(t, e.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing email", e.Error())

	assert.Same(t, e, e.WithDetails(map[string]string{"email": "is required"}))
	assert.NotNil(t, e.Details())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Message())
	assert.Nil(t, nilErr.WithDetails("x"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "load user")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeDependency, wrapped.Code())

	bare := Wrap(CodeConflict, nil, "already exists")
	assert.NoError(t, bare.Unwrap())
}

func TestAsAndIsCodeWalkTheChain(t *testing.T) {
	inner := New(CodeInsufficientCredits, "no credits left")
	outer := fmt.Errorf("authorize: %w", inner)

	assert.Same(t, inner, As(outer))
	assert.True(t, IsCode(outer, CodeInsufficientCredits))
	assert.False(t, IsCode(outer, CodeGenerationFailed))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
	assert.Nil(t, As(nil))
}
