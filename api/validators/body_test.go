package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

type signupBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Plan     string `json:"plan,omitempty" validate:"omitempty,oneof=single pro"`
}

func decode(t *testing.T, body string) (signupBody, error) {
	t.Helper()
	var dest signupBody
	req := httptest.NewRequest("POST", "/api/v1/auth/register", strings.NewReader(body))
	return dest, DecodeJSONBody(req, &dest)
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	d, ok := typed.Details().(map[string]string)
	require.True(t, ok, "details: %#v", typed.Details())
	return d
}

func TestDecodeJSONBodyValid(t *testing.T) {
	got, err := decode(t, `{"email":"owner@example.com","password":"longenough","plan":"pro"}`)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", got.Email)
}

func TestDecodeJSONBodyReportsJSONFieldNames(t *testing.T) {
	_, err := decode(t, `{"email":"nope","password":"short","plan":"enterprise"}`)
	d := details(t, err)
	assert.Equal(t, "must be a valid email", d["email"])
	assert.Equal(t, "must be at least 8 characters", d["password"])
	assert.Equal(t, "must be one of: single, pro", d["plan"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	_, err := decode(t, `{"email":"owner@example.com","password":"longenough","role":"admin"}`)
	assert.Equal(t, "is not allowed", details(t, err)["role"])
}

func TestDecodeJSONBodyRejectsWrongTypes(t *testing.T) {
	_, err := decode(t, `{"email":42,"password":"longenough"}`)
	assert.Equal(t, "must be string", details(t, err)["email"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"syntax":   `{"email":`,
		"trailing": `{"email":"owner@example.com","password":"longenough"} {}`,
		"oversize": `{"email":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, body)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/scans?limit=50&page=abc&big=1000", nil)

	v, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	v, err = ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = ParseQueryInt(req, "page", 1, 1, 10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(req, "big", 1, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "acme", SanitizeString("  acme  ", 0))
	assert.Equal(t, "ac", SanitizeString(" acme", 2))
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "caf", SanitizeString("café", 4))
	assert.Equal(t, "café", SanitizeString("café", 5))
	assert.Equal(t, "ab", SanitizeString("a\x00b\n", 0))
}
