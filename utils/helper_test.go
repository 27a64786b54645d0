package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStructCollectsFields(t *testing.T) {
	type input struct {
		Name  string `validate:"required"`
		Email string `validate:"required,email"`
	}
	err := ValidateStruct(input{Email: "nope"})
	require.Error(t, err)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrorKindValidation, e.Kind)
	assert.Equal(t, "invalid fields: Email (email), Name (required)", e.Message)
	assert.Equal(t, map[string]string{"Name": "required", "Email": "email"}, e.Fields)

	assert.NoError(t, ValidateStruct(input{Name: "a", Email: "a@example.com"}))
}

func TestParseId(t *testing.T) {
	id, err := ParseId(" 42 ", "member id")
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	for _, raw := range []string{"", "0", "-3", "abc"} {
		_, err := ParseId(raw, "member id")
		assert.True(t, IsKind(err, ErrorKindValidation), raw)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	assert.NoError(t, ValidatePhoneNumber("01712345678", CountryCode))
	assert.NoError(t, ValidatePhoneNumber("+8801712345678", CountryCode))
	assert.Error(t, ValidatePhoneNumber("12", CountryCode))
}

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate(7, "a@example.com", "admin")
	require.NoError(t, err)

	parsed, err := JwtValidate(token)
	require.NoError(t, err)
	assert.True(t, parsed.Valid)

	_, err = JwtValidate(token + "x")
	assert.Error(t, err)
}
