package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequired(t *testing.T) {
	assert.Nil(t, Required("x", "value"))
	assert.NotNil(t, Required("x", ""))
	assert.NotNil(t, Required("x", "   "))
	assert.NotNil(t, Required("x", nil))
}

func TestAccountNumberRule(t *testing.T) {
	assert.Nil(t, AccountNumber("account_number", "0123456789"))
	assert.Nil(t, AccountNumber("account_number", ""), "empty passes; pair with Required")
	assert.NotNil(t, AccountNumber("account_number", "12345"))
	assert.NotNil(t, AccountNumber("account_number", "01234567890"))
	assert.NotNil(t, AccountNumber("account_number", "01234a6789"))
	assert.NotNil(t, AccountNumber("account_number", 123))
}

func TestDecimalAmountRule(t *testing.T) {
	assert.Nil(t, DecimalAmount("amount", "50000.00"))
	assert.Nil(t, DecimalAmount("amount", "-5"))
	assert.Nil(t, DecimalAmount("amount", ""))
	assert.NotNil(t, DecimalAmount("amount", "fifty"))
}

func TestValidatorCollectsErrors(t *testing.T) {
	v := NewValidator().
		Field("account_number", "123", Required, AccountNumber).
		Field("bank_name", "", Required)

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 2)

	err := v.Error()
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))
	assert.Contains(t, err.Error(), "account_number")
	assert.Contains(t, err.Error(), "bank_name")
}

func TestValidatorPasses(t *testing.T) {
	v := NewValidator().
		Field("account_number", "0123456789", Required, AccountNumber).
		Field("amount", "100.50", DecimalAmount).
		Field("note", "short", MaxLength(10))

	assert.False(t, v.HasErrors())
	assert.NoError(t, v.Error())
}
