package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bankForm struct {
	IFSC          string `json:"ifsc" validate:"ifsc"`
	AccountHolder string `json:"accountHolderName" validate:"holder_name"`
	AccountNumber string `json:"accountNumber" validate:"account_number"`
	AccountType   string `json:"accountType" validate:"oneof=savings current" msg:"Please select account type"`
	BankName      string `json:"bankName" validate:"notblank"`
}

func TestStruct_Valid(t *testing.T) {
	fe, err := Struct(bankForm{
		IFSC:          "SBIN0001234",
		AccountHolder: "Priya Sharma",
		AccountNumber: "123456789012",
		AccountType:   "savings",
		BankName:      "State Bank of India",
	})
	require.NoError(t, err)
	assert.Nil(t, fe)
}

func TestStruct_FieldMessages(t *testing.T) {
	fe, err := Struct(bankForm{IFSC: "bad", AccountType: "fixed"})
	require.NoError(t, err)

	assert.Equal(t, "Please enter a valid IFSC code", fe["ifsc"])
	assert.Equal(t, messages["holder_name"], fe["accountHolderName"])
	assert.Equal(t, messages["account_number"], fe["accountNumber"])
	assert.Equal(t, "Please select account type", fe["accountType"])
	assert.Equal(t, "This field is required", fe["bankName"])
}

func TestStruct_NotAStruct(t *testing.T) {
	_, err := Struct("nope")
	assert.Error(t, err)
}

func TestMessageFor_Unknown(t *testing.T) {
	assert.Equal(t, "Invalid value", MessageFor("whatever"))
}
