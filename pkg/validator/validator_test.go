package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type preferencePayload struct {
	Frequency   string `json:"frequency" validate:"omitempty,oneof=immediate daily_digest weekly_digest"`
	EnableEmail *bool  `json:"enable_email" validate:"required"`
	Token       string `form:"token" validate:"required,min=16"`
}

func TestValidateStructSuccess(t *testing.T) {
	enabled := true
	payload := preferencePayload{
		Frequency:   "daily_digest",
		EnableEmail: &enabled,
		Token:       "abcdefghijklmnopqrstuvwxyz",
	}

	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	payload := preferencePayload{
		Frequency: "hourly",
		Token:     "short",
	}

	err := ValidateStruct(payload)
	require.Error(t, err)

	var vErrs ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	require.Len(t, vErrs, 3)

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	require.Equal(t, "oneof", fields["frequency"])
	require.Equal(t, "required", fields["enable_email"])
	require.Equal(t, "min", fields["token"])
}

func TestValidateVarRenamesField(t *testing.T) {
	err := ValidateVar("token", "", "required")
	require.Error(t, err)

	var vErrs ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	require.Equal(t, "token", vErrs[0].Field)

	require.NoError(t, ValidateVar("token", "present", "required"))
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("dive_category", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "new_dives"
	})
	require.NoError(t, err)

	type custom struct {
		Value string `validate:"dive_category"`
	}

	require.NoError(t, ValidateStruct(custom{Value: "new_dives"}))
	require.Error(t, ValidateStruct(custom{Value: "other"}))
}
