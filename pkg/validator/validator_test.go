package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type accessPayload struct {
	ResourceType string `json:"resource_type" validate:"required,identifier"`
	ResourceName string `json:"resource_name" validate:"required,identifier"`
	Reason       string `json:"reason" validate:"max=20"`
}

func TestValidateStructSuccess(t *testing.T) {
	err := ValidateStruct(accessPayload{ResourceType: "database", ResourceName: "production_db", Reason: "debug"})
	require.NoError(t, err)
}

func TestValidateStructFailuresUseJSONNames(t *testing.T) {
	err := ValidateStruct(accessPayload{ResourceType: "", ResourceName: "Prod DB", Reason: "this reason is far too long"})
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, failures, 3)

	fields := map[string]string{}
	for _, f := range failures {
		fields[f.Field] = f.Tag
	}
	require.Equal(t, "required", fields["resource_type"])
	require.Equal(t, "identifier", fields["resource_name"])
	require.Equal(t, "max", fields["reason"])
	require.Contains(t, err.Error(), "reason failed on max=20")
}

func TestOneOfCaseInsensitive(t *testing.T) {
	type resolve struct {
		Decision string `json:"decision" validate:"required,oneofci=approve reject"`
	}
	require.NoError(t, ValidateStruct(resolve{Decision: " Approve"}))
	require.NoError(t, ValidateStruct(resolve{Decision: "REJECT"}))

	err := ValidateStruct(resolve{Decision: "maybe"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decision failed on oneofci=approve reject")
}

func TestIsIdentifier(t *testing.T) {
	require.True(t, IsIdentifier("aws_dev"))
	require.True(t, IsIdentifier("github.platform-api"))
	require.False(t, IsIdentifier("Stripe"))
	require.False(t, IsIdentifier("_hidden"))
	require.False(t, IsIdentifier(""))
}

func TestRegisterValidation(t *testing.T) {
	require.NoError(t, RegisterValidation("company_email", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) > len("@company.com") &&
			fl.Field().String()[len(fl.Field().String())-len("@company.com"):] == "@company.com"
	}))

	type payload struct {
		Email string `json:"email" validate:"company_email"`
	}
	require.NoError(t, ValidateStruct(payload{Email: "eve@company.com"}))
	require.Error(t, ValidateStruct(payload{Email: "eve@example.com"}))
}
