package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/njoerd114/placesync/internal/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its validate tags. Failures are reported as
// apperr.KindValidationFailed naming every offending field.
func Validate(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.New(apperr.KindValidationFailed, op, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return apperr.Errorf(apperr.KindValidationFailed, op, "%s", strings.Join(msgs, "; "))
}

// ValidateEmail checks a single email address.
func ValidateEmail(op, email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return apperr.Errorf(apperr.KindValidationFailed, op, "invalid email %q", email)
	}
	return nil
}
