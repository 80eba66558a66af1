package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

// intakeValidator checks RegisterInput field rules plus the channel-dependent
// requirements that struct tags cannot express.
type intakeValidator struct {
	v *validator.Validate
}

func newIntakeValidator() *intakeValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(channelRules, ports.RegisterInput{})
	return &intakeValidator{v: v}
}

// channelRules: onsite and online require a company; pre-registered requires an email.
func channelRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(ports.RegisterInput)

	for _, f := range []struct {
		value, name, field string
	}{
		{in.FirstName, "first_name", "FirstName"},
		{in.LastName, "last_name", "LastName"},
	} {
		if f.value != "" && strings.TrimSpace(f.value) == "" {
			sl.ReportError(f.value, f.name, f.field, "notblank", "")
		}
	}

	switch domain.RegistrationType(in.RegistrationType) {
	case domain.TypeOnsite, domain.TypeOnline:
		if strings.TrimSpace(in.CompanyName) == "" {
			sl.ReportError(in.CompanyName, "company_name", "CompanyName", "required_for_channel", in.RegistrationType)
		}
	case domain.TypePreRegistered:
		if strings.TrimSpace(in.Email) == "" {
			sl.ReportError(in.Email, "email", "Email", "required_for_channel", in.RegistrationType)
		}
	case domain.TypeComplimentary:
		if in.PaymentStatus != "" && in.PaymentStatus != string(domain.PaymentComplimentary) {
			sl.ReportError(in.PaymentStatus, "payment_status", "PaymentStatus", "complimentary_only", "")
		}
	}
}

// Validate returns nil or a *domain.ValidationError listing every violation.
func (iv *intakeValidator) Validate(in ports.RegisterInput) error {
	err := iv.v.Struct(in)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate intake: %w", err)
	}

	out := domain.NewValidationError()
	for _, fe := range ve {
		out.Add(fieldKey(fe), fieldMessage(fe))
	}
	return out
}

// fieldKey strips the struct prefix so map entries read "demographics[diet]".
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "email":
		return "must be a valid email"
	case "max":
		if fe.Kind() == reflect.Map {
			return fmt.Sprintf("must have at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "required_for_channel":
		return fmt.Sprintf("is required for %s registrations", fe.Param())
	case "complimentary_only":
		return "must be complimentary for complimentary registrations"
	default:
		return fmt.Sprintf("failed validation (%s)", fe.Tag())
	}
}
