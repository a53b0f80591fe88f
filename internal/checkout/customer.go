package checkout

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

// CustomerPolicy is the per-deployment rule set for customer details on a sale.
type CustomerPolicy struct {
	RequireName  bool
	RequirePhone bool
	PhoneDigits  int
	PhoneRegion  string
}

type customerFields struct {
	Name  string `validate:"max=120"`
	Phone string `validate:"omitempty,max=20"`
}

// Validate checks info and returns it trimmed, with the phone reduced to its
// national digits.
func (p CustomerPolicy) Validate(v *validator.Validate, info domain.CustomerInfo) (domain.CustomerInfo, error) {
	info.Name = strings.TrimSpace(info.Name)
	info.Phone = strings.TrimSpace(info.Phone)

	if err := v.Struct(customerFields{Name: info.Name, Phone: info.Phone}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return info, &InvalidCustomerError{Field: fieldName(verrs[0].Field()), Reason: "failed " + verrs[0].Tag()}
		}
		return info, &InvalidCustomerError{Field: "customer", Reason: err.Error()}
	}

	if info.Name == "" && p.RequireName {
		return info, &InvalidCustomerError{Field: "customer_name", Reason: "required"}
	}

	if info.Phone == "" {
		if p.RequirePhone {
			return info, &InvalidCustomerError{Field: "customer_phone", Reason: "required"}
		}
		return info, nil
	}

	national, err := p.normalizePhone(info.Phone)
	if err != nil {
		return info, err
	}
	info.Phone = national
	return info, nil
}

func (p CustomerPolicy) normalizePhone(raw string) (string, error) {
	for _, r := range raw {
		if !unicode.IsDigit(r) && !strings.ContainsRune("+-() ", r) {
			return "", &InvalidCustomerError{Field: "customer_phone", Reason: "must contain digits only"}
		}
	}

	region := p.PhoneRegion
	if region == "" {
		region = "IN"
	}
	num, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", &InvalidCustomerError{Field: "customer_phone", Reason: err.Error()}
	}

	if got := libphonenumber.GetRegionCodeForNumber(num); got != region {
		return "", &InvalidCustomerError{Field: "customer_phone", Reason: "number is not from region " + region}
	}

	national := libphonenumber.GetNationalSignificantNumber(num)
	if p.PhoneDigits > 0 && len(national) != p.PhoneDigits {
		return "", &InvalidCustomerError{Field: "customer_phone", Reason: "wrong number of digits"}
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", &InvalidCustomerError{Field: "customer_phone", Reason: "not a valid number for region " + region}
	}
	return national, nil
}

func fieldName(structField string) string {
	switch structField {
	case "Name":
		return "customer_name"
	case "Phone":
		return "customer_phone"
	default:
		return strings.ToLower(structField)
	}
}
