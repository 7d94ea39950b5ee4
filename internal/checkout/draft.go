package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
)

var ErrValidation = errors.New("checkout details are incomplete")

// Draft is the customer form of one checkout session. AmountMinor echoes the
// total the customer confirmed; zero skips that check.
type Draft struct {
	Name        string         `json:"name" validate:"required"`
	Email       string         `json:"email" validate:"required,email"`
	Phone       string         `json:"phone" validate:"required"`
	Address     string         `json:"address" validate:"required"`
	City        string         `json:"city,omitempty"`
	State       string         `json:"state,omitempty"`
	PostalCode  string         `json:"postalCode,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Method      payment.Method `json:"method" validate:"required,oneof=online cod"`
	AmountMinor int64          `json:"amountMinor,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims every text field
func (d Draft) Normalize() Draft {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Address = strings.TrimSpace(d.Address)
	d.City = strings.TrimSpace(d.City)
	d.State = strings.TrimSpace(d.State)
	d.PostalCode = strings.TrimSpace(d.PostalCode)
	d.Notes = strings.TrimSpace(d.Notes)
	d.Method = payment.Method(strings.ToLower(strings.TrimSpace(string(d.Method))))
	return d
}

// Validate returns an ErrValidation listing every problem in one message
func (d Draft) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		case "email":
			invalid = append(invalid, "email address is invalid")
		case "oneof":
			invalid = append(invalid, "payment method must be online or cod")
		default:
			invalid = append(invalid, fe.Field()+" is invalid")
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "please fill in: "+strings.Join(missing, ", "))
	}
	parts = append(parts, invalid...)
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, "; "))
}

// Customer converts the form to the order customer fields
func (d Draft) Customer() order.Customer {
	return order.Customer{
		Name:       d.Name,
		Email:      d.Email,
		Phone:      d.Phone,
		Address:    d.Address,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
	}
}
