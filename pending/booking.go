package pending

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Status is the lifecycle state of a booking held by the store.
type Status string

// StatusPending is the only status a [Store] holds.
const StatusPending Status = "pending"

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Booking is a booking whose on-chain transaction has not yet been confirmed.
//
// Booking is a value type and is never modified after creation. The JSON
// field names are shared with browser clients reading the same slot.
type Booking struct {
	// TxID identifies the underlying transaction and is unique within a list.
	TxID string `json:"txId" validate:"required"`

	// PropertyID identifies the booked property.
	PropertyID int64 `json:"propertyId"`

	// CheckIn and CheckOut are timestamps in a unit chosen by the caller.
	CheckIn  int64 `json:"checkIn"`
	CheckOut int64 `json:"checkOut"`

	// GuestAddress identifies the booking party.
	GuestAddress string `json:"guestAddress"`

	// TotalAmount is expressed in the smallest currency unit. Fractional
	// amounts written by other clients are kept as they are.
	TotalAmount float64 `json:"totalAmount"`

	// CreatedAt is the timestamp the record was created.
	CreatedAt int64 `json:"createdAt"`

	// Status is always [StatusPending].
	Status Status `json:"status" validate:"eq=pending"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON field names so errors match the wire format
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports whether b can be held by a store: it needs a transaction
// id and the pending status.
func (b Booking) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "eq":
			msgs = append(msgs, fmt.Sprintf("%s must be %q, got %q", fe.Field(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid booking: %s", strings.Join(msgs, "; "))
}
