package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields and enum values of an inbound event.
func Validate(ev Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}
	if err := validate.Struct(ev); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, ev.Type(), err)
	}
	ok := true
	switch e := ev.(type) {
	case ParticipantStatusChanged:
		ok = e.Status.Valid()
	case EndpointStatusChanged:
		ok = e.Status.Valid()
	case ConferenceStatusChanged:
		ok = e.Status.Valid()
	case ConsultationResponse:
		ok = e.Answer.Valid()
	}
	if !ok {
		return fmt.Errorf("%w: %s: unknown enum value", ErrMalformedEvent, ev.Type())
	}
	return nil
}
