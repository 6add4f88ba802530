package event

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Validate checks the struct tags on an inbound command payload. The server
// rejects invalid commands with an error frame; it never disconnects over
// them.
func Validate(payload interface{}) error {
	return validate.Struct(payload)
}
