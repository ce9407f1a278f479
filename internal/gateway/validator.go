package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEndpoint is returned for gateway endpoints that cannot be dialed.
var ErrInvalidEndpoint = errors.New("invalid gateway endpoint")

// Endpoint is the network address of a gateway.
type Endpoint struct {
	Host string `validate:"required,hostname_rfc1123|ip"`
	Port int    `validate:"min=1,max=65535"`
}

var validate = validator.New()

// ValidateEndpoint checks host and port before any network I/O.
func ValidateEndpoint(host string, port int) error {
	ep := Endpoint{Host: strings.TrimSpace(host), Port: port}
	if err := validate.Struct(ep); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidEndpoint, describe(verrs[0]))
		}
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Field() {
	case "Host":
		if fe.Tag() == "required" {
			return "host is required"
		}
		return fmt.Sprintf("host %q is not a hostname or IP", fe.Value())
	case "Port":
		return fmt.Sprintf("port %v is out of range", fe.Value())
	}
	return fe.Error()
}
