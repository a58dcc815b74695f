package auth

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateClaims rejects tokens whose user ID could not be used as a storage key.
func ValidateClaims(claims *CustomClaims) error {
	return validate.Struct(claims)
}
