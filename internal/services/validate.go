package services

import "github.com/go-playground/validator/v10"

// validate enforces the declarative constraints on request models before
// any state changes.
var validate = validator.New()
