// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SignupInput is the raw signup request.
type SignupInput struct {
	FullName        string `json:"fullName" jsonschema:"minLength=2,maxLength=255"`
	Email           string `json:"email" jsonschema:"format=email,maxLength=255"`
	Password        string `json:"password" jsonschema:"minLength=8,maxLength=255"`
	ConfirmPassword string `json:"confirmPassword"`
	UserRole        string `json:"userRole,omitempty" jsonschema:"enum=student,enum=mentor,enum=admin"`
	ProfileImageURL string `json:"profileImageUrl,omitempty" jsonschema:"format=uri,maxLength=1024"`
}

// Normalize trims the name and canonicalizes the email in place.
func (in *SignupInput) Normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = NormalizeEmail(in.Email)
	in.ProfileImageURL = strings.TrimSpace(in.ProfileImageURL)
}

// PasswordChangeInput is the raw password-change request.
type PasswordChangeInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" jsonschema:"minLength=8,maxLength=255"`
	ConfirmPassword string `json:"confirmPassword"`
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors extracts the field details from a CodeValidationFailed error.
func FieldErrors(err error) []FieldError {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	fields, _ := oopsErr.Context()["fields"].([]FieldError) //nolint:errcheck // absent means none
	return fields
}

func validationError(fields []FieldError) error {
	return oops.Code(CodeValidationFailed).
		With("fields", fields).
		Errorf("validation failed")
}

// fieldMessages maps field → keyword → client message.
var fieldMessages = map[string]map[string]string{
	"fullName": {
		"minLength": "Full name must be at least 2 characters",
		"maxLength": "Full name must be less than 255 characters",
	},
	"email": {
		"format":    "Please provide a valid email address",
		"maxLength": "Email must be less than 255 characters",
	},
	"password": {
		"minLength": "Password must be at least 8 characters",
		"maxLength": "Password must be less than 255 characters",
	},
	"newPassword": {
		"minLength": "Password must be at least 8 characters",
		"maxLength": "Password must be less than 255 characters",
	},
	"userRole": {
		"enum": "Role must be one of: student, mentor, admin",
	},
	"profileImageUrl": {
		"format":    "Please provide a valid URL",
		"maxLength": "Profile image URL must be less than 1024 characters",
	},
}

const (
	msgPasswordComposition = "Password must contain at least one uppercase letter, one lowercase letter, and one number"
	msgPasswordsMismatch   = "Passwords don't match"
	msgCurrentRequired     = "Please provide your current password"
)

// Validator checks signup and password-change input against JSON Schemas
// reflected from the input types, plus the rules JSON Schema cannot express
// without lookahead regexes.
type Validator struct {
	signup         *jschema.Schema
	passwordChange *jschema.Schema
}

// NewValidator compiles the input schemas.
func NewValidator() (*Validator, error) {
	signup, err := compileSchema(&SignupInput{}, "signup")
	if err != nil {
		return nil, err
	}
	passwordChange, err := compileSchema(&PasswordChangeInput{}, "password-change")
	if err != nil {
		return nil, err
	}
	return &Validator{signup: signup, passwordChange: passwordChange}, nil
}

// GenerateSchema returns the JSON Schema document for an input type.
func GenerateSchema(v any, name string) ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(v)
	schema.ID = jsonschema.ID(schemaURL(name))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("schema", name).Wrap(err)
	}
	return data, nil
}

func schemaURL(name string) string {
	return "https://mentorhub.dev/schemas/" + name + ".json"
}

func compileSchema(v any, name string) (*jschema.Schema, error) {
	data, err := GenerateSchema(v, name)
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}

	c := jschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(schemaURL(name), doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	sch, err := c.Compile(schemaURL(name))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	return sch, nil
}

// ValidateSignup checks normalized signup input. It returns a
// CodeValidationFailed error listing every offending field.
func (v *Validator) ValidateSignup(in SignupInput) error {
	violations, err := schemaViolations(v.signup, in)
	if err != nil {
		return err
	}

	var fields []FieldError
	for _, name := range []string{"fullName", "email", "password", "userRole", "profileImageUrl"} {
		if keyword, bad := violations[name]; bad {
			fields = append(fields, FieldError{Field: name, Message: messageFor(name, keyword)})
			continue
		}
		if name == "password" && !hasPasswordComposition(in.Password) {
			fields = append(fields, FieldError{Field: name, Message: msgPasswordComposition})
		}
	}
	if in.Password != in.ConfirmPassword {
		fields = append(fields, FieldError{Field: "confirmPassword", Message: msgPasswordsMismatch})
	}

	if len(fields) > 0 {
		return validationError(fields)
	}
	return nil
}

// ValidatePasswordChange checks a password-change request.
func (v *Validator) ValidatePasswordChange(in PasswordChangeInput) error {
	violations, err := schemaViolations(v.passwordChange, in)
	if err != nil {
		return err
	}

	var fields []FieldError
	if in.CurrentPassword == "" {
		fields = append(fields, FieldError{Field: "currentPassword", Message: msgCurrentRequired})
	}
	if keyword, bad := violations["newPassword"]; bad {
		fields = append(fields, FieldError{Field: "newPassword", Message: messageFor("newPassword", keyword)})
	} else if !hasPasswordComposition(in.NewPassword) {
		fields = append(fields, FieldError{Field: "newPassword", Message: msgPasswordComposition})
	}
	if in.NewPassword != in.ConfirmPassword {
		fields = append(fields, FieldError{Field: "confirmPassword", Message: msgPasswordsMismatch})
	}

	if len(fields) > 0 {
		return validationError(fields)
	}
	return nil
}

// schemaViolations validates in against sch and returns the first failing
// keyword for each top-level field.
func schemaViolations(sch *jschema.Schema, in any) (map[string]string, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, oops.Code("VALIDATION_ENCODE_FAILED").Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("VALIDATION_ENCODE_FAILED").Wrap(err)
	}

	violations := make(map[string]string)
	err = sch.Validate(doc)
	if err == nil {
		return violations, nil
	}
	ve, ok := err.(*jschema.ValidationError) //nolint:errorlint // Validate returns the concrete type
	if !ok {
		return nil, oops.Code("VALIDATION_FAILED_UNEXPECTEDLY").Wrap(err)
	}
	collectLeaves(ve, violations)
	return violations, nil
}

func collectLeaves(ve *jschema.ValidationError, out map[string]string) {
	if len(ve.Causes) == 0 {
		if len(ve.InstanceLocation) == 0 {
			return
		}
		field := ve.InstanceLocation[0]
		if _, seen := out[field]; seen {
			return
		}
		keyword := ""
		if path := ve.ErrorKind.KeywordPath(); len(path) > 0 {
			keyword = path[len(path)-1]
		}
		out[field] = keyword
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, out)
	}
}

func messageFor(field, keyword string) string {
	if msg, ok := fieldMessages[field][keyword]; ok {
		return msg
	}
	return fmt.Sprintf("Invalid %s", field)
}

// hasPasswordComposition reports whether password has at least one
// lowercase letter, one uppercase letter and one digit.
func hasPasswordComposition(password string) bool {
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return lower && upper && digit
}
