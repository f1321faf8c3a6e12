package leads

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError maps the path of every invalid field (e.g. `email` or `leads[2].name`) to what's wrong with it
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

/*
	inputRequest is an Input as it comes over the wire. Pointers so that a missing field can be told
	apart from an empty one: every field must be present but may be ""
*/
type inputRequest struct {
	Name   *string `json:"name" validate:"required"`
	Email  *string `json:"email" validate:"required"`
	Phone  *string `json:"phone" validate:"required"`
	Source *string `json:"source" validate:"required"`
	Status *string `json:"status" validate:"required"`
	Date   *string `json:"date" validate:"required"`
}

func (r *inputRequest) input() Input {
	return Input{
		Name:   *r.Name,
		Email:  *r.Email,
		Phone:  *r.Phone,
		Source: *r.Source,
		Status: *r.Status,
		Date:   *r.Date,
	}
}

type importRequest struct {
	Leads []*inputRequest `json:"leads" validate:"required,dive,required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report fields by their json name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseInput decodes & validates the body of a create request
func ParseInput(data []byte) (Input, error) {
	r := &inputRequest{}
	if err := decode(data, r); err != nil {
		return Input{}, err
	}
	if err := validateStruct(r); err != nil {
		return Input{}, err
	}
	return r.input(), nil
}

// ParseImport decodes & validates `{"leads": [...]}`. Nothing is returned unless every lead is valid
func ParseImport(data []byte) ([]Input, error) {
	r := &importRequest{}
	if err := decode(data, r); err != nil {
		return nil, err
	}
	if err := validateStruct(r); err != nil {
		return nil, err
	}

	ins := make([]Input, 0, len(r.Leads))
	for _, l := range r.Leads {
		ins = append(ins, l.input())
	}
	return ins, nil
}

// ParsePatch decodes a partial update. Unknown fields, id included, are ignored; an empty body is `{}`
func ParsePatch(data []byte) (Patch, error) {
	p := Patch{}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	if err := decode(data, &p); err != nil {
		return Patch{}, err
	}
	return p, nil
}

func decode(data []byte, v interface{}) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return &ValidationError{Fields: map[string]string{
				"body": "Expected object, received " + typeErr.Value,
			}}
		}
		return &ValidationError{Fields: map[string]string{
			typeErr.Field: fmt.Sprintf("Expected %s, received %s", typeErr.Type, typeErr.Value),
		}}
	}

	return &ValidationError{Fields: map[string]string{"body": "Malformed JSON"}}
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	ve := &ValidationError{Fields: map[string]string{}}
	for _, fe := range fieldErrs {
		ve.Fields[fieldPath(fe.Namespace())] = message(fe)
	}
	return ve
}

// fieldPath drops the struct name from a namespace: `importRequest.leads[0].name` -> `leads[0].name`
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
