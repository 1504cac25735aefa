package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// FieldErrors maps a JSON field name to its inline message.
type FieldErrors map[string]string

// messages are the inline texts shown under a failing field, keyed by tag.
var messages = map[string]string{
	"required":       "This field is required",
	"mobile":         "Please enter a valid 10-digit mobile number",
	"aadhaar":        "Please enter a valid 12-digit Aadhaar number",
	"pan":            "Please enter a valid PAN (e.g. ABCDE1234F)",
	"email_simple":   "Please enter a valid email address",
	"ifsc":           "Please enter a valid IFSC code",
	"account_number": "Please enter a valid account number",
	"holder_name":    "Please enter a valid account holder name",
	"dob":            "Please enter a valid date of birth (DD/MM/YYYY)",
	"pincode":        "Please enter a valid 6-digit pincode",
	"notblank":       "This field is required",
	"oneof":          "Please select one of the available options",
	"gt":             "Value must be greater than zero",
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	stringRule := func(fn func(string) bool) validator.Func {
		return func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		}
	}
	rules := map[string]func(string) bool{
		"mobile":         IsValidMobile,
		"aadhaar":        IsValidAadhaar,
		"pan":            IsValidPAN,
		"email_simple":   IsValidEmail,
		"ifsc":           IsValidIFSC,
		"account_number": IsValidAccountNumber,
		"holder_name":    IsValidHolderName,
		"dob":            IsValidDOB,
		"pincode":        IsValidPincode,
		"notblank":       func(s string) bool { return !IsBlank(s) },
	}
	for tag, fn := range rules {
		// Registration only fails on an empty tag.
		_ = v.RegisterValidation(tag, stringRule(fn))
	}
	return v
}

// Struct validates s using its validate tags. It returns nil when s passes
// and the first failing rule per field otherwise.
func Struct(s interface{}) (FieldErrors, error) {
	err := validate.Struct(s)
	if err == nil {
		return nil, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}

	overrides := messageOverrides(s)
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		if msg, ok := overrides[fe.StructField()]; ok {
			out[fe.Field()] = msg
			continue
		}
		out[fe.Field()] = MessageFor(fe.Tag())
	}
	return out, nil
}

// messageOverrides collects `msg` tags, which replace the per-tag message
// for one field.
func messageOverrides(s interface{}) map[string]string {
	t := reflect.TypeOf(s)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	out := map[string]string{}
	if t.Kind() != reflect.Struct {
		return out
	}
	for i := 0; i < t.NumField(); i++ {
		if msg := t.Field(i).Tag.Get("msg"); msg != "" {
			out[t.Field(i).Name] = msg
		}
	}
	return out
}

// MessageFor returns the inline message for a validation tag.
func MessageFor(tag string) string {
	if msg, ok := messages[tag]; ok {
		return msg
	}
	return "Invalid value"
}
