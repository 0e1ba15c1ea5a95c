package constants

import (
	"strings"
)

// Field is one key of the extracted driver's license record.
type Field string

const (
	FirstName      Field = "First Name"
	MiddleInitial  Field = "Middle Initial"
	LastName       Field = "Last Name"
	StreetAddress  Field = "Street Address"
	City           Field = "City"
	State          Field = "State"
	ZipCode        Field = "Zip Code"
	LicenseNumber  Field = "Driver's License Number"
	DateOfBirth    Field = "Date of Birth"
	ExpirationDate Field = "Expiration Date"
)

// allFields is the canonical order used in prompts and JSON output.
var allFields = []Field{
	FirstName,
	MiddleInitial,
	LastName,
	StreetAddress,
	City,
	State,
	ZipCode,
	LicenseNumber,
	DateOfBirth,
	ExpirationDate,
}

// NumFields is the fixed size of an extracted record.
const NumFields = 10

func AllFields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allFields))
	for i, f := range allFields {
		result[i] = string(f)
	}
	return result
}

// Index returns the canonical position of f, or -1.
func (f Field) Index() int {
	for i, x := range allFields {
		if x == f {
			return i
		}
	}
	return -1
}

// Canonicalize maps a key the model produced onto a record field.
// Exact names win; otherwise case, punctuation and a few common synonyms are folded.
func Canonicalize(input string) (Field, bool) {
	if input == "" {
		return "", false
	}
	for _, f := range allFields {
		if input == string(f) {
			return f, true
		}
	}

	normalized := foldKey(input)

	synonyms := map[string]Field{
		"firstname":            FirstName,
		"givenname":            FirstName,
		"middlename":           MiddleInitial,
		"middle":               MiddleInitial,
		"mi":                   MiddleInitial,
		"lastname":             LastName,
		"surname":              LastName,
		"familyname":           LastName,
		"address":              StreetAddress,
		"street":               StreetAddress,
		"zip":                  ZipCode,
		"zipcode":              ZipCode,
		"postalcode":           ZipCode,
		"dl":                   LicenseNumber,
		"dlnumber":             LicenseNumber,
		"licensenumber":        LicenseNumber,
		"driverslicense":       LicenseNumber,
		"driverlicensenumber":  LicenseNumber,
		"driverslicensenumber": LicenseNumber,
		"dob":                  DateOfBirth,
		"birthdate":            DateOfBirth,
		"dateofbirth":          DateOfBirth,
		"exp":                  ExpirationDate,
		"expires":              ExpirationDate,
		"expiry":               ExpirationDate,
		"expirydate":           ExpirationDate,
		"expirationdate":       ExpirationDate,
	}
	if f, ok := synonyms[normalized]; ok {
		return f, true
	}

	for _, f := range allFields {
		if normalized == foldKey(string(f)) {
			return f, true
		}
	}
	return "", false
}

// foldKey lowercases and drops everything but letters and digits.
func foldKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
