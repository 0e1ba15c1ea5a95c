package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllFieldsOrder(t *testing.T) {
	fields := AllFields()
	assert.Len(t, fields, NumFields)
	assert.Equal(t, FirstName, fields[0])
	assert.Equal(t, ExpirationDate, fields[NumFields-1])
	assert.Equal(t, 7, LicenseNumber.Index())
	assert.Equal(t, -1, Field("Height").Index())

	fields[0] = "mutated"
	assert.Equal(t, FirstName, AllFields()[0])
}

func TestCanonicalize(t *testing.T) {
	cases := map[string]Field{
		"First Name":              FirstName,
		"first_name":              FirstName,
		"FIRST NAME":              FirstName,
		"surname":                 LastName,
		"Driver's License Number": LicenseNumber,
		"drivers_license_number":  LicenseNumber,
		"DL Number":               LicenseNumber,
		"DOB":                     DateOfBirth,
		"expiry":                  ExpirationDate,
		"postal code":             ZipCode,
		"Middle Initial":          MiddleInitial,
	}
	for in, want := range cases {
		got, ok := Canonicalize(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "Height", "eye color"} {
		_, ok := Canonicalize(in)
		assert.False(t, ok, in)
	}
}

func TestFaceKeyAndExtensions(t *testing.T) {
	assert.Equal(t, "0a1b_face.jpg", FaceKey("0a1b"))
	assert.True(t, IsAllowedExt(".JPG"))
	assert.True(t, IsAllowedExt("webp"))
	assert.False(t, IsAllowedExt(".pdf"))
}
