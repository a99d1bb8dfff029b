package plate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "30A-123.45", Normalize("  30a-123.45 "))
	assert.Equal(t, "29-H112345", Normalize("29-h1 12345"))
	assert.Equal(t, "NG-1234", Normalize("ng-1234"))
}

func TestValidate(t *testing.T) {
	valid := []string{
		"30A-123.45",
		"30A12345",
		"51L-12345",
		"29-H112345",
		"51L1456.78",
		"NG-1234",
		"QD-12345",
	}
	for _, p := range valid {
		assert.NoError(t, Validate(p), p)
	}

	invalid := []string{
		"",
		"ABC",
		"30-12345",     // missing series letter
		"05A-123.45",   // province code below 11
		"30A-12",       // too few digits
		"XX-1234",      // unknown special series
		"30A-123.45.6", // malformed
	}
	for _, p := range invalid {
		assert.Error(t, Validate(p), p)
	}
}
