package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  Class
	}{
		{"how does authentication work", ClassImplementation},
		{"where are the unit tests for the parser", ClassTesting},
		{"Which CONFIG file sets the port", ClassConfiguration},
		{"initial setup steps", ClassConfiguration},
		{"is there a readme", ClassDocumentation},
		{"how to run the server", ClassDocumentation},
		// testing outranks configuration
		{"test the config loader", ClassTesting},
		// "specification" contains "spec"
		{"read the specification", ClassTesting},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.query))
		})
	}
}

func TestClassRoundTrip(t *testing.T) {
	for _, c := range []Class{ClassImplementation, ClassConfiguration, ClassDocumentation, ClassTesting} {
		assert.Equal(t, c, ParseClass(c.String()))
	}
	assert.Equal(t, ClassImplementation, ParseClass("nonsense"))
}
