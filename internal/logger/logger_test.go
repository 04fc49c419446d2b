package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "a***@example.com", RedactEmail("alice@example.com"))
	assert.Equal(t, "***", RedactEmail("no-at-sign"))
	assert.Equal(t, "***", RedactEmail("@example.com"))
	assert.Equal(t, "", RedactEmail(""))
}

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		log, err := New(env)
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}
