package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowLimit(t *testing.T) {
	assert.Equal(t, int64(50), windowLimit(50, 0))
	assert.Equal(t, int64(60), windowLimit(50, 10))

	// a misconfigured negative burst never shrinks the window
	assert.Equal(t, int64(5), windowLimit(5, -3))
}
