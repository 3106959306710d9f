package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskHalf(t *testing.T) {
	assert.Equal(t, "", MaskHalf(""))
	assert.Equal(t, "7", MaskHalf("7"))
	assert.Equal(t, "123456******", MaskHalf("123456789012"))
	assert.Equal(t, "12***", MaskHalf("12345"))
}
