package modelclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniffImageMIME(t *testing.T) {
	assert.Equal(t, "image/png", sniffImageMIME([]byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0}))
	assert.Equal(t, "image/jpeg", sniffImageMIME([]byte{0xFF, 0xD8, 0xFF}))
	assert.Equal(t, "image/gif", sniffImageMIME([]byte("GIF89a")))
	assert.Equal(t, "image/png", sniffImageMIME([]byte{0, 1, 2}))
}
