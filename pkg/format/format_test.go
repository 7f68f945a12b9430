package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileSize(t *testing.T) {
	assert.Equal(t, "512.0 B", FileSize(512))
	assert.Equal(t, "1.0 KB", FileSize(1024))
	assert.Equal(t, "4.9 KB", FileSize(5000))
	assert.Equal(t, "1.0 MB", FileSize(1024*1024))
	assert.Equal(t, "1.5 GB", FileSize(3*1024*1024*1024/2))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "0:05", Duration(5))
	assert.Equal(t, "1:00", Duration(60))
	assert.Equal(t, "3:42", Duration(222))
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, IsValidURL("https://youtube.com/watch?v=abc123"))
	assert.True(t, IsValidURL("http://example.com"))
	assert.True(t, IsValidURL("youtu.be/abc"))
	assert.False(t, IsValidURL("not a url"))
	assert.False(t, IsValidURL(""))
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "Daft Punk - Get Lucky.mp3", SafeFileName("Daft Punk - Get Lucky.mp3"))
	assert.Equal(t, "song__name_.mp3", SafeFileName("song<>name?.mp3"))
	assert.Equal(t, "_____.mp3", SafeFileName("/\\:*|.mp3"))
}
