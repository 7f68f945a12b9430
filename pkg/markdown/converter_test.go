package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToTelegramHTML(t *testing.T) {
	assert.Equal(t, "<b>bold</b>", ToTelegramHTML("**bold**"))
	assert.Equal(t, "<i>italic</i>", ToTelegramHTML("*italic*"))
	assert.Equal(t, "", ToTelegramHTML(""))
}

func TestToTelegramHTMLFlattensLists(t *testing.T) {
	out := ToTelegramHTML("- first\n- second")
	assert.Contains(t, out, "• first")
	assert.Contains(t, out, "• second")
	assert.NotContains(t, out, "<li>")
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &amp; b", EscapeHTML("a & b"))
	assert.Equal(t, "&lt;script&gt;", EscapeHTML("<script>"))
	assert.Equal(t, "plain.mp3", EscapeHTML("plain.mp3"))
}
