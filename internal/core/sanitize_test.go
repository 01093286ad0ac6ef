package core_test

import (
	"strings"
	"testing"

	"sentiment-backend/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	t.Run("StripsHtmlAndCollapsesWhitespace", func(t *testing.T) {
		cleaned, err := core.SanitizeText("  This   is <b>great</b>!\n\nReally\tgood.  ")
		require.NoError(t, err)
		assert.Equal(t, "This is great ! Really good.", cleaned)
	})

	t.Run("PlainTextUnchanged", func(t *testing.T) {
		cleaned, err := core.SanitizeText("the product works fine")
		require.NoError(t, err)
		assert.Equal(t, "the product works fine", cleaned)
	})

	t.Run("RejectsEmpty", func(t *testing.T) {
		_, err := core.SanitizeText("   \n\t ")
		assert.Error(t, err)
	})

	t.Run("RejectsOnlyMarkup", func(t *testing.T) {
		_, err := core.SanitizeText("<div><span></span></div>")
		assert.Error(t, err)
	})

	t.Run("RejectsTooLong", func(t *testing.T) {
		_, err := core.SanitizeText(strings.Repeat("a", core.MaxTextLength+1))
		assert.Error(t, err)
	})

	t.Run("AcceptsAtLimit", func(t *testing.T) {
		_, err := core.SanitizeText(strings.Repeat("a", core.MaxTextLength))
		assert.NoError(t, err)
	})

	t.Run("CountsCharactersNotBytes", func(t *testing.T) {
		// 6000 characters but 12000 bytes; must pass the length check.
		cleaned, err := core.SanitizeText(strings.Repeat("é", 6000))
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("é", 6000), cleaned)
	})

	t.Run("RejectsTooManyMultibyteCharacters", func(t *testing.T) {
		_, err := core.SanitizeText(strings.Repeat("é", core.MaxTextLength+1))
		assert.Error(t, err)
	})

	t.Run("RejectsTooManyWords", func(t *testing.T) {
		_, err := core.SanitizeText(strings.Repeat("ok ", core.MaxWordCount+1))
		assert.Error(t, err)
	})

	t.Run("RejectsTooManyLines", func(t *testing.T) {
		_, err := core.SanitizeText(strings.Repeat("line\n", core.MaxLineCount) + "last")
		assert.Error(t, err)
	})

	t.Run("RejectsControlCharacters", func(t *testing.T) {
		_, err := core.SanitizeText("hello\x00world")
		assert.Error(t, err)
	})

	t.Run("AllowsTabsAndNewlines", func(t *testing.T) {
		cleaned, err := core.SanitizeText("hello\tworld\ngoodbye")
		require.NoError(t, err)
		assert.Equal(t, "hello world goodbye", cleaned)
	})
}
