package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackRoundTrip(t *testing.T) {
	data := FormatCallback(ActionApprove, 42)
	assert.Equal(t, "draft:approve:42", data)

	action, draftID, ok := ParseCallback(data)
	require.True(t, ok)
	assert.Equal(t, ActionApprove, action)
	assert.Equal(t, int64(42), draftID)
}

func TestParseCallbackRejectsForeignData(t *testing.T) {
	for _, data := range []string{
		"",
		"suggestion:approve:1",
		"draft:approve",
		"draft:approve:not-a-number",
		"draft:approve:1:extra",
	} {
		_, _, ok := ParseCallback(data)
		assert.False(t, ok, "data %q", data)
	}
}

func TestKeyboardLayout(t *testing.T) {
	kb := Keyboard(7)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 3)
	assert.Equal(t, "draft:approve:7", kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "draft:reject:7", kb.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "draft:regen_menu:7", kb.InlineKeyboard[0][2].CallbackData)
}

func TestRegenKeyboardLayout(t *testing.T) {
	kb := RegenKeyboard(7)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "draft:regen_img:7", kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "draft:regen_cap:7", kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "draft:regen_all:7", kb.InlineKeyboard[2][0].CallbackData)
}
