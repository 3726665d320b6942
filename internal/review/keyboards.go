package review

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Callback actions on a review message.
const (
	ActionApprove   = "approve"
	ActionReject    = "reject"
	ActionRegenMenu = "regen_menu"
	ActionRegenImg  = "regen_img"
	ActionRegenCap  = "regen_cap"
	ActionRegenAll  = "regen_all"
)

const callbackPrefix = "draft"

// FormatCallback encodes a review action into callback data.
func FormatCallback(action string, draftID int64) string {
	return fmt.Sprintf("%s:%s:%d", callbackPrefix, action, draftID)
}

// ParseCallback decodes callback data produced by FormatCallback. ok is false
// for callback data belonging to other handlers.
func ParseCallback(data string) (action string, draftID int64, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[1], id, true
}

// Keyboard returns the main review keyboard for a draft.
func Keyboard(draftID int64) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("✅ Одобрить").WithCallbackData(FormatCallback(ActionApprove, draftID)),
		tu.InlineKeyboardButton("❌ Отклонить").WithCallbackData(FormatCallback(ActionReject, draftID)),
		tu.InlineKeyboardButton("🔁 Реген").WithCallbackData(FormatCallback(ActionRegenMenu, draftID)),
	))
}

// RegenKeyboard returns the regeneration mode menu for a draft.
func RegenKeyboard(draftID int64) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🖼 Только картинка").WithCallbackData(FormatCallback(ActionRegenImg, draftID)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📝 Только caption").WithCallbackData(FormatCallback(ActionRegenCap, draftID)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🧩 Всё заново").WithCallbackData(FormatCallback(ActionRegenAll, draftID)),
		),
	)
}
