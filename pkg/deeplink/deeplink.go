// Package deeplink builds t.me start links for handing tokens to other bots.
package deeplink

import (
	"fmt"
	"net/url"
	"strings"
)

// BotStartURL returns a deep link that opens botUsername with token as the
// /start payload. A leading @ in the username is ignored.
func BotStartURL(botUsername, token string) string {
	name := strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	return fmt.Sprintf("https://t.me/%s?start=%s", name, url.QueryEscape(token))
}
