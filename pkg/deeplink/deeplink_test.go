package deeplink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBotStartURL(t *testing.T) {
	assert.Equal(t, "https://t.me/PromptikaBot?start=p_42", BotStartURL("PromptikaBot", "p_42"))
	assert.Equal(t, "https://t.me/PromptikaBot?start=p_42", BotStartURL("@PromptikaBot", "p_42"))
	assert.Equal(t, "https://t.me/PromptikaBot?start=a%2Fb", BotStartURL(" PromptikaBot ", "a/b"))
}
