package protocol

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TitleCaseIntroduction renders a locale-aware, title-cased greeting for a
// bot's landing page from its bare path/name (e.g. "echobot"
// or "weather_bot" becomes "Hi, I'm Echobot!" / "Hi, I'm Weather Bot!").
func TitleCaseIntroduction(botName string, tag language.Tag) string {
	name := strings.ReplaceAll(botName, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	caser := cases.Title(tag)
	return "Hi, I'm " + caser.String(name) + "!"
}
