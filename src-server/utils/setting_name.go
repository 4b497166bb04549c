package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SettingName turns a snake_case setting key into something presentable,
// e.g. "mod_log_channel_id" -> "Mod Log Channel Id".
func SettingName(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", " ")
	return cases.Title(language.English).String(s)
}
