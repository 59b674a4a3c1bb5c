package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Roster lists who may talk to the bot and in which role. Entries are either
// Telegram handles (with or without the leading '@') or numeric user ids.
type Roster struct {
	Admin      string   `toml:"admin"`
	IT         []string `toml:"it"`
	HR         []string `toml:"hr"`
	Categories []string `toml:"categories"`
}

// Validate ensures the roster names an approver and at least one category.
func (r Roster) Validate() error {
	if NormalizeMember(r.Admin) == "" {
		return fmt.Errorf("an admin must be configured (ADMIN_USERNAME or roster file)")
	}
	if len(r.Categories) == 0 {
		return fmt.Errorf("at least one expense category must be configured")
	}
	return nil
}

// NormalizeMember strips whitespace and the leading '@' and lowercases handles.
func NormalizeMember(entry string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(entry), "@"))
}

// loadRoster merges the optional ROSTER_FILE with environment overrides.
//
// Supported variables: ADMIN_USERNAME, IT_USERS, HR_USERS, CATEGORIES and
// ALLOWED_USERS ("@alice:hr,@bob:it,@carol:admin"; a bare entry means hr).
func loadRoster() (Roster, error) {
	var roster Roster
	if path := os.Getenv("ROSTER_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &roster); err != nil {
			return Roster{}, fmt.Errorf("decode roster file %s: %w", path, err)
		}
	}

	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		roster.Admin = v
	}
	roster.IT = append(roster.IT, splitList(os.Getenv("IT_USERS"))...)
	roster.HR = append(roster.HR, splitList(os.Getenv("HR_USERS"))...)

	for _, token := range splitList(os.Getenv("ALLOWED_USERS")) {
		name, role, found := strings.Cut(token, ":")
		if !found {
			role = "hr"
		}
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "admin":
			roster.Admin = name
		case "it":
			roster.IT = append(roster.IT, name)
		case "hr":
			roster.HR = append(roster.HR, name)
		default:
			return Roster{}, fmt.Errorf("ALLOWED_USERS: unknown role %q for %s", role, name)
		}
	}

	if v := splitList(os.Getenv("CATEGORIES")); len(v) > 0 {
		roster.Categories = v
	}
	if len(roster.Categories) == 0 {
		roster.Categories = append([]string(nil), DefaultCategories...)
	}
	return roster, nil
}
