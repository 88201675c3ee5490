package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Admin is one admin group: chat recipients bound to a panel credential
// identity.
type Admin struct {
	ChatIDs       []int64 `json:"chat_ids"`
	PanelUsername string  `json:"panel_username"`
	PanelPassword string  `json:"panel_password"`
	Sudo          bool    `json:"sudo,omitempty"`
}

// LoadAdmins reads the admins document. A missing file yields an empty list;
// a malformed file or an invalid entry is a configuration error.
func LoadAdmins(path string) ([]Admin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Admin{}, nil
		}
		return nil, fmt.Errorf("reading admins file %s: %w", path, err)
	}

	var admins []Admin
	if err := json.Unmarshal(data, &admins); err != nil {
		return nil, fmt.Errorf("parsing admins file %s: %w", path, err)
	}

	for i, admin := range admins {
		if admin.PanelUsername == "" || admin.PanelPassword == "" {
			return nil, fmt.Errorf("admins file %s: entry %d is missing panel credentials", path, i)
		}
		if len(admin.ChatIDs) == 0 {
			return nil, fmt.Errorf("admins file %s: entry %d has no chat IDs", path, i)
		}
	}

	return admins, nil
}
