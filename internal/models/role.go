package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role of an authenticated user
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// RoleSet is the canonical set of roles a user holds.
// The backend sends roles either as strings or as {"name": "..."} objects;
// both decode into the same set.
type RoleSet []Role

// NormalizeRole maps backend role names to a Role; ok is false for unknown names
func NormalizeRole(name string) (Role, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "role_")
	switch n {
	case "student":
		return RoleStudent, true
	case "teacher", "lecturer":
		return RoleTeacher, true
	}
	return "", false
}

// UnmarshalJSON accepts ["STUDENT"], [{"name":"ROLE_TEACHER"}] and mixtures
func (rs *RoleSet) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("roles: %w", err)
	}

	set := RoleSet{}
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			var obj struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				return fmt.Errorf("roles: unsupported role value %s", string(item))
			}
			name = obj.Name
		}
		if role, ok := NormalizeRole(name); ok && !set.Has(role) {
			set = append(set, role)
		}
	}
	*rs = set
	return nil
}

// Has reports whether the set contains role
func (rs RoleSet) Has(role Role) bool {
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}

// Primary picks teacher over student; users without known roles are students
func (rs RoleSet) Primary() Role {
	if rs.Has(RoleTeacher) {
		return RoleTeacher
	}
	return RoleStudent
}
