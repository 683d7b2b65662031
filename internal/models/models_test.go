package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRoleSetUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RoleSet
		primary Role
		wantErr bool
	}{
		{
			name:    "Plain strings",
			input:   `["STUDENT"]`,
			want:    RoleSet{RoleStudent},
			primary: RoleStudent,
		},
		{
			name:    "Name objects",
			input:   `[{"name":"ROLE_TEACHER"}]`,
			want:    RoleSet{RoleTeacher},
			primary: RoleTeacher,
		},
		{
			name:    "Mixed with duplicates and unknown",
			input:   `["student", {"name":"lecturer"}, "ADMIN", {"name":"Student"}]`,
			want:    RoleSet{RoleStudent, RoleTeacher},
			primary: RoleTeacher,
		},
		{
			name:    "Empty defaults to student",
			input:   `[]`,
			want:    RoleSet{},
			primary: RoleStudent,
		},
		{
			name:    "Invalid element",
			input:   `[42]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got RoleSet
			err := json.Unmarshal([]byte(tt.input), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("RoleSet = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("RoleSet[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if got.Primary() != tt.primary {
				t.Errorf("Primary() = %v, want %v", got.Primary(), tt.primary)
			}
		})
	}
}

func TestParseScanType(t *testing.T) {
	tests := []struct {
		input   string
		want    ScanType
		wantErr bool
	}{
		{"IN", ScanIn, false},
		{"out", ScanOut, false},
		{" In ", ScanIn, false},
		{"INOUT", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScanType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScanType(%q) error = %v", tt.input, err)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidScanType) {
				t.Errorf("error = %v, want ErrInvalidScanType", err)
			}
			if got != tt.want {
				t.Errorf("ParseScanType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAttendedPercent(t *testing.T) {
	if got := (AttendanceStats{TotalCount: 20, PresentCount: 15}).AttendedPercent(); got != 75 {
		t.Errorf("AttendedPercent() = %v, want 75", got)
	}
	if got := (AttendanceStats{}).AttendedPercent(); got != 0 {
		t.Errorf("AttendedPercent() on empty = %v, want 0", got)
	}
}

func TestSessionAccessToken(t *testing.T) {
	s := Session{Authenticated: false, User: User{AccessToken: "tok"}}
	if s.AccessToken() != "" {
		t.Errorf("anonymous session leaked token")
	}
	s.Authenticated = true
	if s.AccessToken() != "tok" {
		t.Errorf("AccessToken() = %q, want tok", s.AccessToken())
	}
}
