package middleware

import (
	"strings"
	"testing"
)

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "normal message", content: "Hi, interested in your gig"},
		{name: "empty passes here", content: ""},
		{name: "unicode", content: "héllo 世界"},
		{name: "too long", content: strings.Repeat("a", 100001), wantErr: true},
		{name: "invalid utf8", content: string([]byte{0xff, 0xfe}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessageContent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "ok", id: "64fd2a9c0a1b2c3d4e5f6a7b"},
		{name: "empty", id: "", wantErr: true},
		{name: "too long", id: strings.Repeat("x", 65), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
