package relay

import "testing"

func TestUserSubject(t *testing.T) {
	tests := []struct {
		userID string
		want   string
	}{
		{userID: "u1", want: "chat.user.u1"},
		{userID: "64fd2a9c0a1b2c3d4e5f6a7b", want: "chat.user.64fd2a9c0a1b2c3d4e5f6a7b"},
	}

	for _, tt := range tests {
		if got := UserSubject(tt.userID); got != tt.want {
			t.Errorf("UserSubject(%q) = %q, want %q", tt.userID, got, tt.want)
		}
	}
}
