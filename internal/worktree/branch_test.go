package worktree

import "testing"

func TestValidateBranchName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"", true},
		{"@", true},
		{"feature..x", true},
		{"feature@{1}", true},
		{"feat~1", true},
		{"feat ure", true},
		{"-feature", true},
		{".hidden/x", true},
		{"x/.hidden", true},
		{"x/trailing./y", true},
		{"feature/add-thing", false},
		{"main", false},
		{"logpose/alice/main", false},
	}
	for _, c := range cases {
		err := ValidateBranchName(c.name)
		if c.wantErr != (err != nil) {
			t.Errorf("ValidateBranchName(%q) = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestShortUserID(t *testing.T) {
	cases := map[string]string{
		"Alice.Smith+test@Example.com": "alice-smith-test",
		"bob@example.com":              "bob",
		"-weird.-@example.com":         "weird",
	}
	for email, want := range cases {
		if got := shortUserID(email); got != want {
			t.Errorf("shortUserID(%q) = %q, want %q", email, got, want)
		}
	}
}
