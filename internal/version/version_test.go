package version

import "testing"

func TestUserAgent(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "1.4.0"
	if got := UserAgent(); got != "greenhouse/1.4.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	for _, key := range []string{"commit", "built", "go", "os/arch"} {
		if info[key] == "" {
			t.Errorf("Info()[%q] is empty", key)
		}
	}
}
