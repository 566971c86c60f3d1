package version

import "testing"

func TestString(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "1.2.3"
	Commit = "abc1234"
	BuildTime = "2025-01-04T14:32:01Z"

	if got, want := String(), "1.2.3 (abc1234) built 2025-01-04T14:32:01Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := UserAgent(); got != "whale-watcher/1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestDefaultValues(t *testing.T) {
	// These might be overwritten by ldflags in production builds
	if Version == "" || Commit == "" || BuildTime == "" {
		t.Errorf("empty build info: %q %q %q", Version, Commit, BuildTime)
	}
}
