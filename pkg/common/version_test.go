package common

import (
	"strings"
	"testing"
)

const devVersion = "dev"

func TestGetVersion_Development(t *testing.T) {
	originalVersion := VERSION
	defer func() { VERSION = originalVersion }()

	VERSION = devVersion

	if version := GetVersion(); version != "1.0.0-dev" {
		t.Errorf("Expected development version '1.0.0-dev', got '%s'", version)
	}
}

func TestGetVersion_Release(t *testing.T) {
	originalVersion := VERSION
	defer func() { VERSION = originalVersion }()

	VERSION = "1.2.3"

	if version := GetVersion(); version != "1.2.3" {
		t.Errorf("Expected version '1.2.3', got '%s'", version)
	}
}

func TestGetBuildInfo(t *testing.T) {
	originalVersion, originalCommit, originalBranch := VERSION, COMMIT, BRANCH
	defer func() {
		VERSION = originalVersion
		COMMIT = originalCommit
		BRANCH = originalBranch
	}()

	VERSION = "2.0.0"
	COMMIT = "def456"
	BRANCH = "main"

	info := GetBuildInfo()

	for _, want := range []string{"2.0.0", "def456", "main"} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected build info to contain %q, got %q", want, info)
		}
	}
	if strings.HasPrefix(info, devVersion) {
		t.Errorf("Expected release version first, got %q", info)
	}
}
