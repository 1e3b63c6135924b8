package testutil

import (
	"strings"
	"testing"

	"github.com/jackzampolin/promptlab/internal/defra"
)

func TestDefraConfig(t *testing.T) {
	cfg := DefraConfig(t, "/tmp/data", "19999")

	if !strings.HasPrefix(cfg.ContainerName, defra.Label+"-testdefraconfig-") {
		t.Errorf("ContainerName = %q", cfg.ContainerName)
	}
	if cfg.DataPath != "/tmp/data" || cfg.HostPort != "19999" {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.Labels[TestLabel]; got != t.Name() {
		t.Errorf("Labels[%s] = %q, want %q", TestLabel, got, t.Name())
	}
	if other := DefraConfig(t, "", ""); other.ContainerName == cfg.ContainerName {
		t.Error("container names are not unique")
	}
}

func TestContainerSafe(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TestServer_DefraLifecycle", "testserver-defralifecycle"},
		{"TestX/sub test", "testx-subtest"},
		{strings.Repeat("a", 40), strings.Repeat("a", 30)},
	}
	for _, tt := range tests {
		if got := containerSafe(tt.in); got != tt.want {
			t.Errorf("containerSafe(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
