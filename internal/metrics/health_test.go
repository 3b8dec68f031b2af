package metrics

import (
	"path/filepath"
	"testing"

	"github.com/gftdcojp/logvault/internal/meta"
	"go.uber.org/zap"
)

func TestLivenessAlwaysOK(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil)
	if status := checker.Liveness(); !status.OK {
		t.Error("liveness should report OK")
	}
}

func TestReadinessSkipsNilDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil)
	status := checker.Readiness()
	if !status.OK {
		t.Errorf("readiness with no dependencies = %+v", status)
	}
}

func TestReadinessChecksMetadataStore(t *testing.T) {
	g, err := meta.NewGlobalBoltStore(filepath.Join(t.TempDir(), "global.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	checker := NewHealthChecker(nil, g, nil)
	status := checker.Readiness()
	if !status.OK {
		t.Errorf("readiness with healthy store = %+v", status)
	}
	found := false
	for _, c := range status.Checks {
		if c.Name == "metadata" && c.Status == "ok" {
			found = true
		}
	}
	if !found {
		t.Error("readiness should include a metadata check")
	}
}
