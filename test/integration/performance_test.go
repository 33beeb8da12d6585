package integration

import (
	"os"
	"testing"
	"time"

	"github.com/iwvelando/whatif/internal/config"
	"github.com/iwvelando/whatif/internal/runner"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}

// TestPerformance tests performance characteristics
func TestPerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping performance test in short mode")
	}
	logger := zap.NewNop()

	start := time.Now()
	conf, err := config.LoadConfiguration(fixture)
	if err != nil {
		t.Fatalf("LoadConfiguration failed: %v", err)
	}
	loadTime := time.Since(start)

	start = time.Now()
	r, err := runner.NewRunner(logger, conf)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	buildTime := time.Since(start)

	sectionTimes := make(map[string]time.Duration)
	for _, section := range conf.Sections() {
		start = time.Now()
		if _, err := r.RunSections(section); err != nil {
			t.Fatalf("RunSections(%s) failed: %v", section, err)
		}
		sectionTimes[section] = time.Since(start)
	}

	totalTime := loadTime + buildTime
	t.Logf("Performance metrics:")
	t.Logf("  Load config: %v", loadTime)
	t.Logf("  Build workbook: %v", buildTime)
	for _, section := range conf.Sections() {
		t.Logf("  %s: %v", section, sectionTimes[section])
		totalTime += sectionTimes[section]
	}
	t.Logf("  Total time: %v", totalTime)

	if totalTime > 10*time.Second {
		t.Errorf("Total processing time %v exceeds 10 second threshold", totalTime)
	}
}

// TestRepeatedRuns builds and runs the fixture repeatedly to catch state
// leaking between runners.
func TestRepeatedRuns(t *testing.T) {
	logger := zap.NewNop()

	var firstMean float64
	for i := 0; i < 5; i++ {
		conf, err := config.LoadConfiguration(fixture)
		if err != nil {
			t.Fatalf("LoadConfiguration failed on iteration %d: %v", i, err)
		}
		r, err := runner.NewRunner(logger, conf)
		if err != nil {
			t.Fatalf("NewRunner failed on iteration %d: %v", i, err)
		}
		res, err := r.Run()
		if err != nil {
			t.Fatalf("Run failed on iteration %d: %v", i, err)
		}
		mean := res.Simulation.OutputStats["Model!B3"].Mean
		if i == 0 {
			firstMean = mean
		} else if mean != firstMean {
			t.Fatalf("iteration %d mean %v differs from first run %v", i, mean, firstMean)
		}
	}
}
