//go:build integration

package reliability

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInfluxReporter_Integration(t *testing.T) {
	url := os.Getenv("INFLUXDB_URL")
	if url == "" {
		url = "http://localhost:8086"
	}
	r := NewInfluxReporter(InfluxConfig{
		URL:    url,
		Token:  os.Getenv("INFLUXDB_TOKEN"),
		Org:    "equisense",
		Bucket: "source_health",
	})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		t.Skipf("InfluxDB 不可用: %v", err)
	}

	tr := NewTracker("tencent")
	for i := 0; i < 10; i++ {
		tr.Record("tencent", i%3 != 0)
	}
	require.NoError(t, r.Report(ctx, tr.HealthSnapshot()))
}
