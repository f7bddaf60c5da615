package metrics

import (
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMain(m *testing.M) {
	// Collectors must exist before parallel tests record into them.
	if err := Init(prometheus.NewRegistry()); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
