package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPromRecorder(reg)
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}
	rec.WalletCreated("create")
	rec.WalletCreated("create")
	rec.WalletCreated("counterfactual")
	rec.CreationRejected("create", "LabelAlreadyOwned")

	expected := `
# HELP walletfactory_wallets_created_total Total number of wallets created
# TYPE walletfactory_wallets_created_total counter
walletfactory_wallets_created_total{variant="counterfactual"} 1
walletfactory_wallets_created_total{variant="create"} 2
`
	if err := testutil.CollectAndCompare(rec.created, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if got := testutil.ToFloat64(rec.rejected.WithLabelValues("create", "LabelAlreadyOwned")); got != 1 {
		t.Errorf("rejections = %v, want 1", got)
	}
}

func TestPromRecorderReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromRecorder(reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewPromRecorder(reg)
	if err != nil {
		t.Fatalf("second registration failed: %v", err)
	}
	second.WalletCreated("create")
	if got := testutil.ToFloat64(first.created.WithLabelValues("create")); got != 1 {
		t.Errorf("collectors were not shared, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPromRecorder(reg)
	if err != nil {
		t.Fatal(err)
	}
	rec.CreationRejected("create_with_guardian", "NullGuardian")
	path := filepath.Join(t.TempDir(), "walletfactory.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `code="NullGuardian"`) {
		t.Errorf("textfile misses the rejection:\n%s", content)
	}
}
