package stats

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandialabs/faodel-sub003/cmn"
)

func TestObserveOpCountsSuccessAndFailure(t *testing.T) {
	reg := NewRegistry("kelpie_test")
	reg.ObserveOp("publish", cmn.RCOk)
	reg.ObserveOp("publish", cmn.RCEIO)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	reg.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `kelpie_test_ops_total{op="publish"} 2`) {
		t.Fatalf("expected 2 total publish ops, got:\n%s", body)
	}
	if !strings.Contains(body, `kelpie_test_ops_errors_total{op="publish",rc="EIO"}`) {
		t.Fatalf("expected one publish error counted, got:\n%s", body)
	}
}

func TestSetGauges(t *testing.T) {
	reg := NewRegistry("kelpie_test2")
	reg.SetLKVRows(5)
	reg.SetQueueDepth(12)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	reg.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "kelpie_test2_localkv_rows 5") {
		t.Fatalf("expected localkv_rows gauge set to 5, got:\n%s", body)
	}
	if !strings.Contains(body, "kelpie_test2_backburner_queue_depth 12") {
		t.Fatalf("expected queue_depth gauge set to 12, got:\n%s", body)
	}
}
