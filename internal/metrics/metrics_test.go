package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestRecordApplicationSubmitted_IncrementsCounter は応募カウンタが増加することを検証する。
func TestRecordApplicationSubmitted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordApplicationSubmitted()
	c.RecordApplicationSubmitted()

	m := gather(t, reg, "jobboard_applications_submitted_total")
	if got := m[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("applications_submitted_total = %v, want 2", got)
	}
}

// TestRecordStageTransition_LabelsByStage はステージ名ごとに集計されることを検証する。
func TestRecordStageTransition_LabelsByStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStageTransition("Interview")
	c.RecordStageTransition("Interview")
	c.RecordStageTransition("Rejected")

	counts := map[string]float64{}
	for _, m := range gather(t, reg, "jobboard_stage_transitions_total") {
		counts[labelValue(m, "stage")] = m.GetCounter().GetValue()
	}
	if counts["Interview"] != 2 || counts["Rejected"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

// TestRecordDelivery_SplitsResult は送信結果がsuccess/failureに分かれることを検証する。
func TestRecordDelivery_SplitsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDelivery("sms", true)
	c.RecordDelivery("sms", false)
	c.RecordDelivery("email", false)

	results := map[string]float64{}
	for _, m := range gather(t, reg, "jobboard_deliveries_total") {
		results[labelValue(m, "channel")+"/"+labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	if results["sms/success"] != 1 || results["sms/failure"] != 1 || results["email/failure"] != 1 {
		t.Errorf("results = %v", results)
	}
}

// TestRecordJobsExpired_AddsCount は掲載停止件数が加算されることを検証する。
func TestRecordJobsExpired_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordJobsExpired(3)
	c.RecordJobsExpired(0)

	m := gather(t, reg, "jobboard_jobs_expired_total")
	if got := m[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("jobs_expired_total = %v, want 3", got)
	}
}

// TestRecordRequestLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordRequestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(120 * time.Millisecond)

	m := gather(t, reg, "jobboard_http_request_duration_seconds")
	if got := m[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

// TestHandler_ServesMetrics はスクレイプ用ハンドラーがメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordNotification("application_received")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `jobboard_notifications_total{type="application_received"} 1`) {
		t.Errorf("expected notification metric in body, got:\n%s", body)
	}
}
