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

// findMetricFamily は収集結果から指定名のメトリクスファミリーを探す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if c := NewCollector(prometheus.NewRegistry()); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordAttendance_LabelsByMethodAndType は登録経路・種別ごとにカウントされることを検証する。
func TestRecordAttendance_LabelsByMethodAndType(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAttendance("qr_scan", "beneficiario")
	c.RecordAttendance("qr_scan", "beneficiario")
	c.RecordAttendance("manual_form", "guest")

	mf := findMetricFamily(t, reg, "ongdesk_attendance_recorded_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "method")+"/"+labelValue(m, "type")] = m.GetCounter().GetValue()
	}
	if got["qr_scan/beneficiario"] != 2 {
		t.Errorf("qr_scan/beneficiario = %v, want 2", got["qr_scan/beneficiario"])
	}
	if got["manual_form/guest"] != 1 {
		t.Errorf("manual_form/guest = %v, want 1", got["manual_form/guest"])
	}
}

// TestRecordAttendanceRejected_IncrementsCounter は拒否理由ごとにカウントされることを検証する。
func TestRecordAttendanceRejected_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAttendanceRejected("ALREADY_RECORDED")

	mf := findMetricFamily(t, reg, "ongdesk_attendance_rejected_total")
	m := mf.GetMetric()[0]
	if labelValue(m, "reason") != "ALREADY_RECORDED" || m.GetCounter().GetValue() != 1 {
		t.Errorf("unexpected metric: %v", m)
	}
}

// TestRecordScanningTransition_IncrementsCounter はスキャン遷移がカウントされることを検証する。
func TestRecordScanningTransition_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordScanningTransition("start")
	c.RecordScanningTransition("stop")
	c.RecordScanningTransition("start")

	mf := findMetricFamily(t, reg, "ongdesk_scanning_transitions_total")
	for _, m := range mf.GetMetric() {
		want := 1.0
		if labelValue(m, "action") == "start" {
			want = 2
		}
		if m.GetCounter().GetValue() != want {
			t.Errorf("action=%s: %v, want %v", labelValue(m, "action"), m.GetCounter().GetValue(), want)
		}
	}
}

// TestSessionMetrics はセッション関連のメトリクスを検証する。
func TestSessionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionSuperseded()
	c.RecordSessionsSwept(3)
	c.SetActiveSessions(5)
	c.SetActiveSessions(4)

	if v := findMetricFamily(t, reg, "ongdesk_sessions_superseded_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("sessions_superseded_total = %v, want 1", v)
	}
	if v := findMetricFamily(t, reg, "ongdesk_sessions_swept_total").GetMetric()[0].GetCounter().GetValue(); v != 3 {
		t.Errorf("sessions_swept_total = %v, want 3", v)
	}
	if v := findMetricFamily(t, reg, "ongdesk_active_sessions").GetMetric()[0].GetGauge().GetValue(); v != 4 {
		t.Errorf("active_sessions = %v, want 4", v)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコードのラベル付きでカウントされることを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)

	mf := findMetricFamily(t, reg, "ongdesk_http_status_total")
	statusCounts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		statusCounts[labelValue(m, "status_code")] = m.GetCounter().GetValue()
	}
	if statusCounts["200"] != 2 {
		t.Errorf("status 200 count = %v, want 2", statusCounts["200"])
	}
	if statusCounts["409"] != 1 {
		t.Errorf("status 409 count = %v, want 1", statusCounts["409"])
	}
}

// TestRecordRequestDuration_ObservesHistogram はヒストグラムに観測値が記録されることを検証する。
func TestRecordRequestDuration_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestDuration(150 * time.Millisecond)

	h := findMetricFamily(t, reg, "ongdesk_http_request_duration_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.14 || h.GetSampleSum() > 0.16 {
		t.Errorf("sample sum = %v, want ~0.15", h.GetSampleSum())
	}
}

// TestHandler_ServesPrometheusFormat はHandlerがPrometheus形式で出力することを検証する。
func TestHandler_ServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordScanningTransition("start")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ongdesk_scanning_transitions_total") {
		t.Error("response should contain ongdesk_scanning_transitions_total metric")
	}
}

// TestMultipleCollectors_IndependentRegistries は別レジストリのCollectorが干渉しないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	NewCollector(reg2)

	c1.RecordSessionSuperseded()

	if v := findMetricFamily(t, reg2, "ongdesk_sessions_superseded_total").GetMetric()[0].GetCounter().GetValue(); v != 0 {
		t.Errorf("reg2 sessions_superseded_total = %v, want 0", v)
	}
}
