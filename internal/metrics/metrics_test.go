package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestCollector creates a Collector registered with its own fresh
// registry so tests don't conflict with each other or the default registry.
func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return New()
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestConnectionAdmittedUpdatesGaugeAndCounter(t *testing.T) {
	c := newTestCollector(t)

	c.ConnectionAdmitted("mysql")
	c.ConnectionAdmitted("mysql")

	if v := getGaugeValue(c.connectionsCurrent.WithLabelValues("mysql")); v != 2 {
		t.Errorf("current connections = %v, want 2", v)
	}
	if v := getCounterValue(c.connectionsTotal.WithLabelValues("mysql")); v != 2 {
		t.Errorf("total connections = %v, want 2", v)
	}
}

func TestConnectionClosedDecrementsGauge(t *testing.T) {
	c := newTestCollector(t)

	c.ConnectionAdmitted("mysql")
	c.ConnectionAdmitted("mysql")
	c.ConnectionClosed("mysql", 50*time.Millisecond)

	if v := getGaugeValue(c.connectionsCurrent.WithLabelValues("mysql")); v != 1 {
		t.Errorf("current connections = %v, want 1", v)
	}

	families, err := c.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "hchdb_connection_duration_seconds" {
			found = true
			m := f.GetMetric()
			if len(m) == 0 || m[0].GetHistogram().GetSampleCount() != 1 {
				t.Errorf("expected 1 duration sample, got %+v", m)
			}
		}
	}
	if !found {
		t.Error("connection duration metric not found")
	}
}

func TestConnectionRejectedIncrementsCounter(t *testing.T) {
	c := newTestCollector(t)

	c.ConnectionRejected("management")
	c.ConnectionRejected("management")
	c.ConnectionRejected("management")

	if v := getCounterValue(c.connectionsRejected.WithLabelValues("management")); v != 3 {
		t.Errorf("rejected connections = %v, want 3", v)
	}
}

func TestCommandCompletedTracksCountAndDuration(t *testing.T) {
	c := newTestCollector(t)

	c.CommandCompleted("QUERY", 5*time.Millisecond)
	c.CommandCompleted("QUERY", 10*time.Millisecond)

	if v := getCounterValue(c.commandsTotal.WithLabelValues("QUERY")); v != 2 {
		t.Errorf("commands total = %v, want 2", v)
	}

	families, _ := c.Registry.Gather()
	for _, f := range families {
		if f.GetName() == "hchdb_command_duration_seconds" {
			m := f.GetMetric()
			if len(m) > 0 && m[0].GetHistogram().GetSampleCount() != 2 {
				t.Errorf("expected 2 duration samples, got %d", m[0].GetHistogram().GetSampleCount())
			}
		}
	}
}

func TestAuthOutcomeSeparatesLabels(t *testing.T) {
	c := newTestCollector(t)

	c.AuthOutcome("ok")
	c.AuthOutcome("ok")
	c.AuthOutcome("denied")

	if v := getCounterValue(c.authOutcomes.WithLabelValues("ok")); v != 2 {
		t.Errorf("ok outcomes = %v, want 2", v)
	}
	if v := getCounterValue(c.authOutcomes.WithLabelValues("denied")); v != 1 {
		t.Errorf("denied outcomes = %v, want 1", v)
	}
}

func TestNewDoesNotPanicOnMultipleCalls(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("New() panicked on repeated calls: %v", r)
		}
	}()

	c1 := New()
	c2 := New()

	c1.ConnectionAdmitted("mysql")
	c2.ConnectionAdmitted("mysql")
	c2.ConnectionAdmitted("mysql")

	if v := getGaugeValue(c1.connectionsCurrent.WithLabelValues("mysql")); v != 1 {
		t.Errorf("c1 current connections = %v, want 1", v)
	}
	if v := getGaugeValue(c2.connectionsCurrent.WithLabelValues("mysql")); v != 2 {
		t.Errorf("c2 current connections = %v, want 2", v)
	}
}
