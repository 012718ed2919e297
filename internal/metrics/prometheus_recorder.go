package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sousvide"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	temperature     prom.Gauge
	setpoint        prom.Gauge
	running         prom.Gauge
	heater          prom.Gauge
	onTime          prom.Gauge
	pidTerms        *prom.GaugeVec
	windows         *prom.CounterVec
	tickErrors      *prom.CounterVec
	commands        *prom.CounterVec
	tickDuration    prom.Histogram
	autotuneResults *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the controller metrics on reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		temperature: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last measured bath temperature",
		}),
		setpoint: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "setpoint_celsius",
			Help:      "Current target temperature",
		}),
		running: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while duty-cycle control is active",
		}),
		heater: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "heater_on",
			Help:      "1 while the heater output is commanded on",
		}),
		onTime: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "window_on_time_seconds",
			Help:      "Heater on time within the current window",
		}),
		pidTerms: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "pid_term",
			Help:      "Contribution of each PID term at the last window",
		}, []string{"term"}),
		windows: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Duty-cycle windows started, by controller mode",
		}, []string{"mode"}),
		tickErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Ticks aborted by an error, by error kind",
		}, []string{"kind"}),
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands applied, by command",
		}, []string{"command"}),
		tickDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent inside one control tick",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		autotuneResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "autotune_attempts_total",
			Help:      "Autotune attempts by result",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.temperature, pr.setpoint, pr.running, pr.heater, pr.onTime,
		pr.pidTerms, pr.windows, pr.tickErrors, pr.commands, pr.tickDuration, pr.autotuneResults)
	return pr
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (p *PrometheusRecorder) SetTemperature(c float64) { p.temperature.Set(c) }
func (p *PrometheusRecorder) SetSetpoint(c float64)    { p.setpoint.Set(c) }
func (p *PrometheusRecorder) SetRunning(v bool)        { p.running.Set(boolGauge(v)) }
func (p *PrometheusRecorder) SetHeater(on bool)        { p.heater.Set(boolGauge(on)) }

func (p *PrometheusRecorder) SetOnTime(d time.Duration) {
	p.onTime.Set(d.Seconds())
}

func (p *PrometheusRecorder) SetPIDTerms(pt, it, dt float64) {
	p.pidTerms.WithLabelValues("p").Set(pt)
	p.pidTerms.WithLabelValues("i").Set(it)
	p.pidTerms.WithLabelValues("d").Set(dt)
}

func (p *PrometheusRecorder) IncWindow(manual bool) {
	mode := "auto"
	if manual {
		mode = "manual"
	}
	p.windows.WithLabelValues(mode).Inc()
}

func (p *PrometheusRecorder) IncTickError(kind string) {
	p.tickErrors.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncCommand(command string) {
	p.commands.WithLabelValues(command).Inc()
}

func (p *PrometheusRecorder) ObserveTickDuration(d time.Duration) {
	p.tickDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncAutotuneAttempt(result string) {
	p.autotuneResults.WithLabelValues(result).Inc()
}
