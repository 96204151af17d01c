package core

import "time"

// Metric names a health or environment data source the context assembler can
// fan out to.
type Metric string

const (
	// MetricSleep is last night's sleep duration in hours.
	MetricSleep Metric = "sleep"
	// MetricRestingHR is the most recent resting heart rate in bpm.
	MetricRestingHR Metric = "resting_hr"
	// MetricSteps is today's step count.
	MetricSteps Metric = "steps"
	// MetricWeight is the latest body weight in kilograms.
	MetricWeight Metric = "weight"
	// MetricActiveEnergy is today's active energy burn in kcal.
	MetricActiveEnergy Metric = "active_energy"
	// MetricWeather is a short local weather summary.
	MetricWeather Metric = "weather"
)

// AllMetrics lists every metric the assembler fetches by default.
func AllMetrics() []Metric {
	return []Metric{MetricSleep, MetricRestingHR, MetricSteps, MetricWeight, MetricActiveEnergy, MetricWeather}
}

// MetricValue is the union of values a provider can return for a metric.
// Numeric metrics populate Number, textual metrics (weather) populate Text.
type MetricValue struct {
	Number *float64 `json:"number,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// HealthContextSnapshot is the immutable merged view of point-in-time
// metrics. Fields are nil when a source was unavailable; construction never
// fails. Missing records the metrics whose fetch failed, for observability.
type HealthContextSnapshot struct {
	UserID       string    `json:"user_id"`
	SleepHours   *float64  `json:"sleep_hours,omitempty"`
	RestingHR    *float64  `json:"resting_hr,omitempty"`
	Steps        *float64  `json:"steps,omitempty"`
	WeightKg     *float64  `json:"weight_kg,omitempty"`
	ActiveEnergy *float64  `json:"active_energy,omitempty"`
	Weather      string    `json:"weather,omitempty"`
	Missing      []Metric  `json:"missing,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Has reports whether a given metric is present in the snapshot.
func (s HealthContextSnapshot) Has(m Metric) bool {
	switch m {
	case MetricSleep:
		return s.SleepHours != nil
	case MetricRestingHR:
		return s.RestingHR != nil
	case MetricSteps:
		return s.Steps != nil
	case MetricWeight:
		return s.WeightKg != nil
	case MetricActiveEnergy:
		return s.ActiveEnergy != nil
	case MetricWeather:
		return s.Weather != ""
	default:
		return false
	}
}

// Empty reports whether no metric at all was collected.
func (s HealthContextSnapshot) Empty() bool {
	for _, m := range AllMetrics() {
		if s.Has(m) {
			return false
		}
	}
	return true
}
