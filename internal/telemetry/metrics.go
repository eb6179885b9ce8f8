package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "qms/admission-service"

// Metrics holds the admission counters exported over OTLP.
type Metrics struct {
	EntrantsRegistered metric.Int64Counter
	EntrantsDispatched metric.Int64Counter
	TriageWait         metric.Float64Histogram
	ClientsWaitlisted  metric.Int64Counter
	ClientsSeated      metric.Int64Counter
	SeatingRejected    metric.Int64Counter
	SessionsOpen       metric.Int64UpDownCounter
}

// DefaultMeter returns the meter of the global provider.
func DefaultMeter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	entrantsRegistered, err := meter.Int64Counter(
		"admission.triage.registered",
		metric.WithDescription("Number of entrants registered"),
	)
	if err != nil {
		return nil, err
	}

	entrantsDispatched, err := meter.Int64Counter(
		"admission.triage.dispatched",
		metric.WithDescription("Number of entrants dispatched"),
	)
	if err != nil {
		return nil, err
	}

	triageWait, err := meter.Float64Histogram(
		"admission.triage.wait",
		metric.WithDescription("Time from arrival to dispatch"),
		metric.WithUnit("min"),
	)
	if err != nil {
		return nil, err
	}

	clientsWaitlisted, err := meter.Int64Counter(
		"admission.waitlist.added",
		metric.WithDescription("Number of parties added to the waitlist"),
	)
	if err != nil {
		return nil, err
	}

	clientsSeated, err := meter.Int64Counter(
		"admission.waitlist.seated",
		metric.WithDescription("Number of parties seated"),
	)
	if err != nil {
		return nil, err
	}

	seatingRejected, err := meter.Int64Counter(
		"admission.waitlist.rejected",
		metric.WithDescription("Number of call-next attempts without a free table"),
	)
	if err != nil {
		return nil, err
	}

	sessionsOpen, err := meter.Int64UpDownCounter(
		"admission.sessions.open",
		metric.WithDescription("Number of open sessions"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		EntrantsRegistered: entrantsRegistered,
		EntrantsDispatched: entrantsDispatched,
		TriageWait:         triageWait,
		ClientsWaitlisted:  clientsWaitlisted,
		ClientsSeated:      clientsSeated,
		SeatingRejected:    seatingRejected,
		SessionsOpen:       sessionsOpen,
	}, nil
}
