package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the shelter engine: lifecycle transitions, registrations,
// retention and import.
type Metrics struct {
	StatusChanges     *prometheus.CounterVec
	CheckIns          *prometheus.CounterVec
	CheckOuts         *prometheus.CounterVec
	Exports           prometheus.Counter
	Anonymisations    prometheus.Counter
	PersonsAnonymised prometheus.Counter
	ImportedRows      prometheus.Counter
	Population        *prometheus.GaugeVec
	OperationDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterd_shelter_status_changes_total",
			Help: "Shelter status transitions by target status",
		}, []string{"status"}),
		CheckIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterd_checkins_total",
			Help: "Check-ins by person kind",
		}, []string{"kind"}),
		CheckOuts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterd_checkouts_total",
			Help: "Check-outs by reason",
		}, []string{"reason"}),
		Exports: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_exports_total",
			Help: "Total number of shelter data exports",
		}),
		Anonymisations: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_anonymisations_total",
			Help: "Total number of shelters anonymised",
		}),
		PersonsAnonymised: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_persons_anonymised_total",
			Help: "Total number of person records anonymised, next of kin included",
		}),
		ImportedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_import_rows_total",
			Help: "Total number of registration rows imported",
		}),
		Population: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shelterd_shelter_population",
			Help: "Last recomputed population per shelter",
		}, []string{"shelter_id"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelterd_engine_operation_duration_seconds",
			Help:    "Duration of engine operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementStatusChange(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementCheckIn(kind string) {
	m.CheckIns.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddCheckOuts(reason string, n int) {
	m.CheckOuts.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) IncrementExports() {
	m.Exports.Inc()
}

func (m *Metrics) IncrementAnonymisations(persons int) {
	m.Anonymisations.Inc()
	m.PersonsAnonymised.Add(float64(persons))
}

func (m *Metrics) AddImportedRows(n int) {
	m.ImportedRows.Add(float64(n))
}

func (m *Metrics) SetPopulation(shelterID string, n int) {
	m.Population.WithLabelValues(shelterID).Set(float64(n))
}

// ObserveOperation records the duration of an engine operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
