package metrics

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var log = logging.Logger("metrics")

var (
	// ReconcileCycles counts reconciliation cycles by result attribute.
	ReconcileCycles metric.Int64Counter

	// NodesUpserted counts node rows inserted or updated.
	NodesUpserted metric.Int64Counter

	// NodesDeleted counts node rows deleted.
	NodesDeleted metric.Int64Counter

	// TotalNodes reports the node count of the last committed cycle.
	TotalNodes metric.Int64Gauge

	// LastSuccessTimestamp reports the unix time of the last successful cycle,
	// so operators can alert on staleness.
	LastSuccessTimestamp metric.Float64Gauge

	// ConstraintAlerts counts constraint violations caused by remote data,
	// the one failure class that is an alert condition rather than a retry.
	ConstraintAlerts metric.Int64Counter
)

func init() {
	// Bind instruments to the global provider so they are usable (as no-ops)
	// even when the Prometheus exporter is never installed.
	register(otel.GetMeterProvider())
}

func register(provider metric.MeterProvider) {
	meter := provider.Meter("github.com/aethernet/indexer")

	var err error
	ReconcileCycles, err = meter.Int64Counter(
		"indexer_reconcile_cycles_total",
		metric.WithDescription("Total number of reconciliation cycles by result"),
	)
	if err != nil {
		log.Errorf("creating ReconcileCycles counter: %v", err)
	}

	NodesUpserted, err = meter.Int64Counter(
		"indexer_nodes_upserted_total",
		metric.WithDescription("Total number of node records inserted or updated"),
	)
	if err != nil {
		log.Errorf("creating NodesUpserted counter: %v", err)
	}

	NodesDeleted, err = meter.Int64Counter(
		"indexer_nodes_deleted_total",
		metric.WithDescription("Total number of node records deleted"),
	)
	if err != nil {
		log.Errorf("creating NodesDeleted counter: %v", err)
	}

	TotalNodes, err = meter.Int64Gauge(
		"indexer_total_nodes",
		metric.WithDescription("Node count as of the last committed reconciliation"),
	)
	if err != nil {
		log.Errorf("creating TotalNodes gauge: %v", err)
	}

	LastSuccessTimestamp, err = meter.Float64Gauge(
		"indexer_last_success_timestamp_seconds",
		metric.WithDescription("Unix time of the last successful reconciliation cycle"),
	)
	if err != nil {
		log.Errorf("creating LastSuccessTimestamp gauge: %v", err)
	}

	ConstraintAlerts, err = meter.Int64Counter(
		"indexer_constraint_alerts_total",
		metric.WithDescription("Constraint violations caused by remote data"),
	)
	if err != nil {
		log.Errorf("creating ConstraintAlerts counter: %v", err)
	}
}

// Init installs a MeterProvider backed by the Prometheus exporter and rebinds
// all instruments to it.
func Init() error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	register(provider)

	log.Info("metrics initialized with Prometheus exporter")
	return nil
}
