package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/service"
	"github.com/mlyard/mlyard/internal/tasks"
)

// defaultExportTimeout bounds one OTLP export call when the config does
// not say otherwise
const defaultExportTimeout = 10 * time.Second

// ExportWorker pushes a completed run's metric series to an OTLP
// collector over gRPC
type ExportWorker struct {
	logger     *zap.Logger
	cfg        config.ExportConfig
	runRepo    service.RunRepository
	metricRepo service.MetricRepository
}

// NewExportWorker creates a new export worker
func NewExportWorker(
	logger *zap.Logger,
	cfg config.ExportConfig,
	runRepo service.RunRepository,
	metricRepo service.MetricRepository,
) *ExportWorker {
	return &ExportWorker{
		logger:     logger,
		cfg:        cfg,
		runRepo:    runRepo,
		metricRepo: metricRepo,
	}
}

// ProcessTask exports one run's metrics
func (w *ExportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.MetricExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal export payload: %v: %w", err, asynq.SkipRetry)
	}

	if !w.cfg.Enabled || w.cfg.OTLPTarget == "" {
		return nil
	}

	run, err := w.runRepo.GetByID(ctx, payload.RunID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	request, points, err := w.buildRequest(ctx, run)
	if err != nil {
		return err
	}
	if points == 0 {
		return nil
	}

	if err := w.export(ctx, request); err != nil {
		return fmt.Errorf("otlp export for run %s failed: %w", run.ID, err)
	}

	w.logger.Info("exported run metrics",
		zap.String("run_id", run.ID),
		zap.Int("points", points),
		zap.String("target", w.cfg.OTLPTarget))

	return nil
}

// buildRequest converts a run's metric series to an OTLP export request
func (w *ExportWorker) buildRequest(ctx context.Context, run *domain.Run) (*colmetricspb.ExportMetricsServiceRequest, int, error) {
	names, err := w.metricRepo.ListNames(ctx, run.ID)
	if err != nil {
		return nil, 0, err
	}

	total := 0
	otlpMetrics := make([]*metricspb.Metric, 0, len(names))
	for _, name := range names {
		points, err := w.metricRepo.GetHistory(ctx, run.ID, name)
		if err != nil {
			return nil, 0, err
		}
		if len(points) == 0 {
			continue
		}

		dataPoints := make([]*metricspb.NumberDataPoint, 0, len(points))
		for _, p := range points {
			dataPoints = append(dataPoints, &metricspb.NumberDataPoint{
				TimeUnixNano: uint64(p.Timestamp.UnixNano()),
				Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: p.Value},
				Attributes: []*commonpb.KeyValue{
					intAttribute("mlyard.step", p.Step),
				},
			})
		}

		otlpMetrics = append(otlpMetrics, &metricspb.Metric{
			Name: name,
			Data: &metricspb.Metric_Gauge{
				Gauge: &metricspb.Gauge{DataPoints: dataPoints},
			},
		})
		total += len(points)
	}

	serviceName := w.cfg.ServiceName
	if serviceName == "" {
		serviceName = "mlyard"
	}

	request := &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						stringAttribute("service.name", serviceName),
						stringAttribute("mlyard.run_id", run.ID),
						stringAttribute("mlyard.experiment_id", run.ExperimentID.String()),
					},
				},
				ScopeMetrics: []*metricspb.ScopeMetrics{
					{
						Scope:   &commonpb.InstrumentationScope{Name: "mlyard"},
						Metrics: otlpMetrics,
					},
				},
			},
		},
	}

	return request, total, nil
}

// export sends one request to the collector
func (w *ExportWorker) export(ctx context.Context, request *colmetricspb.ExportMetricsServiceRequest) error {
	creds := credentials.NewTLS(nil)
	if w.cfg.Insecure {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(w.cfg.OTLPTarget, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("failed to connect to collector: %w", err)
	}
	defer conn.Close()

	timeout := defaultExportTimeout
	if w.cfg.TimeoutSec > 0 {
		timeout = time.Duration(w.cfg.TimeoutSec) * time.Second
	}
	exportCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := colmetricspb.NewMetricsServiceClient(conn)
	_, err = client.Export(exportCtx, request)
	return err
}

func stringAttribute(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func intAttribute(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}},
	}
}
