package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// maxDatumsPerRequest is the PutMetricData limit.
const maxDatumsPerRequest = 1000

// PutMetricDataAPI is the part of the CloudWatch client the recorder uses.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder buffers command and query metrics and sends them on
// Flush. Lambda handlers flush once per invocation.
type CloudWatchRecorder struct {
	client    PutMetricDataAPI
	namespace string
	logger    *zap.Logger

	mu      sync.Mutex
	pending []types.MetricDatum
	now     func() time.Time
}

func NewCloudWatchRecorder(client PutMetricDataAPI, namespace string, logger *zap.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger, now: time.Now}
}

func (r *CloudWatchRecorder) ObserveCommand(commandType string, duration time.Duration, err error) {
	r.record("CommandExecution", "CommandName", commandType, duration, err)
}

func (r *CloudWatchRecorder) ObserveQuery(queryType string, duration time.Duration, err error) {
	r.record("QueryExecution", "QueryName", queryType, duration, err)
}

func (r *CloudWatchRecorder) record(metric, dimension, name string, duration time.Duration, err error) {
	dims := []types.Dimension{
		{Name: aws.String(dimension), Value: aws.String(name)},
		{Name: aws.String("Outcome"), Value: aws.String(outcome(err))},
	}
	at := aws.Time(r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending,
		types.MetricDatum{
			MetricName: aws.String(metric),
			Dimensions: dims,
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       types.StandardUnitMilliseconds,
			Timestamp:  at,
		},
		types.MetricDatum{
			MetricName: aws.String(metric + "Count"),
			Dimensions: dims,
			Value:      aws.Float64(1),
			Unit:       types.StandardUnitCount,
			Timestamp:  at,
		},
	)
}

// Pending reports the number of buffered datums.
func (r *CloudWatchRecorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush sends the buffered datums. Datums of a failed request are
// dropped; metrics never fail the caller's operation.
func (r *CloudWatchRecorder) Flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	for start := 0; start < len(batch); start += maxDatumsPerRequest {
		end := start + maxDatumsPerRequest
		if end > len(batch) {
			end = len(batch)
		}
		_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(r.namespace),
			MetricData: batch[start:end],
		})
		if err != nil {
			r.logger.Warn("Failed to send metrics to CloudWatch",
				zap.Int("datums", end-start),
				zap.Error(err),
			)
		}
	}
}
