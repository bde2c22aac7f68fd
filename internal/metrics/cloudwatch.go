package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// PutMetricDataAPI is the CloudWatch operation used by CloudWatchCollector.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector publishes metrics with PutMetricData. Failures are
// logged and never returned to the caller.
type CloudWatchCollector struct {
	cw         PutMetricDataAPI
	namespace  string
	dimensions []types.Dimension
	timeout    time.Duration
}

// NewCloudWatchCollector creates a collector that attaches dimensions to
// every datum.
func NewCloudWatchCollector(cw PutMetricDataAPI, namespace string, dimensions map[string]string) *CloudWatchCollector {
	names := make([]string, 0, len(dimensions))
	for k := range dimensions {
		names = append(names, k)
	}
	sort.Strings(names)

	dims := make([]types.Dimension, 0, len(dimensions))
	for _, k := range names {
		dims = append(dims, types.Dimension{Name: aws.String(k), Value: aws.String(dimensions[k])})
	}
	return &CloudWatchCollector{
		cw:         cw,
		namespace:  namespace,
		dimensions: dims,
		timeout:    10 * time.Second, // per-call timeout
	}
}

// Forwarded adds one forwarded message and its latency in milliseconds.
func (c *CloudWatchCollector) Forwarded(timeMs int64) {
	c.put("Forwarded",
		c.datum("MessageForwarded", c.dimensions, types.StandardUnitCount, 1),
		c.datum("ForwardLatency", c.dimensions, types.StandardUnitMilliseconds, float64(timeMs)),
	)
}

// Skipped adds one skipped message, dimensioned by the failing stage.
func (c *CloudWatchCollector) Skipped(stage string) {
	dims := append(append([]types.Dimension(nil), c.dimensions...),
		types.Dimension{Name: aws.String("Stage"), Value: aws.String(stage)})
	c.put("Skipped", c.datum("MessageSkipped", dims, types.StandardUnitCount, 1))
}

// CleanupFailed adds one failed intake cleanup.
func (c *CloudWatchCollector) CleanupFailed() {
	c.put("CleanupFailed", c.datum("CleanupFailed", c.dimensions, types.StandardUnitCount, 1))
}

func (c *CloudWatchCollector) datum(name string, dims []types.Dimension, unit types.StandardUnit, value float64) types.MetricDatum {
	now := time.Now()
	return types.MetricDatum{
		MetricName: aws.String(name),
		Timestamp:  &now,
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(value),
	}
}

func (c *CloudWatchCollector) put(metric string, data ...types.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	})
	if err != nil {
		slog.Error("failed to send CloudWatch metric", "metric", metric, "error", err)
	}
}
