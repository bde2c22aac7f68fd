package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// mockCloudWatch implements PutMetricDataAPI for testing.
type mockCloudWatch struct {
	err    error
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimensionValue(dims []types.Dimension, name string) string {
	for _, d := range dims {
		if aws.ToString(d.Name) == name {
			return aws.ToString(d.Value)
		}
	}
	return ""
}

func TestCloudWatchCollector_Forwarded(t *testing.T) {
	t.Parallel()

	cw := &mockCloudWatch{}
	c := NewCloudWatchCollector(cw, "ForwardRelay", map[string]string{"Provider": "ses"})

	c.Forwarded(42)

	if len(cw.inputs) != 1 {
		t.Fatalf("PutMetricData calls: got %d, want 1", len(cw.inputs))
	}
	in := cw.inputs[0]
	if aws.ToString(in.Namespace) != "ForwardRelay" {
		t.Errorf("Namespace: got %q", aws.ToString(in.Namespace))
	}
	if len(in.MetricData) != 2 {
		t.Fatalf("MetricData: got %d datums, want 2", len(in.MetricData))
	}

	count, latency := in.MetricData[0], in.MetricData[1]
	if aws.ToString(count.MetricName) != "MessageForwarded" || aws.ToFloat64(count.Value) != 1 {
		t.Errorf("count datum: got %s=%v", aws.ToString(count.MetricName), aws.ToFloat64(count.Value))
	}
	if aws.ToString(latency.MetricName) != "ForwardLatency" || aws.ToFloat64(latency.Value) != 42 {
		t.Errorf("latency datum: got %s=%v", aws.ToString(latency.MetricName), aws.ToFloat64(latency.Value))
	}
	if latency.Unit != types.StandardUnitMilliseconds {
		t.Errorf("latency unit: got %v", latency.Unit)
	}
	if dimensionValue(count.Dimensions, "Provider") != "ses" {
		t.Errorf("Provider dimension missing: %+v", count.Dimensions)
	}
}

func TestCloudWatchCollector_SkippedAddsStage(t *testing.T) {
	t.Parallel()

	cw := &mockCloudWatch{}
	c := NewCloudWatchCollector(cw, "ForwardRelay", map[string]string{"Provider": "ses"})

	c.Skipped("fetching")
	c.Skipped("dispatching")

	if len(cw.inputs) != 2 {
		t.Fatalf("PutMetricData calls: got %d, want 2", len(cw.inputs))
	}
	first := cw.inputs[0].MetricData[0]
	if aws.ToString(first.MetricName) != "MessageSkipped" {
		t.Errorf("MetricName: got %q", aws.ToString(first.MetricName))
	}
	if got := dimensionValue(first.Dimensions, "Stage"); got != "fetching" {
		t.Errorf("Stage: got %q, want %q", got, "fetching")
	}
	if got := dimensionValue(cw.inputs[1].MetricData[0].Dimensions, "Stage"); got != "dispatching" {
		t.Errorf("Stage: got %q, want %q", got, "dispatching")
	}
	// The shared dimensions must not be mutated by the Stage append.
	if len(c.dimensions) != 1 {
		t.Errorf("collector dimensions changed: %+v", c.dimensions)
	}
}

func TestCloudWatchCollector_ErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	cw := &mockCloudWatch{err: errors.New("throttled")}
	c := NewCloudWatchCollector(cw, "ForwardRelay", nil)

	c.CleanupFailed()

	if len(cw.inputs) != 1 {
		t.Fatalf("PutMetricData calls: got %d, want 1", len(cw.inputs))
	}
	if aws.ToString(cw.inputs[0].MetricData[0].MetricName) != "CleanupFailed" {
		t.Errorf("MetricName: got %q", aws.ToString(cw.inputs[0].MetricData[0].MetricName))
	}
}

func TestNewCloudWatchCollector_SortsDimensions(t *testing.T) {
	t.Parallel()

	c := NewCloudWatchCollector(&mockCloudWatch{}, "ns", map[string]string{"b": "2", "a": "1", "c": "3"})

	var names []string
	for _, d := range c.dimensions {
		names = append(names, aws.ToString(d.Name))
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("dimension order: got %v, want [a b c]", names)
	}
}

func TestNop(t *testing.T) {
	t.Parallel()

	var c Collector = Nop{}
	c.Forwarded(1)
	c.Skipped("fetching")
	c.CleanupFailed()
}
