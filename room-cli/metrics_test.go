package roomcli

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/tj/assert"
)

type fakeCloudWatch struct {
	cloudwatchiface.CloudWatchAPI
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricDataWithContext(_ aws.Context, input *cloudwatch.PutMetricDataInput, _ ...request.Option) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, input)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimension(datum *cloudwatch.MetricDatum, name DimensionName) string {
	for _, d := range datum.Dimensions {
		if aws.StringValue(d.Name) == string(name) {
			return aws.StringValue(d.Value)
		}
	}
	return ""
}

func TestMetrics(t *testing.T) {
	service := Service{Name: "ws-rooms", Version: "abc123"}

	t.Run("event publishes a count of one with service dimensions", func(t *testing.T) {
		client := &fakeCloudWatch{}
		m := NewMetrics(service, client)

		m.Event(context.Background(), EventsReceivedMetric)

		assert.Len(t, client.inputs, 1)
		assert.Equal(t, "room-app", aws.StringValue(client.inputs[0].Namespace))

		datum := client.inputs[0].MetricData[0]
		assert.Equal(t, string(EventsReceivedMetric), aws.StringValue(datum.MetricName))
		assert.Equal(t, "Count", aws.StringValue(datum.Unit))
		assert.Equal(t, float64(1), aws.Float64Value(datum.Value))
		assert.Equal(t, "ws-rooms", dimension(datum, ServiceNameDimension))
		assert.Equal(t, "abc123", dimension(datum, ServiceVersionDimension))
	})

	t.Run("gauge publishes the given value", func(t *testing.T) {
		client := &fakeCloudWatch{}
		m := NewMetrics(service, client)

		m.Gauge(context.Background(), EventsDeliveredMetric, 7, map[DimensionName]string{
			OperationNameDimension: "broadcast",
		})

		assert.Len(t, client.inputs, 1)
		datum := client.inputs[0].MetricData[0]
		assert.Equal(t, float64(7), aws.Float64Value(datum.Value))
		assert.Equal(t, "None", aws.StringValue(datum.Unit))
		assert.Equal(t, "broadcast", dimension(datum, OperationNameDimension))
	})

	t.Run("timing publishes milliseconds", func(t *testing.T) {
		client := &fakeCloudWatch{}
		m := NewMetrics(service, client)

		m.Timing(context.Background(), BroadcastTimeMetric, time.Now().Add(-time.Second))

		assert.Len(t, client.inputs, 1)
		datum := client.inputs[0].MetricData[0]
		assert.Equal(t, "Milliseconds", aws.StringValue(datum.Unit))
		assert.True(t, aws.Float64Value(datum.Value) >= 1000)
	})

	t.Run("empty dimension values are skipped", func(t *testing.T) {
		client := &fakeCloudWatch{}
		m := NewMetrics(Service{Name: "ws-rooms"}, client)

		m.Event(context.Background(), EventsReceivedMetric, map[DimensionName]string{
			OperationNameDimension: "",
		})

		datum := client.inputs[0].MetricData[0]
		assert.Equal(t, "", dimension(datum, OperationNameDimension))
		assert.Equal(t, "", dimension(datum, ServiceVersionDimension))
	})
}
