package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceMetric writes a single device measurement to InfluxDB.
//
// This is the primary method for recording device telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "light-zc-0001-12")
//   - measurement: The metric name (e.g., "brightness", "is_on")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric("light-zc-0001-12", "brightness", 191)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSensorEvent writes a motion or occupancy transition.
//
// Sensors report boolean state; values are recorded as 0/1 so duration
// and activity queries stay simple.
//
// Parameters:
//   - deviceID: Sensor identifier
//   - kind: "motion" or "occupancy"
//   - active: Whether the sensor became active
func (c *Client) WriteSensorEvent(deviceID string, kind string, active bool) {
	if !c.IsConnected() {
		return
	}

	value := 0.0
	if active {
		value = 1.0
	}

	point := write.NewPoint(
		"sensor_events",
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
