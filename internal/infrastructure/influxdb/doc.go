// Package influxdb provides optional time-series telemetry for ZenBridge.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking batched writes of device metrics
//   - Asynchronous write error handling
//   - Health monitoring
//
// Telemetry is strictly optional: when disabled in config, Connect returns
// ErrDisabled and the rest of the bridge runs without it. Numeric device
// state changes (brightness, on/off) and sensor transitions are recorded as
// points for trend analysis.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // Telemetry off, continue without it
//	}
//	defer client.Close()
//
//	client.WriteDeviceMetric("light-zc-0001-12", "brightness", 191)
package influxdb
