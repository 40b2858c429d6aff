// Package mqtt provides MQTT client connectivity for ZenBridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// ZenBridge uses MQTT as its outbound event bus: domain events observed on
// the zencontrol network (device additions, button presses, motion, state
// changes) are published for the host automation platform to consume, and
// retained device state topics give late subscribers the current picture.
//
//	zencontrol controllers ↔ ZenBridge ↔ MQTT Broker ↔ automation platform
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.Event("device_added")
//	client.Publish(topic, payload, 1, false)
package mqtt
