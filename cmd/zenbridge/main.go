// ZenBridge - zencontrol to home-automation bridge
//
// This is the main entry point for the ZenBridge application. ZenBridge
// connects zencontrol DALI lighting controllers to a host automation
// platform: UDP unicast for commands, multicast for event notification,
// MQTT and WebSocket for the outward-facing surfaces.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/zenbridge/migrations"

	"github.com/nerrad567/zenbridge/internal/api"
	"github.com/nerrad567/zenbridge/internal/infrastructure/config"
	"github.com/nerrad567/zenbridge/internal/infrastructure/database"
	"github.com/nerrad567/zenbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/zenbridge/internal/infrastructure/logging"
	"github.com/nerrad567/zenbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/zenbridge/internal/zencontrol"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting ZenBridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	recorder := zencontrol.NewRecorder(db, log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the bridge hub. The API server's WebSocket sink is wired in
	// after construction, before any socket opens.
	var wsSink zencontrol.EventSink
	sink := zencontrol.NewMultiSink(log,
		zencontrol.EventSinkFunc(func(event zencontrol.Event) {
			if wsSink != nil {
				wsSink.Publish(event)
			}
		}),
		newMQTTEventSink(mqttClient, cfg.MQTT.QoS, log),
	)

	hub := zencontrol.NewHub(zencontrol.HubConfig{
		MulticastGroup: cfg.Network.MulticastGroup,
		MulticastPort:  cfg.Network.MulticastPort,
		UDPPort:        cfg.Network.UDPPort,
		CommandTimeout: cfg.GetCommandTimeout(),
		StaleTimeout:   cfg.GetControllerStaleTimeout(),
		Controllers:    controllerSeeds(cfg),
	}, sink, log)

	hub.SetStateObserver(newStateObserver(recorder, mqttClient, influxClient, cfg.MQTT.QoS, log))

	discovery := zencontrol.NewDiscovery(hub, cfg.GetDiscoveryTimeout(), log)

	// API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Bridge:    hub,
		Discovery: discovery,
		Recorder:  recorder,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	wsSink = server.EventSink()

	// Open the bridge sockets
	if err := hub.Start(); err != nil {
		return fmt.Errorf("starting bridge hub: %w", err)
	}
	defer hub.Stop()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Initial discovery populates the device index from the network.
	go discovery.Run(ctx, false)

	log.Info("ZenBridge running",
		"multicast", fmt.Sprintf("%s:%d", cfg.Network.MulticastGroup, cfg.Network.MulticastPort),
		"udp_port", cfg.Network.UDPPort,
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// controllerSeeds converts configured controllers into hub seeds.
func controllerSeeds(cfg *config.Config) []zencontrol.ControllerSeed {
	seeds := make([]zencontrol.ControllerSeed, 0, len(cfg.Controllers))
	for uid, controller := range cfg.Controllers {
		seeds = append(seeds, zencontrol.ControllerSeed{
			UID:              uid,
			IPAddress:        controller.IPAddress,
			Name:             controller.Name,
			DiscoveryEnabled: controller.DiscoveryEnabled,
		})
	}
	return seeds
}

// newMQTTEventSink mirrors every domain event to zenbridge/event/{type}.
// With MQTT disabled it discards events.
func newMQTTEventSink(client *mqtt.Client, qos int, log *logging.Logger) zencontrol.EventSink {
	if client == nil {
		return nil
	}
	topics := mqtt.Topics{}

	return zencontrol.EventSinkFunc(func(event zencontrol.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Error("marshaling event for MQTT", "event_type", event.Type, "error", err)
			return
		}
		if err := client.Publish(topics.Event(event.Type), payload, byte(qos), false); err != nil {
			log.Warn("publishing event to MQTT failed", "event_type", event.Type, "error", err)
		}

		// Controller transitions also get a retained status mirror so late
		// subscribers see the current fleet without replaying events.
		if event.ControllerID == "" {
			return
		}
		var status string
		switch event.Type {
		case zencontrol.EventControllerReady:
			status = "ready"
		case zencontrol.EventControllerRemoved:
			status = "removed"
		default:
			return
		}
		if err := client.Publish(topics.ControllerStatus(event.ControllerID), []byte(status), byte(qos), true); err != nil {
			log.Warn("publishing controller status to MQTT failed", "controller_id", event.ControllerID, "error", err)
		}
	})
}

// newStateObserver fans every effective device state change out to the
// snapshot store, the retained MQTT state topic, and InfluxDB telemetry.
func newStateObserver(recorder *zencontrol.Recorder, mqttClient *mqtt.Client, influxClient *influxdb.Client, qos int, log *logging.Logger) zencontrol.StateObserver {
	topics := mqtt.Topics{}

	return func(device zencontrol.Device, changed, full map[string]any) {
		ctx := context.Background()
		recorder.RecordChange(ctx, device, changed, full)

		if mqttClient != nil {
			payload, err := json.Marshal(map[string]any{
				"device_id": device.ID(),
				"type":      device.Type(),
				"state":     full,
			})
			if err != nil {
				log.Error("marshaling state for MQTT", "device_id", device.ID(), "error", err)
			} else if err := mqttClient.Publish(topics.DeviceState(device.ID()), payload, byte(qos), true); err != nil {
				log.Warn("publishing state to MQTT failed", "device_id", device.ID(), "error", err)
			}
		}

		if influxClient != nil {
			writeTelemetry(influxClient, device, changed)
		}
	}
}

// writeTelemetry records numeric and boolean state fields as metrics.
// Sensor activity goes through the dedicated sensor-event measurement.
func writeTelemetry(client *influxdb.Client, device zencontrol.Device, changed map[string]any) {
	deviceID := device.ID()

	for field, value := range changed {
		switch v := value.(type) {
		case int:
			client.WriteDeviceMetric(deviceID, field, float64(v))
		case float64:
			client.WriteDeviceMetric(deviceID, field, v)
		case bool:
			if field == "active" {
				continue
			}
			metric := 0.0
			if v {
				metric = 1.0
			}
			client.WriteDeviceMetric(deviceID, field, metric)
		}
	}

	if active, ok := changed["active"].(bool); ok {
		if sensor, isSensor := device.(*zencontrol.Sensor); isSensor {
			client.WriteSensorEvent(deviceID, sensor.SensorType(), active)
		}
	}
}

// getConfigPath returns the config file path from argv or the default.
func getConfigPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return defaultConfigPath
}
