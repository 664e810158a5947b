// Package mqtt provides MQTT client connectivity for Spyglass Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Spyglass uses MQTT as the message bus between the home-automation
// controller and the SecuritySpy bridge. The broker (Mosquitto) decouples
// controller clients from the surveillance-server plumbing.
//
//	Controller clients ↔ MQTT Broker ↔ Spyglass Core ↔ SecuritySpy
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device commands
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish camera state
//	topic := mqtt.Topics{}.DeviceState("office:3")
//	client.PublishRetained(topic, []byte(`{"status":"active"}`))
package mqtt
