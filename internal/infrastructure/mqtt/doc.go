// Package mqtt provides MQTT client connectivity for FinBoard Core.
//
// MQTT is optional. When enabled, widget state is fanned out to a broker as
// retained messages so other processes can follow the board without polling
// the HTTP API, and refresh commands can be sent back in.
//
//	FinBoard Core → MQTT Broker → subscribers
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on {prefix}/system/status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().WidgetState(id)
//	client.Publish(topic, payload, client.QoS(), true)
package mqtt
