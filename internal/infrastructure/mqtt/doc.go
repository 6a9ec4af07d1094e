// Package mqtt publishes CAD Core admission events to an MQTT broker.
//
// The client is publish-only: registration and login outcomes fan out to
// moderation UIs and audit collectors on cadcore/auth/# topics, and a
// retained status message with a Last Will and Testament lets subscribers
// detect the service going offline. The broker is optional; when disabled
// in configuration the service runs without event fan-out.
package mqtt
