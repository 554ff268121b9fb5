// Package devbroker is an optional embedded MQTT broker the serve command
// can boot for zero-config local testing: a model configured with
// protocol "mqtt" and no broker host needs somewhere to connect. Adapted
// from the teacher's pkg/mqtt.Broker (pkg/mqtt/broker.go), stripped of
// the mock-response/conditional-response/session-manager/recording
// machinery mockd's own MQTT protocol handler needs — this broker only
// accepts connections and fans out publishes, which is all a telemetry
// sink needs to observe.
package devbroker
