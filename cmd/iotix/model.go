package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/crtx-sg/iotix/pkg/model"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage device models",
}

var (
	modelInitOutDir string
)

var modelInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create a new device model file",
	Long: `init walks through a form describing one device model - its
protocol, connection details, and a single telemetry attribute - and
writes it to --out-dir as "<id>.json", ready for the engine's
--models-dir to pick up.`,
	RunE: runModelInit,
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelInitCmd)

	modelInitCmd.Flags().StringVar(&modelInitOutDir, "out-dir", "./models", "directory the new model file is written to")
}

func runModelInit(cmd *cobra.Command, args []string) error {
	var (
		id           string
		name         string
		deviceType   string
		protocol     string
		brokerHost   string
		brokerPort   = "1883"
		attrName     string
		attrDataType string
		intervalMs   = "1000"
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Model ID").
				Placeholder("temp-sensor-v1").
				Value(&id).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("model ID is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Display name").
				Placeholder("Temperature Sensor").
				Value(&name),
			huh.NewSelect[string]().
				Title("Device type").
				Options(
					huh.NewOption("sensor", string(model.DeviceTypeSensor)),
					huh.NewOption("gateway", string(model.DeviceTypeGateway)),
					huh.NewOption("actuator", string(model.DeviceTypeActuator)),
					huh.NewOption("custom", string(model.DeviceTypeCustom)),
					huh.NewOption("proxy", string(model.DeviceTypeProxy)),
				).
				Value(&deviceType),
			huh.NewSelect[string]().
				Title("Wire protocol").
				Options(
					huh.NewOption("mqtt", string(model.ProtocolMQTT)),
					huh.NewOption("coap", string(model.ProtocolCoAP)),
					huh.NewOption("http", string(model.ProtocolHTTP)),
				).
				Value(&protocol),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Broker/endpoint host").
				Placeholder("127.0.0.1").
				Value(&brokerHost),
			huh.NewInput().
				Title("Port").
				Value(&brokerPort).
				Validate(validatePositiveInt),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("First telemetry attribute name").
				Placeholder("temperature").
				Value(&attrName).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("attribute name is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Attribute data type").
				Options(
					huh.NewOption("number", string(model.DataTypeNumber)),
					huh.NewOption("integer", string(model.DataTypeInteger)),
					huh.NewOption("boolean", string(model.DataTypeBoolean)),
					huh.NewOption("string", string(model.DataTypeString)),
				).
				Value(&attrDataType),
			huh.NewInput().
				Title("Publish interval (ms)").
				Value(&intervalMs).
				Validate(validatePositiveInt),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	port, _ := strconv.Atoi(brokerPort)
	interval, _ := strconv.Atoi(intervalMs)

	conn := model.ConnectionSpec{
		BrokerHost:   brokerHost,
		Port:         port,
		TopicPattern: fmt.Sprintf("devices/%s/telemetry", id),
	}
	if model.Protocol(protocol) == model.ProtocolHTTP {
		conn.BaseURL = fmt.Sprintf("http://%s:%d", brokerHost, port)
		conn.Path = fmt.Sprintf("/devices/%s/telemetry", id)
	}

	spec := &model.DeviceModel{
		ID:         id,
		Name:       name,
		Version:    "1.0.0",
		Type:       model.DeviceType(deviceType),
		Protocol:   model.Protocol(protocol),
		Connection: conn,
		Telemetry: []model.TelemetryAttributeSpec{
			{
				Name:     attrName,
				DataType: model.AttributeDataType(attrDataType),
				Generator: model.GeneratorSpec{
					Variant:      model.GeneratorRandom,
					Distribution: model.DistributionUniform,
				},
				IntervalMs: interval,
			},
		},
	}

	if spec.IsProxy() {
		spec.Telemetry = nil
	}

	if err := spec.Validate(); err != nil {
		return fmt.Errorf("model is invalid: %w", err)
	}

	outPath := filepath.Join(modelInitOutDir, id+".json")
	if err := model.SaveModel(outPath, spec); err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	fmt.Printf("Wrote model %q to %s\n", id, outPath)
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("must be a whole number")
	}
	if n <= 0 {
		return errors.New("must be positive")
	}
	return nil
}
