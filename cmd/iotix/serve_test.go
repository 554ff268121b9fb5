package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crtx-sg/iotix/pkg/engine"
)

func TestApplyServeFlags_OverridesOnlySetFields(t *testing.T) {
	resetServeFlags()
	defer resetServeFlags()

	cfg := engine.DefaultConfig()
	servePort = 9090
	serveSinkOutput = "stdout"

	applyServeFlags(&cfg)

	assert.Equal(t, 9090, cfg.ControlPlanePort)
	assert.Equal(t, engine.SinkOutputStdout, cfg.SinkOutput)
	// untouched fields keep their defaults
	assert.Equal(t, engine.DefaultConfig().DefaultBrokerHost, cfg.DefaultBrokerHost)
}

func TestApplyServeFlags_NoFlagsLeavesDefaults(t *testing.T) {
	resetServeFlags()
	defer resetServeFlags()

	cfg := engine.DefaultConfig()
	applyServeFlags(&cfg)

	assert.Equal(t, engine.DefaultConfig(), cfg)
}

func resetServeFlags() {
	serveModelsDir = ""
	servePort = 0
	serveLogLevel = ""
	serveLogFormat = ""
	serveSinkOutput = ""
	serveSinkURL = ""
	serveSinkToken = ""
	serveBrokerHost = ""
	serveBrokerPort = 0
	serveWithBroker = false
	serveLocalBrokerPort = 1883
}
