//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/environment"
	"github.com/binkynet/MotorWorker/pkg/logging"
	"github.com/binkynet/MotorWorker/pkg/server"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
	"github.com/binkynet/MotorWorker/pkg/service/motors"
	"github.com/binkynet/MotorWorker/pkg/service/mqtt"
	"github.com/binkynet/MotorWorker/pkg/ui"
)

const (
	projectName       = "BinkyNet Motor Worker"
	defaultServerPort = 7130
	defaultSSHPort    = 7131
	shutdownTimeout   = time.Second * 5
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

// Defaults of the command line flags, taken from the environment.
type envDefaults struct {
	LogLevel   string `env:"MOTORWORKER_LOG_LEVEL" envDefault:"info"`
	LogFile    string `env:"MOTORWORKER_LOG_FILE"`
	Bridge     string `env:"MOTORWORKER_BRIDGE" envDefault:"auto"`
	ConfigPath string `env:"MOTORWORKER_CONFIG" envDefault:"/etc/binky/motors.yaml"`
	Host       string `env:"MOTORWORKER_HOST" envDefault:"0.0.0.0"`
	Port       int    `env:"MOTORWORKER_PORT" envDefault:"7130"`
	SSHPort    int    `env:"MOTORWORKER_SSH_PORT" envDefault:"7131"`
	MQTTBroker string `env:"MOTORWORKER_MQTT_BROKER"`
	MQTTLogs   bool   `env:"MOTORWORKER_MQTT_LOGS" envDefault:"false"`
	ModuleID   string `env:"MOTORWORKER_MODULE_ID"`
}

func main() {
	defaults := envDefaults{Port: defaultServerPort, SSHPort: defaultSSHPort}
	if err := env.Parse(&defaults); err != nil {
		Exitf("Failed to parse environment: %v\n", err)
	}
	if defaults.ModuleID == "" {
		defaults.ModuleID, _ = os.Hostname()
	}

	var levelFlag string
	var logFile string
	var bridgeType string
	var configPath string
	var serverHost string
	var serverPort int
	var sshPort int
	var mqttBroker string
	var mqttLogs bool
	var moduleID string

	pflag.StringVarP(&levelFlag, "level", "l", defaults.LogLevel, "Set log level")
	pflag.StringVar(&logFile, "log-file", defaults.LogFile, "Also write logs to this file")
	pflag.StringVarP(&bridgeType, "bridge", "b", defaults.Bridge, "Type of bridge to use (auto|rpi|virtual)")
	pflag.StringVarP(&configPath, "config", "c", defaults.ConfigPath, "Path of the hardware configuration file")
	pflag.StringVar(&serverHost, "host", defaults.Host, "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaults.Port, "Port the HTTP server will listen on")
	pflag.IntVar(&sshPort, "ssh-port", defaults.SSHPort, "Port the SSH console will listen on (0 to disable)")
	pflag.StringVar(&mqttBroker, "mqtt-broker", defaults.MQTTBroker, "Address (host:port) of the MQTT broker")
	pflag.BoolVar(&mqttLogs, "mqtt-logs", defaults.MQTTLogs, "Publish logs to MQTT")
	pflag.StringVar(&moduleID, "module-id", defaults.ModuleID, "ID of this worker, used in MQTT topics")
	pflag.Parse()

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())

	mqttLogWriter := logging.NewMQTTWriter(ctx)
	logOutputs := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}, mqttLogWriter}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			Exitf("Failed to open log file '%s': %v\n", logFile, err)
		}
		defer f.Close()
		logOutputs = append(logOutputs, f)
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(logOutputs...)).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	}
	logger = logger.Level(level)

	if bridgeType == environment.BridgeTypeAuto {
		bridgeType = environment.AutoDetectBridgeType(logger)
		logger.Info().Str("bridge", bridgeType).Msg("Detected bridge type")
	}
	var br bridge.API
	switch bridgeType {
	case environment.BridgeTypeRaspberryPi:
		br, err = bridge.NewRaspberryPiBridge()
		if err != nil {
			Exitf("Failed to initialize Raspberry Pi Bridge: %v\n", err)
		}
	case environment.BridgeTypeVirtual:
		br = bridge.NewVirtualBridge()
	default:
		Exitf("Unknown bridge type '%s' (auto|rpi|virtual)\n", bridgeType)
	}

	conf, err := model.LoadConfiguration(configPath)
	if err != nil {
		Exitf("Failed to load configuration: %v\n", err)
	}

	devService, err := devices.NewService(moduleID, mqttBroker, conf.Devices, br, logger)
	if err != nil {
		Exitf("Failed to initialize devices: %v\n", err)
	}
	motorService, err := motors.NewService(conf, devService, logger)
	if err != nil {
		Exitf("Failed to initialize motors: %v\n", err)
	}
	httpServer, err := server.New(server.Config{
		Host:           serverHost,
		HTTPPort:       serverPort,
		SSHPort:        sshPort,
		ProgramVersion: projectVersion,
	}, logger, ui.New(motorService), devService, motorService)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}
	var mqttService mqtt.Service
	if mqttBroker != "" {
		mqttService, err = mqtt.NewService(mqtt.Config{
			BrokerAddress: mqttBroker,
			ModuleID:      moduleID,
		}, motorService, logger)
		if err != nil {
			Exitf("Failed to initialize MQTT: %v\n", err)
		}
		mqttLogWriter.SetDestination("logs", mqttService)
		mqttLogWriter.Enable(mqttLogs)
	}

	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)

	// Devices & motors that fail to configure are logged and left
	// unconfigured, the others remain usable.
	if err := devService.Configure(ctx); err != nil {
		logger.Warn().Err(err).Msg("Not all devices are configured")
	}
	if err := motorService.Configure(ctx); err != nil {
		logger.Warn().Err(err).Msg("Not all motors are configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return devService.Run(gctx) })
	g.Go(func() error { return httpServer.Run(gctx) })
	if mqttService != nil {
		g.Go(func() error { return mqttService.Run(gctx) })
	}
	runErr := g.Wait()

	// Bring all hardware back to a safe state
	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if err := motorService.Close(closeCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to close motors")
	}
	if err := devService.Close(closeCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to close devices")
	}
	if err := br.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close bridge")
	}
	if runErr != nil && runErr != context.Canceled {
		Exitf("Service run failed: %v\n", runErr)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
