// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/pkg/hbridge"
	"github.com/binkynet/MotorWorker/pkg/service/motors"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	HTTPPort int
	// Port to listen on for SSH requests (0 disables SSH)
	SSHPort int
	// Path of the SSH host key, created when it does not exist
	SSHHostKeyPath string
	// Version of the program, reported by /health
	ProgramVersion string
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log       zerolog.Logger
	ui        UI
	devices   DeviceService
	motors    motors.Service
	startedAt time.Time
}

// DeviceService reports the state of the devices.
type DeviceService interface {
	// Get a list of configured device IDs
	GetConfiguredDeviceIDs() []string
	// Get a list of unconfigured device IDs
	GetUnconfiguredDeviceIDs() []string
}

type UI interface {
	// Handler creates the model of a single SSH session.
	Handler(s ssh.Session) (tea.Model, []tea.ProgramOption)
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, ui UI, devService DeviceService, motorService motors.Service) (*Server, error) {
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/id_ed25519"
	}
	return &Server{
		Config:    cfg,
		log:       log.With().Str("component", "server").Logger(),
		ui:        ui,
		devices:   devService,
		motors:    motorService,
		startedAt: time.Now(),
	}, nil
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	// Prepare HTTP listener
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error().Err(err).Msgf("failed to listen on address %s", httpAddr)
		return err
	}

	// Prepare HTTP server
	httpSrv := http.Server{
		Handler: s.newRouter(),
	}

	// Prepare SSH server
	var sshServer *ssh.Server
	sshAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.SSHPort))
	if s.SSHPort != 0 && s.ui != nil {
		sshServer, err = wish.NewServer(
			// The address the server will listen to.
			wish.WithAddress(sshAddr),

			// The SSH server need its own keys, this will create a keypair in the
			// given path if it doesn't exist yet.
			wish.WithHostKeyPath(s.SSHHostKeyPath),

			// Middlewares do something on a ssh.Session, and then call the next
			// middleware in the stack.
			wish.WithMiddleware(
				bubbletea.Middleware(s.ui.Handler),
				// The last item in the chain is the first to be called.
				activeterm.Middleware(),
				logging.Middleware(),
			),
		)
		if err != nil {
			httpLis.Close()
			return errors.Wrap(err, "could not start SSH server")
		}
	}

	// Serve apis
	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to serve HTTP server")
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()
	// Serve UI
	if sshServer != nil {
		log.Debug().Str("address", sshAddr).Msg("Serving SSH")
		go func() {
			if err := sshServer.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
				log.Fatal().Err(err).Msg("failed to serve SSH server")
			}
			log.Debug().Str("address", sshAddr).Msg("Done Serving SSH")
		}()
	}

	// Wait until context closed
	<-ctx.Done()

	log.Info().Msg("Closing servers")
	httpSrv.Shutdown(context.Background())
	if sshServer != nil {
		sshServer.Shutdown(context.Background())
	}

	return nil
}

// newRouter builds the HTTP routes.
func (s *Server) newRouter() *echo.Echo {
	httpRouter := echo.New()
	httpRouter.HideBanner = true
	httpRouter.HidePort = true
	httpRouter.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	httpRouter.GET("/health", s.healthHandler)
	httpRouter.GET("/motors", s.listMotors)
	httpRouter.GET("/motors/:id", s.getMotor)
	httpRouter.POST("/motors/:id/enable", s.enableMotor)
	httpRouter.POST("/motors/:id/disable", s.disableMotor)
	httpRouter.PUT("/motors/:id/speed", s.setMotorSpeed)
	httpRouter.PUT("/motors/:id/direction", s.setMotorDirection)
	return httpRouter
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	// OK when all devices are configured, DEGRADED otherwise
	Status              string   `json:"status"`
	Version             string   `json:"version,omitempty"`
	StartedAt           string   `json:"startedAt"`
	Uptime              string   `json:"uptime"`
	ConfiguredDevices   []string `json:"configuredDevices"`
	UnconfiguredDevices []string `json:"unconfiguredDevices,omitempty"`
}

func (s *Server) healthHandler(c echo.Context) error {
	resp := HealthResponse{
		Status:              "OK",
		Version:             s.ProgramVersion,
		StartedAt:           s.startedAt.Format(time.RFC3339),
		Uptime:              strings.TrimSpace(humanize.RelTime(s.startedAt, time.Now(), "", "")),
		ConfiguredDevices:   s.devices.GetConfiguredDeviceIDs(),
		UnconfiguredDevices: s.devices.GetUnconfiguredDeviceIDs(),
	}
	if len(resp.UnconfiguredDevices) > 0 {
		resp.Status = "DEGRADED"
	}
	return c.JSON(http.StatusOK, resp)
}

// SpeedRequest is the body of PUT /motors/:id/speed.
type SpeedRequest struct {
	Speed *int `json:"speed"`
}

// DirectionRequest is the body of PUT /motors/:id/direction.
type DirectionRequest struct {
	Forward *bool `json:"forward"`
}

func (s *Server) listMotors(c echo.Context) error {
	ids := s.motors.MotorIDs()
	result := make([]motors.Status, 0, len(ids))
	for _, id := range ids {
		st, err := s.motors.Status(id)
		if err != nil {
			return s.toHTTPError(err)
		}
		result = append(result, st)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getMotor(c echo.Context) error {
	st, err := s.motors.Status(c.Param("id"))
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) enableMotor(c echo.Context) error {
	return s.command(c, func(ctx context.Context, id string) error {
		return s.motors.Enable(ctx, id)
	})
}

func (s *Server) disableMotor(c echo.Context) error {
	return s.command(c, func(ctx context.Context, id string) error {
		return s.motors.Disable(ctx, id)
	})
}

func (s *Server) setMotorSpeed(c echo.Context) error {
	var req SpeedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Speed == nil || *req.Speed < 0 || *req.Speed > 255 {
		return echo.NewHTTPError(http.StatusBadRequest, "speed must be in range 0..255")
	}
	speed := uint8(*req.Speed)
	return s.command(c, func(ctx context.Context, id string) error {
		return s.motors.SetSpeed(ctx, id, speed)
	})
}

func (s *Server) setMotorDirection(c echo.Context) error {
	var req DirectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Forward == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "forward is required")
	}
	forward := *req.Forward
	return s.command(c, func(ctx context.Context, id string) error {
		return s.motors.SetDirection(ctx, id, forward)
	})
}

// command runs the given motor command and responds with the
// resulting status of the motor.
func (s *Server) command(c echo.Context, op func(ctx context.Context, id string) error) error {
	id := c.Param("id")
	if err := op(c.Request().Context(), id); err != nil {
		return s.toHTTPError(err)
	}
	st, err := s.motors.Status(id)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// toHTTPError converts motor service errors into HTTP errors.
func (s *Server) toHTTPError(err error) error {
	switch {
	case motors.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case motors.IsNotConfigured(err):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case hbridge.IsIOFailure(err):
		s.log.Warn().Err(err).Msg("Motor command failed")
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		s.log.Error().Err(err).Msg("Unexpected error")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
