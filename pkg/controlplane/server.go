package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/crtx-sg/iotix/pkg/catalog"
	"github.com/crtx-sg/iotix/pkg/logging"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/orchestrator"
)

// EngineController is the surface the control plane drives. Satisfied by
// *engine.Manager (which embeds *catalog.Manager), kept narrow and local
// so pkg/controlplane never imports pkg/engine and risks a cycle, the
// same role the teacher's api.EngineController plays in front of
// engine.Server.
type EngineController interface {
	RegisterModel(spec *model.DeviceModel) (*model.DeviceModel, error)
	ListModels() []*model.DeviceModel
	GetModel(id string) (*model.DeviceModel, error)
	DeleteModel(modelID string) error

	CreateDevice(modelID, deviceID, groupID string) (*model.Device, error)
	GetDevice(deviceID string) (*model.Device, error)
	ListDevices(filter catalog.DeviceFilter) []*model.Device
	DeviceMetrics(deviceID string) (catalog.DeviceMetrics, error)
	StartDevice(deviceID string) error
	StopDevice(deviceID string) error
	DeleteDevice(deviceID string) error
	BindDevice(deviceID string, binding model.BindingConfig) error
	UnbindDevice(deviceID string) error
	GetBinding(deviceID string) (*model.BindingConfig, error)
	IngestWebhook(deviceID string, payload []byte) error

	CreateGroup(modelID, groupID, idPattern string, count int) (*model.Group, error)
	GetGroup(groupID string) (*model.Group, error)
	StartGroup(groupID string, cfg orchestrator.LaunchConfig) (catalog.GroupLaunchResult, error)
	StopGroup(groupID string) error
	DeleteGroup(groupID string) error
	DropoutGroup(groupID string, cfg orchestrator.DropoutConfig) (catalog.GroupDropoutResult, error)

	GetStats() catalog.EngineStats
}

// Server is the HTTP façade spec §6 names.
type Server struct {
	engine     EngineController
	httpServer *http.Server
	addr       string
	log        *slog.Logger
}

// NewServer builds a Server listening on addr (host:port, or ":port" for
// all interfaces). Unlike the teacher's internal engine-control API (which
// binds 127.0.0.1 only because it sits behind an admin API), this is the
// device engine's one public REST surface (spec §6), so it binds
// whatever addr the caller supplies.
func NewServer(engine EngineController, addr string) *Server {
	s := &Server{
		engine: engine,
		addr:   addr,
		log:    logging.Nop(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// SetLogger sets the operational logger.
func (s *Server) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log = log
	}
}

// Start begins serving in the background. Uses a synchronous Listen call
// so a port-in-use error surfaces immediately to the caller.
func (s *Server) Start() error {
	s.log.Info("starting control plane", "addr", s.addr)

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("controlplane: listen on %s: %w", s.addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("control plane server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	mux.HandleFunc("GET /api/v1/models", s.handleListModels)
	mux.HandleFunc("POST /api/v1/models", s.handleCreateModel)
	mux.HandleFunc("GET /api/v1/models/{id}", s.handleGetModel)
	mux.HandleFunc("DELETE /api/v1/models/{id}", s.handleDeleteModel)

	mux.HandleFunc("GET /api/v1/devices", s.handleListDevices)
	mux.HandleFunc("POST /api/v1/devices", s.handleCreateDevice)
	mux.HandleFunc("GET /api/v1/devices/{id}", s.handleGetDevice)
	mux.HandleFunc("DELETE /api/v1/devices/{id}", s.handleDeleteDevice)
	mux.HandleFunc("POST /api/v1/devices/{id}/start", s.handleStartDevice)
	mux.HandleFunc("POST /api/v1/devices/{id}/stop", s.handleStopDevice)
	mux.HandleFunc("GET /api/v1/devices/{id}/metrics", s.handleDeviceMetrics)
	mux.HandleFunc("POST /api/v1/devices/{id}/bind", s.handleBindDevice)
	mux.HandleFunc("POST /api/v1/devices/{id}/unbind", s.handleUnbindDevice)
	mux.HandleFunc("GET /api/v1/devices/{id}/binding", s.handleGetBinding)

	mux.HandleFunc("POST /api/v1/groups", s.handleCreateGroup)
	mux.HandleFunc("GET /api/v1/groups/{id}", s.handleGetGroup)
	mux.HandleFunc("POST /api/v1/groups/{id}/start", s.handleStartGroup)
	mux.HandleFunc("POST /api/v1/groups/{id}/stop", s.handleStopGroup)
	mux.HandleFunc("DELETE /api/v1/groups/{id}", s.handleDeleteGroup)
	mux.HandleFunc("POST /api/v1/groups/{id}/dropout", s.handleDropoutGroup)

	mux.HandleFunc("POST /api/v1/webhooks/{id}", s.handleWebhook)
}
