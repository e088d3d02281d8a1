// Command arenad runs the arena vision coordinator: camera ingest, marker
// detection, arena mapping, the MJPEG frontend, the robot websocket server
// and the optional ML relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"arenad/internal/arena"
	"arenad/internal/camera"
	"arenad/internal/config"
	"arenad/internal/logging"
	"arenad/internal/ml"
	"arenad/internal/overlay"
	"arenad/internal/pipeline"
	"arenad/internal/portguard"
	"arenad/internal/robot"
	"arenad/internal/stream"
	"arenad/internal/supervisor"
	"arenad/internal/ui"
	"arenad/internal/vision"
)

func main() {
	var (
		configF = flag.String("config", "config.json", "Path to the JSON configuration file")
	)
	flag.Parse()

	cfg, err := config.Load(*configF)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.ParseLevel(cfg.System.LogLevel))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	cameraAddr := addr(cfg.Camera.BindIP, cfg.Camera.BindPort)
	frontendAddr := addr(cfg.Frontend.Host, cfg.Frontend.Port)
	robotAddr := addr(cfg.Communications.WSHost, cfg.Communications.WSPort)
	mlAddr := addr(cfg.MachineLearning.WSHost, cfg.MachineLearning.WSPort)

	guards := []portguard.Endpoint{
		portguard.UDP("camera", cameraAddr),
		portguard.TCP("frontend", frontendAddr),
		portguard.TCP("robot", robotAddr),
	}
	if cfg.MachineLearning.Enabled {
		guards = append(guards, portguard.TCP("ml", mlAddr))
	}
	if err := portguard.Check(logger, guards...); err != nil {
		return err
	}

	var source camera.Source
	switch cfg.Camera.Mode {
	case config.ModeRTPH264:
		source = camera.NewRTPSource(cfg.Camera.BindIP, cfg.Camera.BindPort, cfg.Camera.RTPPayload, logger)
	default:
		source = camera.NewUDPSource(cfg.Camera.BindIP, cfg.Camera.BindPort, logger)
	}

	dict := vision.DefaultDictionary()
	detector := vision.NewDetector(dict, vision.DefaultParams())
	mapper := arena.NewMapper(cfg.Arena, logger)
	bus := stream.NewBus()
	registry := robot.NewRegistry()

	bcast := ui.NewBroadcaster(logger)
	logging.SetWebSink(bcast.SystemLog)
	defer logging.SetWebSink(nil)

	var relay *ml.Relay
	var predictor robot.Predictor
	if cfg.MachineLearning.Enabled {
		relay = ml.NewRelay(mlAddr, logger)
		predictor = relay
		logger.Info("ml relay enabled", zap.String("models_dir", cfg.MachineLearning.ModelsDir))
	}

	loop := pipeline.NewLoop(
		source, detector, mapper, &overlay.Renderer{}, bus,
		registry.IsRobotMarker, cfg.Arena.JPEGQuality, logger,
	)
	robotSrv := robot.NewServer(robotAddr, registry, mapper, bcast, predictor, logger)
	frontend := ui.NewServer(frontendAddr, bus, bcast, dict, logger)

	rosterDone := make(chan struct{})

	sup := supervisor.New(logger)
	components := []supervisor.Component{
		{Name: "camera", Start: source.Start, Stop: stopFunc(source.Stop)},
		{Name: "pipeline", Start: loop.Start, Stop: stopFunc(loop.Stop)},
		{Name: "frontend", Start: frontend.Start, Stop: frontend.Stop},
		{Name: "robot", Start: robotSrv.Start, Stop: robotSrv.Stop},
		{Name: "roster", Start: func() error {
			go bcast.RunRoster(registry, rosterDone)
			return nil
		}, Stop: stopFunc(func() { close(rosterDone) })},
	}
	if relay != nil {
		components = append(components, supervisor.Component{
			Name: "ml", Start: relay.Start, Stop: relay.Stop,
		})
	}

	if err := sup.Start(components...); err != nil {
		return err
	}
	logger.Info("arena vision system running",
		zap.String("camera", cfg.Camera.Mode+"@"+cameraAddr),
		zap.String("frontend", frontendAddr),
		zap.String("robot", robotAddr))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("shutting down", zap.String("signal", (<-sig).String()))

	sup.Stop()
	return nil
}

func addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// stopFunc adapts a context-free shutdown to the supervisor contract.
func stopFunc(stop func()) func(ctx context.Context) error {
	return func(context.Context) error {
		stop()
		return nil
	}
}
