// legd is the prosthesis control daemon: it runs the 1 kHz impedance loop
// against the configured sensors and drive, and serves the operator HTTP and
// websocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensourceleg/go-osl/internal/config"
	"github.com/opensourceleg/go-osl/internal/log"
	"github.com/opensourceleg/go-osl/pkg/actuator"
	"github.com/opensourceleg/go-osl/pkg/drivers"
	"github.com/opensourceleg/go-osl/pkg/drivers/loadcell"
	"github.com/opensourceleg/go-osl/pkg/drivers/mpu9250"
	"github.com/opensourceleg/go-osl/pkg/estimate"
	"github.com/opensourceleg/go-osl/pkg/frame"
	"github.com/opensourceleg/go-osl/pkg/gait"
	"github.com/opensourceleg/go-osl/pkg/impedance"
	"github.com/opensourceleg/go-osl/pkg/loop"
	"github.com/opensourceleg/go-osl/pkg/safety"
	"github.com/opensourceleg/go-osl/pkg/telemetry"
	"github.com/opensourceleg/go-osl/pkg/telemetry/mqttpub"
	"github.com/opensourceleg/go-osl/pkg/web"
)

// telemetryCapacity bounds the in-memory sample ring: 8 s at 1 kHz.
const telemetryCapacity = 8192

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to the JSON configuration file")
	hold := flag.Bool("hold", false, "Do not start the loop; wait for POST /api/start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "legd: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	sink, sinkCloser, err := buildSink(cfg)
	if err != nil {
		log.Error("drive setup failed", "error", err)
		os.Exit(1)
	}
	if sinkCloser != nil {
		defer sinkCloser.Close()
	}

	source, sourceClose, err := buildSource(cfg, sink)
	if err != nil {
		log.Error("sensor setup failed", "error", err)
		os.Exit(1)
	}
	if sourceClose != nil {
		defer sourceClose()
	}

	rec := telemetry.NewRecorder(telemetryCapacity)

	var pub *mqttpub.Publisher
	if cfg.MQTT.Enabled {
		pub, err = mqttpub.New(mqttpub.Config{
			Broker:       cfg.MQTT.Broker,
			ClientID:     cfg.MQTT.ClientID,
			TopicSamples: cfg.MQTT.TopicSamples,
			TopicFaults:  cfg.MQTT.TopicFaults,
			Decimate:     cfg.MQTT.Decimate,
		})
		if err != nil {
			log.Error("mqtt setup failed", "error", err)
			os.Exit(1)
		}
		defer pub.Close()

		samples, cancelSub := rec.Subscribe(1024)
		defer cancelSub()
		go pub.Run(ctx, samples)
	}

	onFault := func(fr safety.FaultRecord) {
		log.Error("fault raised", "id", fr.ID, "cause", fr.Cause, "detail", fr.Detail)
		if pub != nil {
			pub.PublishFault(fr)
		}
	}

	period := cfg.Loop.Period()
	sched := loop.New(
		loop.Config{
			Period:        period,
			StaleLimit:    cfg.Loop.StaleLimit,
			MissLimit:     cfg.Loop.MissLimit,
			DispatchLimit: cfg.Loop.DispatchLimit,
		},
		frame.NewAcquirer(source, cfg.Loop.SensorTimeout()),
		estimate.NewConditioner(cfg.Filter, period.Seconds()),
		gait.NewEstimator(cfg.Gait),
		impedance.NewController(cfg.Impedance, cfg.Loop.BlendTicks),
		safety.NewGuard(cfg.Limits, cfg.SafeHold),
		sink,
		rec,
		onFault,
	)

	server := web.NewServer(cfg.Web.Port, sched, rec)
	server.StartAsync(ctx)
	defer server.Shutdown()

	log.Info("legd up",
		"period", period,
		"drive", cfg.Drive.Kind,
		"sensors", cfg.Sensors.Kind,
		"web_port", cfg.Web.Port,
	)

	if *hold {
		log.Info("loop held; start via POST /api/start")
		<-ctx.Done()
		sched.Stop()
		return
	}

	sched.Run(ctx)
}

// buildSink selects the actuator backend from the drive configuration.
func buildSink(cfg *config.Config) (actuator.Sink, actuator.Closer, error) {
	switch cfg.Drive.Kind {
	case "mock":
		return actuator.NewMockSink(), nil, nil
	case "http":
		return actuator.NewHTTPSink(cfg.Drive.Addr, cfg.Loop.Period()), nil, nil
	case "feetech":
		sink, err := actuator.NewFeetechSink(cfg.Drive.Feetech)
		if err != nil {
			return nil, nil, err
		}
		return sink, sink, nil
	default:
		return nil, nil, fmt.Errorf("unknown drive kind %q", cfg.Drive.Kind)
	}
}

// buildSource selects the frame source. Hardware sensors read the joint
// angle back through the feetech drive's encoder, so they require it.
func buildSource(cfg *config.Config, sink actuator.Sink) (frame.Source, func(), error) {
	if cfg.Sensors.Kind == "mock" {
		return drivers.NewSimSource(), nil, nil
	}

	reader, ok := sink.(drivers.AngleReader)
	if !ok {
		return nil, nil, fmt.Errorf("hardware sensors need a feetech drive for the joint encoder")
	}
	enc := drivers.NewServoEncoder(reader, cfg.Loop.SensorTimeout())

	imu, err := mpu9250.Open(cfg.Sensors.IMUSPIPort)
	if err != nil {
		return nil, nil, fmt.Errorf("imu: %w", err)
	}

	gain := cfg.Sensors.LoadcellGain
	if gain == 0 {
		gain = 1
	}
	lc, err := loadcell.Open(loadcell.Config{
		Port:            cfg.Sensors.LoadcellPort,
		BaudRate:        cfg.Sensors.LoadcellBaud,
		NewtonsPerCount: gain,
	})
	if err != nil {
		imu.Close()
		return nil, nil, fmt.Errorf("loadcell: %w", err)
	}
	if err := lc.Zero(16); err != nil {
		log.Warn("loadcell tare failed, continuing untared", "error", err)
	}

	closeAll := func() {
		lc.Close()
		imu.Close()
	}
	return drivers.NewSource(imu, lc, enc), closeAll, nil
}
