// Command hcsr04 measures distance or liquid depth with an ultrasonic sensor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/hcsr04/pkg/config"
	"github.com/itohio/hcsr04/pkg/gpio"
	"github.com/itohio/hcsr04/pkg/hcsr04"
	"github.com/itohio/hcsr04/pkg/monitor"
)

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		driverFlag   = flag.String("driver", "", "GPIO driver override (rpio, periph, gpiod, serial, mock)")
		portFlag     = flag.String("p", "", "Serial bridge port override (e.g., COM3 or /dev/ttyACM0)")
		trigFlag     = flag.Int("trig", -1, "Trigger pin override")
		echoFlag     = flag.Int("echo", -1, "Echo pin override")
		unitFlag     = flag.String("unit", "", "Unit override (metric or imperial)")
		tempFlag     = flag.Float64("temp", math.NaN(), "Air temperature override (C for metric, F for imperial)")
		samplesFlag  = flag.Int("samples", 0, "Pulses per measurement override")
		waitFlag     = flag.Duration("wait", -1, "Settle time before each pulse override")
		maxPollsFlag = flag.Int("max-polls", -1, "Echo wait bound in pin reads (0 = unbounded)")
		deadlineFlag = flag.Duration("deadline", -1, "Echo wait bound in time (0 = unbounded)")
		depthFlag    = flag.Float64("depth", 0, "Hole depth; prints liquid depth instead of distance")
		watchFlag    = flag.Bool("watch", false, "Measure continuously")
		rawFlag      = flag.Bool("raw", false, "Print the individual pulse distances (cm)")
		listFlag     = flag.Bool("list-ports", false, "List serial ports and exit")
		saveFlag     = flag.Bool("save", false, "Save the effective configuration and exit")
	)
	flag.Parse()

	if *listFlag {
		listPorts()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line overrides
	if *driverFlag != "" {
		cfg.Backend.Driver = *driverFlag
	}
	if *portFlag != "" {
		cfg.Backend.Port = *portFlag
	}
	if *trigFlag >= 0 {
		cfg.Sensor.TriggerPin = *trigFlag
	}
	if *echoFlag >= 0 {
		cfg.Sensor.EchoPin = *echoFlag
	}
	if *unitFlag != "" {
		cfg.Sensor.Unit = *unitFlag
	}
	if !math.IsNaN(*tempFlag) {
		cfg.Sensor.Temperature = *tempFlag
	}
	if *samplesFlag > 0 {
		cfg.Sampling.SampleSize = *samplesFlag
	}
	if *waitFlag >= 0 {
		cfg.Sampling.SampleWait = *waitFlag
	}
	if *maxPollsFlag >= 0 {
		cfg.Sampling.MaxPolls = *maxPollsFlag
	}
	if *deadlineFlag >= 0 {
		cfg.Sampling.EchoDeadline = *deadlineFlag
	}
	if *depthFlag != 0 {
		cfg.Monitor.HoleDepth = *depthFlag
	}

	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
		fmt.Printf("Configuration saved to %s\n", *configFlag)
		return
	}

	io, err := gpio.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s driver: %v", cfg.Backend.Driver, err)
	}
	defer gpio.Close(io)

	var opts []hcsr04.Option
	if mock, ok := io.(*gpio.Mock); ok {
		opts = append(opts, hcsr04.WithClock(mock))
	}
	sensor, err := hcsr04.FromAppConfig(io, cfg, opts...)
	if err != nil {
		log.Fatalf("Invalid sensor configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	unit := unitSymbol(sensor.Config().Unit)

	switch {
	case *watchFlag:
		watch(ctx, sensor, cfg, unit)
	case *rawFlag:
		samples, err := sensor.MeasureSamples(ctx, cfg.Sampling.SampleSize, cfg.Sampling.SampleWait)
		if err != nil {
			fail(err)
		}
		for i, s := range samples {
			fmt.Printf("%d: %.3f cm\n", i, s)
		}
		fmt.Printf("median: %.3f cm\n", hcsr04.Median(samples))
	case cfg.Monitor.HoleDepth != 0:
		depth, err := sensor.MeasureDepth(ctx, cfg.Monitor.HoleDepth)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Depth: %g %s\n", depth, unit)
	default:
		distance, err := sensor.MeasureDistance(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Distance: %g %s\n", distance, unit)
	}
}

// watch prints readings until interrupted.
func watch(ctx context.Context, sensor *hcsr04.Sensor, cfg *config.Config, unit string) {
	m := monitor.New(sensor, cfg)
	label := "Distance"
	if cfg.Monitor.HoleDepth != 0 {
		label = "Depth"
	}

	m.OnUpdate(func(readings []monitor.Reading) {
		r := readings[len(readings)-1]
		if r.Err != nil {
			return
		}
		st := monitor.Summarize(readings)
		fmt.Printf("%s %s: %g %s (min %g, median %g, max %g over %d)\n",
			r.Timestamp.Format(time.TimeOnly), label, r.Value, unit,
			st.Min, st.Median, st.Max, st.Count)
	})

	m.Run(ctx)
}

func fail(err error) {
	var timeout *hcsr04.EchoTimeoutError
	switch {
	case hcsr04.IsConfigurationError(err):
		log.Fatalf("Configuration error: %v", err)
	case errors.As(err, &timeout):
		log.Fatalf("No echo (is anything in range?): %v", err)
	default:
		log.Fatalf("Measurement failed: %v", err)
	}
}

func unitSymbol(u hcsr04.Unit) string {
	if u == hcsr04.Imperial {
		return "in"
	}
	return "cm"
}

func listPorts() {
	ports, err := gpio.Ports()
	if err != nil {
		log.Fatalf("Failed to list ports: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
}
