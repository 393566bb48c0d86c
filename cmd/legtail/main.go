// legtail follows a running legd's telemetry stream and prints one line per
// sample. Useful over SSH when the dashboard is not around.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opensourceleg/go-osl/pkg/telemetry"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "legd host:port")
	raw := flag.Bool("raw", false, "Print raw JSON envelopes instead of formatted lines")
	every := flag.Int("every", 100, "Print every Nth sample (1 kHz is a lot of lines)")
	flag.Parse()

	if *every < 1 {
		*every = 1
	}

	url := fmt.Sprintf("ws://%s/ws/telemetry", *addr)
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "legtail: connect %s: %v\n", url, err)
		os.Exit(1)
	}
	defer conn.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		conn.Close()
	}()

	fmt.Printf("connected to %s\n", url)

	var n int
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "legtail: %v\n", err)
			return
		}

		if *raw {
			fmt.Println(string(data))
			continue
		}

		msg, err := telemetry.ParseMessage(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "legtail: bad envelope: %v\n", err)
			continue
		}

		switch msg.Type {
		case telemetry.TypeSample:
			n++
			if n%*every != 0 {
				continue
			}
			var s telemetry.Sample
			if err := msg.ParseData(&s); err != nil {
				fmt.Fprintf(os.Stderr, "legtail: bad sample: %v\n", err)
				continue
			}
			printSample(s)
		case telemetry.TypeFault:
			fmt.Printf("FAULT %s\n", string(msg.Data))
		default:
			fmt.Printf("%s %s\n", msg.Type, string(msg.Data))
		}
	}
}

func printSample(s telemetry.Sample) {
	flags := ""
	if s.Overridden {
		flags += " OVERRIDE"
	}
	if s.StaleFrame {
		flags += " STALE"
	}
	if s.DeadlineMissed {
		flags += " MISS"
	}
	fmt.Printf("tick=%-10d phase=%-13s angle=%+.3f vel=%+7.2f load=%6.1f torque=%+7.2f cycle=%dus%s\n",
		s.Tick, s.Phase,
		s.Estimate.Angle, s.Estimate.Velocity, s.Estimate.Load,
		s.Command.TorqueNm, s.CycleMicros, flags)
}
