// Command bpd is the Beaconing Protocol daemon: it owns one broadcast
// interface, runs BP's scheduler and sniffer, and exposes registration and
// control over a UNIX command socket for VD, SR and any other client
// protocol to attach to.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/op/go-logging"

	"github.com/dcp-vardis/dcp-vardis-go/internal/bp"
	"github.com/dcp-vardis/dcp-vardis-go/internal/dcplog"
	"github.com/dcp-vardis/dcp-vardis-go/internal/transport"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

func useSyslog() bool {
	env := os.Getenv("DCP_LOG_SYSLOG")
	if env != "" {
		return env == "true"
	}
	return false
}

var log *logging.Logger = dcplog.Setup("bpd", logging.INFO, useSyslog())

func main() {
	nodeFlag := flag.String("node", "", "this station's node id, aa:bb:cc:dd:ee:ff (required)")
	socketPath := flag.String("socket", "/tmp/dcp-bpd.sock", "UNIX command socket path")
	shmDir := flag.String("shm-dir", "/dev/shm", "directory backing BP's shared-memory pools")
	udpPort := flag.Int("udp-port", 9191, "UDP port the UDPBroadcast transport sends/listens on")
	maxBeaconSize := flag.Int("max-beacon-size", 1400, "maximum serialized beacon size in bytes")
	period := flag.Duration("period", 100*time.Millisecond, "average beacon period")
	jitter := flag.Float64("jitter", 0.1, "jitter fraction applied to the beacon period, in [0,1)")
	flag.Parse()

	defer func() {
		if x := recover(); x != nil {
			log.Error(fmt.Sprintf("run time panic: %v", x))
			log.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	own, err := wire.ParseNodeId(*nodeFlag)
	if err != nil {
		log.Fatal(err)
	}

	cfg := bp.DefaultConfig(own)
	cfg.MaxBeaconSize = *maxBeaconSize
	cfg.AvgBeaconPeriod = *period
	cfg.JitterFraction = *jitter
	cfg.ShmDir = *shmDir

	bc, err := transport.NewUDPBroadcast(own, cfg.EtherType, *udpPort)
	if err != nil {
		log.Fatal(err)
	}
	defer bc.Close()

	engine, err := bp.NewEngine(cfg, bc, log)
	if err != nil {
		log.Fatal(err)
	}

	cs, err := bp.NewCommandServer(engine, *socketPath, log)
	if err != nil {
		log.Fatal(err)
	}
	defer cs.Close()
	defer os.Remove(*socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := cs.Serve(); err != nil {
			log.Error("bpd: command server stopped:", err)
		}
	}()
	go engine.Run(ctx)

	engine.Activate()
	log.Notice("bpd launched, node", own.String(), "listening on", *socketPath)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig, ok := <-stopSignal
	engine.Shutdown()
	if ok {
		log.Notice("bpd stopping with signal", sig)
	}
}
