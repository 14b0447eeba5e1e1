// Command vardisd is the Variable Dissemination Protocol daemon: it holds
// the RTDB and registers itself as a BP client, riding on a running bpd's
// beacon windows to transmit and receive instruction containers.
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
	"github.com/dcp-vardis/dcp-vardis-go/internal/vardis"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

func useSyslog() bool {
	env := os.Getenv("DCP_LOG_SYSLOG")
	if env != "" {
		return env == "true"
	}
	return false
}

var log *logging.Logger = dcplog.Setup("vardisd", logging.INFO, useSyslog())

func main() {
	nodeFlag := flag.String("node", "", "this station's node id, aa:bb:cc:dd:ee:ff (required)")
	bpSocket := flag.String("bp-socket", "/tmp/dcp-bpd.sock", "bpd's UNIX command socket")
	shmDir := flag.String("shm-dir", "/dev/shm", "directory backing bpd's shared-memory pools")
	socketPath := flag.String("socket", "/tmp/dcp-vardisd.sock", "UNIX command socket path")
	maxPayloadSize := flag.Int("max-payload-size", 1024, "maximum VD payload size handed to BP")
	period := flag.Duration("period", 100*time.Millisecond, "beacon window the tx/rx drivers run on")
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

	cfg := vardis.DefaultConfig()
	cfg.MaxPayloadSize = *maxPayloadSize

	bpClient := bp.DialWithShmDir(*bpSocket, *shmDir)

	engine, err := vardis.NewEngine(own, cfg, *period, bpClient, log)
	if err != nil {
		log.Fatal(err)
	}

	cs, err := vardis.NewCommandServer(engine, *socketPath, log)
	if err != nil {
		log.Fatal(err)
	}
	defer cs.Close()
	defer os.Remove(*socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := cs.Serve(); err != nil {
			log.Error("vardisd: command server stopped:", err)
		}
	}()
	go engine.Run(ctx)

	engine.Activate()
	log.Notice("vardisd launched, node", own.String(), "listening on", *socketPath)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig, ok := <-stopSignal
	engine.Shutdown()
	if ok {
		log.Notice("vardisd stopping with signal", sig)
	}
}
