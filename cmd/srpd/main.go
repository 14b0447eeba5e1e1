// Command srpd is the Safety Report daemon: BP's degenerate client
// protocol, maintaining a one-hop neighbour table from periodic liveness
// beacons.
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
	"github.com/dcp-vardis/dcp-vardis-go/internal/srp"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

func useSyslog() bool {
	env := os.Getenv("DCP_LOG_SYSLOG")
	if env != "" {
		return env == "true"
	}
	return false
}

var log *logging.Logger = dcplog.Setup("srpd", logging.INFO, useSyslog())

func main() {
	nodeFlag := flag.String("node", "", "this station's node id, aa:bb:cc:dd:ee:ff (required)")
	bpSocket := flag.String("bp-socket", "/tmp/dcp-bpd.sock", "bpd's UNIX command socket")
	shmDir := flag.String("shm-dir", "/dev/shm", "directory backing bpd's shared-memory pools")
	socketPath := flag.String("socket", "/tmp/dcp-srpd.sock", "UNIX command socket path")
	capacity := flag.Int("capacity", 64, "neighbour table capacity")
	staleAfter := flag.Duration("stale-after", 5*time.Second, "how long a neighbour survives without a refresh")
	period := flag.Duration("period", 100*time.Millisecond, "beacon window the safety-beacon driver runs on")
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

	cfg := srp.Config{TableCapacity: *capacity, StaleAfter: *staleAfter}
	bpClient := bp.DialWithShmDir(*bpSocket, *shmDir)

	engine, err := srp.NewEngine(own, cfg, *period, bpClient, log)
	if err != nil {
		log.Fatal(err)
	}

	cs, err := srp.NewCommandServer(engine, *socketPath, log)
	if err != nil {
		log.Fatal(err)
	}
	defer cs.Close()
	defer os.Remove(*socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := cs.Serve(); err != nil {
			log.Error("srpd: command server stopped:", err)
		}
	}()
	go engine.Run(ctx)

	engine.Activate()
	log.Notice("srpd launched, node", own.String(), "listening on", *socketPath)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig, ok := <-stopSignal
	engine.Shutdown()
	if ok {
		log.Notice("srpd stopping with signal", sig)
	}
}
