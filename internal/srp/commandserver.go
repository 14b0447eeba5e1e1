package srp

import (
	"encoding/json"
	"net"
	"net/http"
	"os"

	"github.com/op/go-logging"

	"github.com/dcp-vardis/dcp-vardis-go/internal/dcpver"
)

// CommandServer exposes Engine over the same HTTP-over-unix-socket framing
// bp.CommandServer and vardis.CommandServer use.
type CommandServer struct {
	engine   *Engine
	log      *logging.Logger
	listener net.Listener
}

func NewCommandServer(engine *Engine, socketPath string, log *logging.Logger) (*CommandServer, error) {
	os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &CommandServer{engine: engine, log: log, listener: l}, nil
}

func (cs *CommandServer) Serve() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", cs.handleVersion)
	mux.HandleFunc("/activate", cs.handleActivate)
	mux.HandleFunc("/deactivate", cs.handleDeactivate)
	mux.HandleFunc("/neighbors", cs.handleNeighbors)
	mux.HandleFunc("/shutdown", cs.handleShutdown)
	return http.Serve(cs.listener, mux)
}

func (cs *CommandServer) Close() error { return cs.listener.Close() }

func (cs *CommandServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(dcpver.CurrentVersion.String()))
}

func (cs *CommandServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	cs.engine.Activate()
	w.WriteHeader(http.StatusOK)
}

func (cs *CommandServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	cs.engine.Deactivate()
	w.WriteHeader(http.StatusOK)
}

func (cs *CommandServer) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(cs.engine.Table().Snapshot())
}

func (cs *CommandServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	go cs.engine.Shutdown()
}
