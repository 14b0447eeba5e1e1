package vardis

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/op/go-logging"

	"github.com/dcp-vardis/dcp-vardis-go/internal/dcpver"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// CommandServer exposes Engine's CRUD and introspection primitives over a
// UNIX command socket, mirroring BP's CommandServer and, further back, the
// teacher's HTTP-over-unix-socket control server.
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

func (cs *CommandServer) Addr() string { return cs.listener.Addr().String() }

func (cs *CommandServer) Serve() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", cs.handleVersion)
	mux.HandleFunc("/activate", cs.handleActivate)
	mux.HandleFunc("/deactivate", cs.handleDeactivate)
	mux.HandleFunc("/create", cs.handleCreate)
	mux.HandleFunc("/update", cs.handleUpdate)
	mux.HandleFunc("/delete", cs.handleDelete)
	mux.HandleFunc("/read", cs.handleRead)
	mux.HandleFunc("/describe-db", cs.handleDescribeDatabase)
	mux.HandleFunc("/describe-var", cs.handleDescribeVariable)
	mux.HandleFunc("/shutdown", cs.handleShutdown)
	return http.Serve(cs.listener, mux)
}

func (cs *CommandServer) Close() error { return cs.listener.Close() }

func (cs *CommandServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(dcpver.CurrentVersion.String()))
}

func (cs *CommandServer) checkVersion(w http.ResponseWriter, v string) bool {
	peer, err := dcpver.Parse(v)
	if err != nil || !dcpver.Compatible(peer) {
		w.WriteHeader(http.StatusUpgradeRequired)
		return false
	}
	return true
}

func (cs *CommandServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	cs.engine.Activate()
	w.WriteHeader(http.StatusOK)
}

func (cs *CommandServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	cs.engine.Deactivate()
	w.WriteHeader(http.StatusOK)
}

type StatusResponse struct {
	Status Status
}

type CreateRequest struct {
	ClientVersion string
	VarId         wire.VarId
	Description   wire.VarDescription
	RepCnt        wire.VarRepCnt
	Value         wire.VarValue
}

func (cs *CommandServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !cs.checkVersion(w, req.ClientVersion) {
		return
	}
	status := cs.engine.store.Create(cs.engine.IsActive(), req.VarId, req.Description, req.RepCnt, req.Value)
	json.NewEncoder(w).Encode(StatusResponse{Status: status})
}

type UpdateRequest struct {
	ClientVersion string
	VarId         wire.VarId
	Value         wire.VarValue
}

func (cs *CommandServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !cs.checkVersion(w, req.ClientVersion) {
		return
	}
	status := cs.engine.store.Update(cs.engine.IsActive(), req.VarId, req.Value)
	json.NewEncoder(w).Encode(StatusResponse{Status: status})
}

type DeleteRequest struct {
	ClientVersion string
	VarId         wire.VarId
}

func (cs *CommandServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !cs.checkVersion(w, req.ClientVersion) {
		return
	}
	status := cs.engine.store.Delete(cs.engine.IsActive(), req.VarId)
	json.NewEncoder(w).Encode(StatusResponse{Status: status})
}

type ReadRequest struct {
	ClientVersion string
	VarId         wire.VarId
}

type ReadResponse struct {
	Status Status
	Value  wire.VarValue
	TStamp time.Time
}

func (cs *CommandServer) handleRead(w http.ResponseWriter, r *http.Request) {
	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !cs.checkVersion(w, req.ClientVersion) {
		return
	}
	result, status := cs.engine.store.Read(cs.engine.IsActive(), req.VarId)
	json.NewEncoder(w).Encode(ReadResponse{Status: status, Value: result.Value, TStamp: result.TStamp})
}

func (cs *CommandServer) handleDescribeDatabase(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(cs.engine.store.DescribeDatabase())
}

type DescribeVariableRequest struct {
	VarId wire.VarId
}

func (cs *CommandServer) handleDescribeVariable(w http.ResponseWriter, r *http.Request) {
	var req DescribeVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	dv, ok := cs.engine.store.DescribeVariable(req.VarId)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(dv)
}

func (cs *CommandServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	go cs.engine.Shutdown()
}
