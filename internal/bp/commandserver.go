package bp

import (
	"encoding/json"
	"net"
	"net/http"
	"os"

	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"

	"github.com/dcp-vardis/dcp-vardis-go/internal/dcpver"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// CommandServer exposes Engine over a UNIX-domain socket using the same
// HTTP-over-unix-socket framing the teacher's control server uses: one
// ServeMux, JSON request/response bodies, a /version endpoint guarding
// the client/daemon version handshake of §7.
type CommandServer struct {
	engine   *Engine
	log      *logging.Logger
	listener net.Listener
}

// NewCommandServer binds a UNIX socket at socketPath, replacing any stale
// socket file left behind by a previous run.
func NewCommandServer(engine *Engine, socketPath string, log *logging.Logger) (*CommandServer, error) {
	os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &CommandServer{engine: engine, log: log, listener: l}, nil
}

func (cs *CommandServer) Addr() string { return cs.listener.Addr().String() }

// Serve blocks processing requests until the listener is closed.
func (cs *CommandServer) Serve() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", cs.handleVersion)
	mux.HandleFunc("/register", cs.handleRegister)
	mux.HandleFunc("/deregister", cs.handleDeregister)
	mux.HandleFunc("/list", cs.handleList)
	mux.HandleFunc("/clearbuffer", cs.handleClearBuffer)
	mux.HandleFunc("/numbuffered", cs.handleNumBuffered)
	mux.HandleFunc("/activate", cs.handleActivate)
	mux.HandleFunc("/deactivate", cs.handleDeactivate)
	mux.HandleFunc("/transmit", cs.handleTransmit)
	mux.HandleFunc("/stats", cs.handleStats)
	mux.HandleFunc("/shutdown", cs.handleShutdown)
	return http.Serve(cs.listener, mux)
}

func (cs *CommandServer) Close() error { return cs.listener.Close() }

func (cs *CommandServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(dcpver.CurrentVersion.String()))
}

// checkVersion implements §7's version/size-skew guard for requests that
// declare the client's protocol version (here only /register), rejecting
// the request if the peer isn't compatible.
func (cs *CommandServer) checkVersion(w http.ResponseWriter, v string) bool {
	peer, err := dcpver.Parse(v)
	if err != nil || !dcpver.Compatible(peer) {
		w.WriteHeader(http.StatusUpgradeRequired)
		return false
	}
	return true
}

type RegisterRequest struct {
	ClientVersion         string
	ProtocolId            wire.ProtocolId
	Name                  string
	MaxPayloadSize        int
	Mode                  QueueingMode
	MaxEntries            int
	AllowMultiplePayloads bool
	WantTxConfirms        bool
	ShmName               string
}

type RegisterResponse struct {
	Status RegisterStatus
	Token  uuid.UUID
	OwnId  wire.NodeId
}

func (cs *CommandServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !cs.checkVersion(w, req.ClientVersion) {
		return
	}
	token, own, status := cs.engine.Register(req.ProtocolId, req.Name, req.MaxPayloadSize,
		req.Mode, req.MaxEntries, req.AllowMultiplePayloads, req.WantTxConfirms, req.ShmName)
	json.NewEncoder(w).Encode(RegisterResponse{Status: status, Token: token, OwnId: own})
}

type DeregisterRequest struct {
	ProtocolId wire.ProtocolId
	Token      uuid.UUID
}

func (cs *CommandServer) handleDeregister(w http.ResponseWriter, r *http.Request) {
	var req DeregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := cs.engine.Deregister(req.ProtocolId, req.Token); err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (cs *CommandServer) handleList(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(cs.engine.ListRegisteredProtocols())
}

type ProtocolIdRequest struct {
	ProtocolId wire.ProtocolId
}

func (cs *CommandServer) handleClearBuffer(w http.ResponseWriter, r *http.Request) {
	var req ProtocolIdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := cs.engine.ClearBuffer(req.ProtocolId); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (cs *CommandServer) handleNumBuffered(w http.ResponseWriter, r *http.Request) {
	var req ProtocolIdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n, err := cs.engine.QueryNumberBufferedPayloads(req.ProtocolId)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(n)
}

func (cs *CommandServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	cs.engine.Activate()
	w.WriteHeader(http.StatusOK)
}

func (cs *CommandServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	cs.engine.Deactivate()
	w.WriteHeader(http.StatusOK)
}

type TransmitRequest struct {
	ProtocolId wire.ProtocolId
	Token      uuid.UUID
	Payload    []byte
}

func (cs *CommandServer) handleTransmit(w http.ResponseWriter, r *http.Request) {
	var req TransmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := cs.engine.TransmitPayload(req.ProtocolId, req.Token, req.Payload); err != nil {
		switch err {
		case ErrUnknownProtocol:
			w.WriteHeader(http.StatusNotFound)
		case ErrNotOwner:
			w.WriteHeader(http.StatusForbidden)
		case ErrPayloadTooLarge:
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (cs *CommandServer) handleStats(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(cs.engine.GetStatistics())
}

func (cs *CommandServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	go cs.engine.Shutdown()
}
