package bp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/dcp-vardis/dcp-vardis-go/internal/dcpver"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// ErrConnectingToDaemon mirrors the teacher's top-level "can't reach the
// daemon" sentinel (kryptco-kr's kr.ErrConnectingToDaemon), used by every
// client-library call below.
var ErrConnectingToDaemon = fmt.Errorf("bp: could not connect to bp daemon")

// Client is the library other protocols (and the CLI) use to talk to a
// running BP daemon: control primitives (Register, Activate, Stats, ...)
// go over the UNIX command socket, mirroring the teacher's krdclient
// request/response-over-unix-socket pattern; the payload path
// (Transmit/ReceivePayload) bypasses the command socket entirely and
// talks to the registered shm segment directly, per §4.1's "the only
// payload-path primitive; implemented through shm, not the command
// channel."
type Client struct {
	socketPath string
	shmDir     string
	protocolId wire.ProtocolId
	token      uuid.UUID
	channel    *clientChannel
}

// Dial connects to the daemon without registering (used for introspection
// calls: List, Stats, Activate, Deactivate).
func Dial(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// DialWithShmDir is Dial plus the directory BP's shm pools live under
// (tests use a temp dir; production uses /dev/shm, the Pool default).
func DialWithShmDir(socketPath, shmDir string) *Client {
	return &Client{socketPath: socketPath, shmDir: shmDir}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return nil, ErrConnectingToDaemon
	}
	return conn, nil
}

func (c *Client) roundTrip(path string, reqBody interface{}, respBody interface{}) (*http.Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var buf bytes.Buffer
	if reqBody != nil {
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return nil, err
		}
	}
	httpReq, err := http.NewRequest("POST", path, &buf)
	if err != nil {
		return nil, err
	}
	if err := httpReq.Write(conn); err != nil {
		return nil, ErrConnectingToDaemon
	}

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, httpReq)
	if err != nil {
		return nil, ErrConnectingToDaemon
	}
	defer resp.Body.Close()
	if respBody != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Version requests the daemon's command-surface version, the handshake
// step of §7; of the other calls only Register carries a ClientVersion.
func (c *Client) Version() (string, error) {
	conn, err := c.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()
	httpReq, _ := http.NewRequest("GET", "/version", nil)
	if err := httpReq.Write(conn); err != nil {
		return "", ErrConnectingToDaemon
	}
	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, httpReq)
	if err != nil {
		return "", ErrConnectingToDaemon
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return buf.String(), nil
}

// Register registers protocolId with the daemon and binds this Client to
// the returned ownership token. On success it also attaches to the
// daemon's shm segment shmName (openClientChannel, shm.Open), which makes
// the channel-level calls (Transmit, ReceivePayload) usable.
func (c *Client) Register(protocolId wire.ProtocolId, name string, maxPayloadSize int, mode QueueingMode, maxEntries int, allowMultiple, wantTxConfirms bool, shmName string) (wire.NodeId, RegisterStatus, error) {
	req := RegisterRequest{
		ClientVersion: dcpver.CurrentVersion.String(), ProtocolId: protocolId, Name: name,
		MaxPayloadSize: maxPayloadSize, Mode: mode, MaxEntries: maxEntries,
		AllowMultiplePayloads: allowMultiple, WantTxConfirms: wantTxConfirms, ShmName: shmName,
	}
	var resp RegisterResponse
	if _, err := c.roundTrip("/register", req, &resp); err != nil {
		return wire.NodeId{}, InternalError, err
	}
	if resp.Status == Ok {
		c.protocolId = protocolId
		c.token = resp.Token
		channel, chErr := openClientChannel(c.shmDir, shmName, mode, maxEntries)
		if chErr != nil {
			return resp.OwnId, InternalError, chErr
		}
		c.channel = channel
	}
	return resp.OwnId, resp.Status, nil
}

func (c *Client) Deregister() error {
	req := DeregisterRequest{ProtocolId: c.protocolId, Token: c.token}
	resp, err := c.roundTrip("/deregister", req, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return ErrNotOwner
	}
	return nil
}

func (c *Client) List() ([]registration, error) {
	var regs []registration
	if _, err := c.roundTrip("/list", nil, &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

func (c *Client) ClearBuffer() error {
	req := ProtocolIdRequest{ProtocolId: c.protocolId}
	resp, err := c.roundTrip("/clearbuffer", req, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return ErrUnknownProtocol
	}
	return nil
}

func (c *Client) NumBuffered() (int, error) {
	req := ProtocolIdRequest{ProtocolId: c.protocolId}
	var n int
	if _, err := c.roundTrip("/numbuffered", req, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Client) Activate() error {
	_, err := c.roundTrip("/activate", nil, nil)
	return err
}

func (c *Client) Deactivate() error {
	_, err := c.roundTrip("/deactivate", nil, nil)
	return err
}

// Transmit admits payload into this client's pre-tx holding area directly
// over shared memory — the payload path never touches the command socket.
func (c *Client) Transmit(payload []byte) error {
	if c.channel == nil {
		return ErrConnectingToDaemon
	}
	if c.channel.admitOutgoing(payload) {
		return ErrPayloadTooLarge
	}
	return nil
}

// ReceivePayload drains one inbound indication for this client, blocking
// up to timeout, directly over shared memory.
func (c *Client) ReceivePayload(timeout time.Duration) ([]byte, bool, error) {
	if c.channel == nil {
		return nil, false, ErrConnectingToDaemon
	}
	payload, ok := c.channel.pullIndication(timeout)
	return payload, ok, nil
}

// Close releases this client's view of its shm channel without destroying
// the segment (the daemon owns it).
func (c *Client) Close() error {
	if c.channel != nil {
		return c.channel.close()
	}
	return nil
}

func (c *Client) Stats() (Statistics, error) {
	var st Statistics
	if _, err := c.roundTrip("/stats", nil, &st); err != nil {
		return Statistics{}, err
	}
	return st, nil
}

func (c *Client) Shutdown() error {
	_, err := c.roundTrip("/shutdown", nil, nil)
	return err
}
