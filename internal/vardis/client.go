package vardis

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/dcp-vardis/dcp-vardis-go/internal/dcpver"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// ErrConnectingToDaemon mirrors bp.ErrConnectingToDaemon for VD's own
// command socket.
var ErrConnectingToDaemon = fmt.Errorf("vardis: could not connect to vardis daemon")

// Client is the library other processes (the CLI, test harnesses) use to
// drive a running VD daemon's CRUD and introspection surface.
type Client struct {
	socketPath string
}

func Dial(socketPath string) *Client { return &Client{socketPath: socketPath} }

func (c *Client) roundTrip(path string, reqBody interface{}, respBody interface{}) (*http.Response, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return nil, ErrConnectingToDaemon
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
	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Client) Activate() error {
	_, err := c.roundTrip("/activate", nil, nil)
	return err
}

func (c *Client) Deactivate() error {
	_, err := c.roundTrip("/deactivate", nil, nil)
	return err
}

func (c *Client) Create(varId wire.VarId, descr wire.VarDescription, repCnt wire.VarRepCnt, value wire.VarValue) (Status, error) {
	req := CreateRequest{ClientVersion: dcpver.CurrentVersion.String(), VarId: varId, Description: descr, RepCnt: repCnt, Value: value}
	var resp StatusResponse
	if _, err := c.roundTrip("/create", req, &resp); err != nil {
		return StatusInternalError, err
	}
	return resp.Status, nil
}

func (c *Client) Update(varId wire.VarId, value wire.VarValue) (Status, error) {
	req := UpdateRequest{ClientVersion: dcpver.CurrentVersion.String(), VarId: varId, Value: value}
	var resp StatusResponse
	if _, err := c.roundTrip("/update", req, &resp); err != nil {
		return StatusInternalError, err
	}
	return resp.Status, nil
}

func (c *Client) Delete(varId wire.VarId) (Status, error) {
	req := DeleteRequest{ClientVersion: dcpver.CurrentVersion.String(), VarId: varId}
	var resp StatusResponse
	if _, err := c.roundTrip("/delete", req, &resp); err != nil {
		return StatusInternalError, err
	}
	return resp.Status, nil
}

func (c *Client) Read(varId wire.VarId) (ReadResponse, error) {
	req := ReadRequest{ClientVersion: dcpver.CurrentVersion.String(), VarId: varId}
	var resp ReadResponse
	if _, err := c.roundTrip("/read", req, &resp); err != nil {
		return ReadResponse{}, err
	}
	return resp, nil
}

func (c *Client) DescribeDatabase() ([]DescribedVariable, error) {
	var out []DescribedVariable
	if _, err := c.roundTrip("/describe-db", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DescribeVariable(varId wire.VarId) (DescribedVariable, error) {
	req := DescribeVariableRequest{VarId: varId}
	var out DescribedVariable
	if _, err := c.roundTrip("/describe-var", req, &out); err != nil {
		return DescribedVariable{}, err
	}
	return out, nil
}

func (c *Client) Shutdown() error {
	_, err := c.roundTrip("/shutdown", nil, nil)
	return err
}
