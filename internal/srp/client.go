package srp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
)

// ErrConnectingToDaemon mirrors bp.ErrConnectingToDaemon for SR's own
// command socket.
var ErrConnectingToDaemon = fmt.Errorf("srp: could not connect to srp daemon")

// Client is the library other processes use to drive a running SR
// daemon's activation and neighbour-table introspection surface.
type Client struct {
	socketPath string
}

func Dial(socketPath string) *Client { return &Client{socketPath: socketPath} }

func (c *Client) roundTrip(path string, respBody interface{}) error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return ErrConnectingToDaemon
	}
	defer conn.Close()

	httpReq, err := http.NewRequest("POST", path, &bytes.Buffer{})
	if err != nil {
		return err
	}
	if err := httpReq.Write(conn); err != nil {
		return ErrConnectingToDaemon
	}
	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, httpReq)
	if err != nil {
		return ErrConnectingToDaemon
	}
	defer resp.Body.Close()
	if respBody != nil {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}

func (c *Client) Activate() error   { return c.roundTrip("/activate", nil) }
func (c *Client) Deactivate() error { return c.roundTrip("/deactivate", nil) }

func (c *Client) Neighbors() ([]Neighbour, error) {
	var out []Neighbour
	if err := c.roundTrip("/neighbors", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Shutdown() error { return c.roundTrip("/shutdown", nil) }
