// Package transport defines the broadcast-frame boundary BP relies on.
// Per spec.md §1, packet capture/injection bindings to the OS (libpcap /
// raw AF_PACKET sockets) are an external collaborator: only the interface
// is specified here. Broadcaster is that interface; UDPBroadcast is a
// portable, root-free realization used for development, testing and
// environments without raw-socket privileges — it stands in for "send
// this byte-string as a broadcast Ethernet frame, deliver the next one
// received", tagging each datagram with the configured EtherType and
// sender NodeId the way an Ethernet frame header otherwise would.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// Frame is one delivered broadcast frame: source address, configured
// EtherType, and payload bytes (the BPBeacon).
type Frame struct {
	Src       wire.NodeId
	EtherType uint16
	Payload   []byte
}

// Broadcaster sends and receives broadcast frames on one interface.
type Broadcaster interface {
	// Send broadcasts payload to all single-hop neighbours.
	Send(payload []byte) error
	// Receive blocks until the next broadcast frame arrives or ctx is
	// done.
	Receive(ctx context.Context) (Frame, error)
	Close() error
}

const frameTagSize = 2 + 6 // EtherType + NodeId

// UDPBroadcast implements Broadcaster over a UDP broadcast socket. It is
// not a substitute for the real raw-Ethernet transport in production —
// see the package doc — but it exercises the exact same Broadcaster
// contract BP's sniffer and scheduler depend on.
type UDPBroadcast struct {
	conn       *net.UDPConn
	bcastAddr  *net.UDPAddr
	ownNodeId  wire.NodeId
	etherType  uint16
}

// NewUDPBroadcast binds to port on all interfaces and broadcasts to
// 255.255.255.255:port. etherType is carried in the frame tag and used
// for the receive-side filter of §4.2.
func NewUDPBroadcast(own wire.NodeId, etherType uint16, port int) (*UDPBroadcast, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	return &UDPBroadcast{
		conn:      conn,
		bcastAddr: &net.UDPAddr{IP: net.IPv4bcast, Port: port},
		ownNodeId: own,
		etherType: etherType,
	}, nil
}

func (u *UDPBroadcast) Send(payload []byte) error {
	tagged := make([]byte, 0, frameTagSize+len(payload))
	var et [2]byte
	binary.BigEndian.PutUint16(et[:], u.etherType)
	tagged = append(tagged, et[:]...)
	tagged = append(tagged, u.ownNodeId[:]...)
	tagged = append(tagged, payload...)
	_, err := u.conn.WriteToUDP(tagged, u.bcastAddr)
	return err
}

func (u *UDPBroadcast) Receive(ctx context.Context) (Frame, error) {
	type result struct {
		f   Frame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 65535)
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			ch <- result{err: err}
			return
		}
		if n < frameTagSize {
			ch <- result{err: fmt.Errorf("transport: short frame (%d bytes)", n)}
			return
		}
		et := binary.BigEndian.Uint16(buf[0:2])
		var src wire.NodeId
		copy(src[:], buf[2:8])
		payload := make([]byte, n-frameTagSize)
		copy(payload, buf[frameTagSize:n])
		ch <- result{f: Frame{Src: src, EtherType: et, Payload: payload}}
	}()

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case r := <-ch:
		return r.f, r.err
	}
}

func (u *UDPBroadcast) Close() error { return u.conn.Close() }
