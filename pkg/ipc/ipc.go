// Copyright 2026 The Routeguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ipc implements the framed message protocol spoken on the
// routeguard control channels. Every frame carries a message type, a peer
// id, a request id and a typed payload; frames that hand off a transport
// additionally carry one file descriptor as socket control data.
//
// Frame format:
//
//	4-bytes: message type
//	4-bytes: peer id
//	4-bytes: request id
//	4-bytes: payload length
//	var-byte: payload
//
// All integers are big endian. The channels are trusted internal pipes;
// a malformed frame indicates a programming error between cooperating
// processes and is reported as an error to the caller, which treats it
// as fatal.
package ipc

import (
	"encoding/binary"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/routeguard/routeguard/pkg/private/serrors"
)

const (
	// HeaderLen is the fixed frame header size.
	HeaderLen = 16
	// MaxPayload bounds the payload of a single frame.
	MaxPayload = 1 << 16

	readChunk = 1 << 12
)

// Msg is one decoded frame.
type Msg struct {
	Type   Type
	PeerID uint32
	ReqID  uint32
	Data   []byte
	// File is the transport descriptor attached to the frame, if any.
	File *os.File
}

// Conn frames messages over a stream connection. Reads and writes are
// individually serialized and may run on different goroutines.
type Conn struct {
	conn net.Conn
	// uc is non-nil when the underlying transport supports descriptor
	// passing.
	uc *net.UnixConn

	readMtx sync.Mutex
	buf     []byte
	files   []*os.File

	writeMtx sync.Mutex
}

// NewConn wraps an established connection. Descriptor passing is only
// available when c is a unix-domain connection.
func NewConn(c net.Conn) *Conn {
	uc, _ := c.(*net.UnixConn)
	return &Conn{conn: c, uc: uc}
}

// Dial connects to the unix socket at address.
func Dial(address string) (*Conn, error) {
	c, err := net.Dial("unix", address)
	if err != nil {
		return nil, serrors.Wrap("dialing control socket", err, "addr", address)
	}
	return NewConn(c), nil
}

// FromFile wraps an inherited or handed-off socket descriptor. The file is
// closed; the returned connection owns its own duplicate.
func FromFile(f *os.File) (*Conn, error) {
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return nil, serrors.Wrap("adopting control descriptor", err)
	}
	return NewConn(c), nil
}

// Recv blocks until the next full frame is available and returns it. The
// returned payload is owned by the caller. Frames of a transport-handoff
// type have the received descriptor attached.
func (c *Conn) Recv() (Msg, error) {
	c.readMtx.Lock()
	defer c.readMtx.Unlock()

	for {
		if m, ok, err := c.parseFrame(); err != nil {
			return Msg{}, err
		} else if ok {
			return m, nil
		}
		if err := c.fill(); err != nil {
			return Msg{}, err
		}
	}
}

// parseFrame extracts the next frame from the read buffer, or reports that
// more data is needed.
func (c *Conn) parseFrame() (Msg, bool, error) {
	if len(c.buf) < HeaderLen {
		return Msg{}, false, nil
	}
	length := binary.BigEndian.Uint32(c.buf[12:16])
	if length > MaxPayload {
		return Msg{}, false, serrors.New("frame payload too large", "len", length)
	}
	total := HeaderLen + int(length)
	if len(c.buf) < total {
		return Msg{}, false, nil
	}
	m := Msg{
		Type:   Type(binary.BigEndian.Uint32(c.buf[0:4])),
		PeerID: binary.BigEndian.Uint32(c.buf[4:8]),
		ReqID:  binary.BigEndian.Uint32(c.buf[8:12]),
	}
	if length > 0 {
		m.Data = make([]byte, length)
		copy(m.Data, c.buf[HeaderLen:total])
	}
	c.buf = append(c.buf[:0], c.buf[total:]...)
	if m.Type.carriesFile() && len(c.files) > 0 {
		m.File = c.files[0]
		c.files = append(c.files[:0], c.files[1:]...)
	}
	return m, true, nil
}

// fill reads more data from the connection, collecting any descriptors
// delivered as control data.
func (c *Conn) fill() error {
	chunk := make([]byte, readChunk)
	if c.uc == nil {
		n, err := c.conn.Read(chunk)
		if err != nil {
			return err
		}
		c.buf = append(c.buf, chunk[:n]...)
		return nil
	}
	oob := make([]byte, unix.CmsgSpace(4*4))
	n, oobn, _, _, err := c.uc.ReadMsgUnix(chunk, oob)
	if err != nil {
		return err
	}
	if oobn > 0 {
		if err := c.collectFiles(oob[:oobn]); err != nil {
			return err
		}
	}
	c.buf = append(c.buf, chunk[:n]...)
	return nil
}

func (c *Conn) collectFiles(oob []byte) error {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return serrors.Wrap("parsing control data", err)
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			return serrors.Wrap("parsing descriptor rights", err)
		}
		for _, fd := range fds {
			unix.CloseOnExec(fd)
			c.files = append(c.files, os.NewFile(uintptr(fd), "ipc-handoff"))
		}
	}
	return nil
}

// Send writes one frame. When Msg.File is set the descriptor is passed
// along with the frame; this requires a unix-domain transport.
func (c *Conn) Send(m Msg) error {
	if len(m.Data) > MaxPayload {
		return serrors.New("frame payload too large", "len", len(m.Data))
	}
	frame := make([]byte, HeaderLen+len(m.Data))
	binary.BigEndian.PutUint32(frame[0:4], uint32(m.Type))
	binary.BigEndian.PutUint32(frame[4:8], m.PeerID)
	binary.BigEndian.PutUint32(frame[8:12], m.ReqID)
	binary.BigEndian.PutUint32(frame[12:16], uint32(len(m.Data)))
	copy(frame[HeaderLen:], m.Data)

	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()

	if m.File == nil {
		return writeFull(c.conn, frame)
	}
	if c.uc == nil {
		return serrors.New("descriptor passing not supported on this transport")
	}
	rights := unix.UnixRights(int(m.File.Fd()))
	n, _, err := c.uc.WriteMsgUnix(frame, rights, nil)
	if err != nil {
		return err
	}
	if n < len(frame) {
		return writeFull(c.conn, frame[n:])
	}
	return nil
}

// Compose builds and sends one frame, mirroring the send side of the
// original message API.
func (c *Conn) Compose(t Type, peerID, reqID uint32, data []byte) error {
	return c.Send(Msg{Type: t, PeerID: peerID, ReqID: reqID, Data: data})
}

func writeFull(conn net.Conn, b []byte) error {
	for written := 0; written < len(b); {
		n, err := conn.Write(b[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// Close tears down the connection and releases any descriptors that were
// received but never claimed by a frame. Closing first unblocks a reader
// stuck in Recv.
func (c *Conn) Close() error {
	err := c.conn.Close()
	c.readMtx.Lock()
	for _, f := range c.files {
		f.Close()
	}
	c.files = nil
	c.readMtx.Unlock()
	return err
}
