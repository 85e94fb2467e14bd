package swbusd

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"io"
	"net"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sonic-net/sonic-swbus-go/swbusmsg"
)

// maxFrameLen bounds a single wire frame to guard against a corrupt or
// malicious length prefix driving an unbounded allocation.
const maxFrameLen = 16 << 20 // 16 MiB

// Transport is the wire-level duplex a Conn drains its reader/writer tasks
// over. The canonical encoding of a frame's payload is gob (spec §6,
// grounded on the teacher's own use of encoding/gob for intra-cluster RPC
// payloads in server/cluster.go); callers that need the JSON rendering for
// test fixtures use swbusmsg's JSON struct tags directly instead of a
// Transport.
type Transport interface {
	io.Closer
	WriteMessage(msg swbusmsg.Message) error
	ReadMessage() (swbusmsg.Message, error)
}

// tcpTransport frames gob-encoded messages behind a 4-byte big-endian
// length prefix over a raw net.Conn (spec §6: "length-prefixed framed
// message").
type tcpTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewTCPTransport wraps an already-established net.Conn.
func NewTCPTransport(conn net.Conn) Transport {
	return &tcpTransport{conn: conn, r: bufio.NewReader(conn)}
}

// DialTCP connects to a remote swbusd and returns a framed transport.
func DialTCP(addr string) (Transport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "swbusd: dial %s", addr)
	}
	return NewTCPTransport(conn), nil
}

func (t *tcpTransport) WriteMessage(msg swbusmsg.Message) error {
	var buf writeCounter
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return errors.Wrap(err, "swbusd: encode frame")
	}
	lenPrefix := make([]byte, 4)
	binary.BigEndian.PutUint32(lenPrefix, uint32(len(buf.data)))
	if _, err := t.conn.Write(lenPrefix); err != nil {
		return errors.Wrap(err, "swbusd: write frame length")
	}
	if _, err := t.conn.Write(buf.data); err != nil {
		return errors.Wrap(err, "swbusd: write frame payload")
	}
	return nil
}

func (t *tcpTransport) ReadMessage() (swbusmsg.Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(t.r, lenPrefix[:]); err != nil {
		return swbusmsg.Message{}, err
	}
	frameLen := binary.BigEndian.Uint32(lenPrefix[:])
	if frameLen > maxFrameLen {
		return swbusmsg.Message{}, errors.Errorf("swbusd: frame length %d exceeds max %d", frameLen, maxFrameLen)
	}
	payload := make([]byte, frameLen)
	if _, err := io.ReadFull(t.r, payload); err != nil {
		return swbusmsg.Message{}, errors.Wrap(err, "swbusd: read frame payload")
	}
	var msg swbusmsg.Message
	if err := gob.NewDecoder(bufReader(payload)).Decode(&msg); err != nil {
		return swbusmsg.Message{}, errors.Wrap(err, "swbusd: decode frame")
	}
	return msg, nil
}

func (t *tcpTransport) Close() error { return t.conn.Close() }

// wsTransport rides one gob-encoded Message per websocket binary message,
// grounded on the teacher's per-session websocket connection
// (server/session.go).
type wsTransport struct {
	conn *websocket.Conn
}

// NewWSTransport wraps an already-established websocket connection.
func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) WriteMessage(msg swbusmsg.Message) error {
	var buf writeCounter
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return errors.Wrap(err, "swbusd: encode ws frame")
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, buf.data)
}

func (t *wsTransport) ReadMessage() (swbusmsg.Message, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return swbusmsg.Message{}, err
	}
	var msg swbusmsg.Message
	if err := gob.NewDecoder(bufReader(data)).Decode(&msg); err != nil {
		return swbusmsg.Message{}, errors.Wrap(err, "swbusd: decode ws frame")
	}
	return msg, nil
}

func (t *wsTransport) Close() error { return t.conn.Close() }

type writeCounter struct {
	data []byte
}

func (w *writeCounter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func bufReader(b []byte) io.Reader {
	return &sliceReader{data: b}
}

type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
