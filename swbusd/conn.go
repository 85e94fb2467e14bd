package swbusd

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sonic-net/sonic-swbus-go/swbuserr"
	"github.com/sonic-net/sonic-swbus-go/swbusmsg"
)

// DefaultSendQueueSize is the bound on a connection's outbound queue
// (spec §5, "Bounded queues everywhere (default size SWBUS_RECV_QUEUE_SIZE)").
const DefaultSendQueueSize = 4096

// Conn is a bidirectional channel endpoint: a bounded outbound queue
// drained by a writer task, and an inbound stream fed into the runtime by
// a reader task (spec §4.C).
type Conn struct {
	info      *ConnInfo
	transport Transport
	sendQueue chan swbusmsg.Message
	log       *logrus.Entry

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn creates a connection bound to transport. Call Start to launch its
// reader/writer tasks.
func NewConn(info *ConnInfo, transport Transport, log *logrus.Entry) *Conn {
	return &Conn{
		info:      info,
		transport: transport,
		sendQueue: make(chan swbusmsg.Message, DefaultSendQueueSize),
		log:       log.WithField("conn_id", info.ID()),
		closed:    make(chan struct{}),
	}
}

// Info returns the connection's immutable descriptor.
func (c *Conn) Info() *ConnInfo { return c.info }

// NewProxy returns a clonable handle sharing this connection's send queue.
func (c *Conn) NewProxy() *ConnProxy {
	return &ConnProxy{queue: c.sendQueue, closed: c.closed}
}

// writerLoop drains the send queue to the wire until the connection is
// closed. Runs as its own task per spec §5's scheduling model.
func (c *Conn) writerLoop() {
	for {
		select {
		case msg := <-c.sendQueue:
			if err := c.transport.WriteMessage(msg); err != nil {
				c.log.WithError(err).Warn("swbusd: connection write failed, closing")
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readerLoop reads inbound frames and hands them to dispatch until the
// connection is closed or a fatal I/O error occurs (spec §4.C lifecycle).
func (c *Conn) readerLoop(dispatch func(fromConn *ConnInfo, msg swbusmsg.Message)) {
	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.WithError(err).Info("swbusd: connection read failed, closing")
			}
			c.Close()
			return
		}
		dispatch(c.info, msg)
	}
}

// Start launches the reader and writer tasks.
func (c *Conn) Start(dispatch func(fromConn *ConnInfo, msg swbusmsg.Message)) {
	go c.writerLoop()
	go c.readerLoop(dispatch)
}

// Close tears down the connection. Safe to call multiple times and from
// either the reader or writer task.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.transport.Close()
	})
	return err
}

// ConnProxy is a clonable handle onto a connection's bounded send queue,
// usable by next hops without holding a reference to the connection object
// itself - this is how the module breaks the cyclic ownership spec §9
// flags between multiplexer, connections and next hops: a next hop only
// ever strong-references a ConnProxy, never the Conn.
type ConnProxy struct {
	queue  chan<- swbusmsg.Message
	closed <-chan struct{}
}

// TryQueue attempts a non-blocking enqueue. Returns swbuserr.QueueFull if
// the queue is saturated and swbuserr.QueueClosed if the connection has
// already shut down; the caller decides whether to drop the message or
// synthesize a response (spec §3 Connection Proxy, §4.D Return contract).
func (p *ConnProxy) TryQueue(msg swbusmsg.Message) error {
	select {
	case <-p.closed:
		return swbuserr.QueueClosed
	default:
	}
	select {
	case p.queue <- msg:
		return nil
	case <-p.closed:
		return swbuserr.QueueClosed
	default:
		return swbuserr.QueueFull
	}
}
