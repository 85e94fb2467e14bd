// Package swbusedge implements the simple-client façade: a single
// registered service path backed by a runtime handler mailbox, with
// transparent auto-response to ping and trace-route traffic; management
// requests of a known type are handed to the caller and those of an
// unknown type are dropped (spec §4.G). It is grounded on
// crates/swbus-edge/src/simple_client.rs of the original implementation
// and on the teacher's per-session dispatch loop (server/session.go).
package swbusedge

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sonic-net/sonic-swbus-go/servicepath"
	"github.com/sonic-net/sonic-swbus-go/swbusd"
	"github.com/sonic-net/sonic-swbus-go/swbusmsg"
	"github.com/sonic-net/sonic-swbus-go/swbuserr"
)

// recvBufferSize bounds the channel Recv drains; it is independent of (and
// in practice smaller contention than) the runtime mailbox, since pump
// already consumes the runtime side as fast as handleReceivedMessage runs.
const recvBufferSize = 256

// IncomingMessage is the user-facing rendering of a Message delivered to a
// SimpleSwbusEdgeClient's mailbox, after ping and trace-route traffic has
// already been intercepted and auto-answered and management requests of an
// unknown type have been dropped.
type IncomingMessage struct {
	Header swbusmsg.Header
	Body   MessageBody
}

// MessageBody narrows swbusmsg.Body to the variants a simple-client
// consumer ever sees directly; everything else is handled transparently by
// handleReceivedMessage.
type MessageBody struct {
	DataRequest       *swbusmsg.DataRequest
	ManagementRequest *swbusmsg.ManagementRequest
	Response          *MessageResponseBody
}

// MessageResponseBody narrows swbusmsg.Response to what a caller
// correlating its own outstanding request needs.
type MessageResponseBody struct {
	RequestID    uint64
	ErrorCode    swbuserr.Code
	ErrorMessage string
	ResponseBody *swbusmsg.ResponseBody
}

// OutgoingMessage is what a caller hands to Send: only the destination and
// payload, since the client fills in its own service path as source, the
// message id, and the default TTL.
type OutgoingMessage struct {
	Destination servicepath.ServicePath
	Body        swbusmsg.Body
}

// SimpleSwbusEdgeClient is a single registered address with transparent
// auto-response to ping/trace-route traffic, and a channel-based Recv for
// everything it does not answer or drop itself (spec §4.G).
type SimpleSwbusEdgeClient struct {
	rt   *swbusd.EdgeRuntime
	sp   servicepath.ServicePath
	sink bool
	log  *logrus.Entry

	mailbox <-chan swbusmsg.Message
	out     chan IncomingMessage
	done    chan struct{}
}

// New registers sp as a public handler.
func New(rt *swbusd.EdgeRuntime, sp servicepath.ServicePath, log *logrus.Entry) (*SimpleSwbusEdgeClient, error) {
	return newClient(rt, sp, false, false, log)
}

// NewPrivate registers sp as a private handler, invisible to
// EdgeRuntime.ExportHandlers - the pattern hamgrd/main.rs uses for its
// actor-creator and per-actor private mailboxes.
func NewPrivate(rt *swbusd.EdgeRuntime, sp servicepath.ServicePath, log *logrus.Entry) (*SimpleSwbusEdgeClient, error) {
	return newClient(rt, sp, true, false, log)
}

// NewSink registers sp as a private handler that answers every data request
// it receives with NoRoute instead of forwarding it to a caller - the
// permanent drain hamgrd/main.rs installs for service types the process
// hosts but has no actor instantiated for yet, so traffic addressed to them
// does not pile up unanswered.
func NewSink(rt *swbusd.EdgeRuntime, sp servicepath.ServicePath, log *logrus.Entry) (*SimpleSwbusEdgeClient, error) {
	return newClient(rt, sp, true, true, log)
}

func newClient(rt *swbusd.EdgeRuntime, sp servicepath.ServicePath, private, sink bool, log *logrus.Entry) (*SimpleSwbusEdgeClient, error) {
	var mailbox <-chan swbusmsg.Message
	var err error
	if private {
		mailbox, err = rt.AddPrivateHandler(sp)
	} else {
		mailbox, err = rt.AddHandler(sp)
	}
	if err != nil {
		return nil, err
	}

	c := &SimpleSwbusEdgeClient{
		rt:      rt,
		sp:      sp,
		sink:    sink,
		log:     log.WithField("service_path", sp.String()),
		mailbox: mailbox,
		out:     make(chan IncomingMessage, recvBufferSize),
		done:    make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

// ServicePath returns the address this client is registered at.
func (c *SimpleSwbusEdgeClient) ServicePath() servicepath.ServicePath { return c.sp }

// pump drains the runtime mailbox until Close, passing each message to
// handleReceivedMessage, which answers or drops it itself or forwards it to
// Recv's channel.
func (c *SimpleSwbusEdgeClient) pump() {
	defer close(c.out)
	for {
		select {
		case msg, ok := <-c.mailbox:
			if !ok {
				return
			}
			c.handleReceivedMessage(msg)
		case <-c.done:
			return
		}
	}
}

// handleReceivedMessage is the translation spec §4.G describes: ping and
// trace-route are answered inline; a management request whose type parses
// successfully is surfaced to Recv for the actor to answer, while one whose
// type does not parse is logged and ignored (no reply), mirroring
// crates/swbus-edge/src/simple_client.rs's handling of an unrecognized
// ManagementRequestType; a sink client answers every data request with
// NoRoute instead of surfacing it to Recv.
func (c *SimpleSwbusEdgeClient) handleReceivedMessage(msg swbusmsg.Message) {
	switch {
	case msg.Body.PingRequest != nil:
		c.reply(msg, swbuserr.Ok, "", nil)

	case msg.Body.TraceRouteRequest != nil:
		c.reply(msg, swbuserr.Ok, "", nil)

	case msg.Body.ManagementRequest != nil:
		if msg.Body.ManagementRequest.RequestType == swbusmsg.ManagementRequestUnknown {
			c.log.WithField("request_type", msg.Body.ManagementRequest.RequestType).
				Warn("swbusedge: dropping management request with unparseable type")
			return
		}
		c.deliver(IncomingMessage{Header: msg.Header, Body: MessageBody{ManagementRequest: msg.Body.ManagementRequest}})

	case msg.Body.DataRequest != nil:
		if c.sink {
			c.reply(msg, swbuserr.NoRoute, "no active handler for this destination", nil)
			return
		}
		c.deliver(IncomingMessage{Header: msg.Header, Body: MessageBody{DataRequest: msg.Body.DataRequest}})

	case msg.Body.Response != nil:
		c.deliver(IncomingMessage{Header: msg.Header, Body: MessageBody{Response: &MessageResponseBody{
			RequestID:    msg.Body.Response.RequestID,
			ErrorCode:    msg.Body.Response.ErrorCode,
			ErrorMessage: msg.Body.Response.ErrorMessage,
			ResponseBody: msg.Body.Response.ResponseBody,
		}}})

	default:
		c.log.Warn("swbusedge: dropping message with unrecognized body")
	}
}

func (c *SimpleSwbusEdgeClient) reply(request swbusmsg.Message, code swbuserr.Code, msg string, body *swbusmsg.ResponseBody) {
	resp := swbusmsg.NewResponse(request, &c.sp, code, msg, c.rt.Mux().GenerateMessageID(), body)
	if err := c.rt.Send(resp); err != nil {
		c.log.WithError(err).Warn("swbusedge: failed to send auto-response")
	}
}

func (c *SimpleSwbusEdgeClient) deliver(msg IncomingMessage) {
	select {
	case c.out <- msg:
	default:
		c.log.Warn("swbusedge: client receive buffer full, dropping inbound message")
	}
}

// Recv blocks until a message arrives, ctx is canceled, or the client is
// closed.
func (c *SimpleSwbusEdgeClient) Recv(ctx context.Context) (IncomingMessage, error) {
	select {
	case msg, ok := <-c.out:
		if !ok {
			return IncomingMessage{}, errors.New("swbusedge: client closed")
		}
		return msg, nil
	case <-ctx.Done():
		return IncomingMessage{}, ctx.Err()
	}
}

// Send addresses an OutgoingMessage from this client's own service path and
// routes it through the runtime, returning the id it assigned so the caller
// can correlate a later Response.
func (c *SimpleSwbusEdgeClient) Send(out OutgoingMessage) (uint64, error) {
	id := c.rt.Mux().GenerateMessageID()
	msg := c.OutgoingMessageToSwbusMessage(id, out)
	return id, c.rt.Send(msg)
}

// OutgoingMessageToSwbusMessage renders out as a full wire Message.
func (c *SimpleSwbusEdgeClient) OutgoingMessageToSwbusMessage(id uint64, out OutgoingMessage) swbusmsg.Message {
	return swbusmsg.New(swbusmsg.NewHeader(c.sp, out.Destination, id), out.Body)
}

// SendRaw routes a fully-formed Message as-is, bypassing the source/id/TTL
// defaulting Send applies - used when forwarding a message this client did
// not itself originate.
func (c *SimpleSwbusEdgeClient) SendRaw(msg swbusmsg.Message) error {
	return c.rt.Send(msg)
}

// Close unregisters this client's handler and stops its receive pump.
// Buffered inbound messages are discarded.
func (c *SimpleSwbusEdgeClient) Close() {
	c.rt.RemoveHandler(c.sp)
	close(c.done)
}
