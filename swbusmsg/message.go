// Package swbusmsg implements the wire envelope: the message header, the
// body tagged union, and the helpers used to build responses and to
// (de)serialize a Message for transport (spec §3, §6).
package swbusmsg

import (
	"encoding/gob"

	"github.com/sonic-net/sonic-swbus-go/servicepath"
	"github.com/sonic-net/sonic-swbus-go/swbuserr"
)

func init() {
	// Registered once with gob for daemon-to-daemon connections. Body holds
	// these payload types as concrete pointer fields, not behind an
	// interface.
	gob.Register(&DataRequest{})
	gob.Register(&Response{})
	gob.Register(&PingRequest{})
	gob.Register(&TraceRouteRequest{})
	gob.Register(&ManagementRequest{})
	gob.Register(&RouteQueryResult{})
	gob.Register(&ManagementQueryResult{})
}

// DefaultTTL is the hop budget a freshly-constructed message starts with.
const DefaultTTL = 63

// ManagementRequestType enumerates the reserved management operations
// (spec §6). Only SwbusdGetRoutes is implemented; all others reject with
// InvalidArgs.
type ManagementRequestType int32

const (
	ManagementRequestUnknown ManagementRequestType = iota
	SwbusdGetRoutes
)

// Header carries routing and correlation metadata (spec §3).
type Header struct {
	Version     uint32
	ID          uint64
	Flag        uint32
	TTL         uint32
	Source      servicepath.ServicePath
	Destination servicepath.ServicePath
}

// NewHeader builds a header with the default TTL and version.
func NewHeader(source, destination servicepath.ServicePath, id uint64) Header {
	return Header{
		Version:     1,
		ID:          id,
		TTL:         DefaultTTL,
		Source:      source,
		Destination: destination,
	}
}

// Body is the tagged-union payload of a Message. Exactly one of the
// pointer fields is set; this mirrors the teacher's ClientComMessage /
// ServerComMessage wire structs, which use the same one-of-these-pointers
// convention instead of a Go interface, so the zero value round-trips
// cleanly through both gob and JSON without custom marshalers.
type Body struct {
	DataRequest       *DataRequest       `json:"data_request,omitempty"`
	Response          *Response          `json:"response,omitempty"`
	PingRequest       *PingRequest       `json:"ping_request,omitempty"`
	TraceRouteRequest *TraceRouteRequest `json:"trace_route_request,omitempty"`
	ManagementRequest *ManagementRequest `json:"management_request,omitempty"`
}

// IsEmpty reports whether no variant is set - an unrecognized or stripped
// body, which the local next hop silently drops (spec §4.D).
func (b Body) IsEmpty() bool {
	return b.DataRequest == nil && b.Response == nil && b.PingRequest == nil &&
		b.TraceRouteRequest == nil && b.ManagementRequest == nil
}

// DataRequest carries an opaque application payload.
type DataRequest struct {
	Payload []byte `json:"payload,omitempty"`
}

// ResponseBody is the tagged union nested inside Response (spec §3).
type ResponseBody struct {
	RouteQueryResult       *RouteQueryResult       `json:"route_query_result,omitempty"`
	ManagementQueryResult  *ManagementQueryResult  `json:"management_query_result,omitempty"`
}

// Response correlates back to the request that produced it.
type Response struct {
	RequestID    uint64             `json:"request_id"`
	ErrorCode    swbuserr.Code      `json:"error_code"`
	ErrorMessage string             `json:"error_message,omitempty"`
	ResponseBody *ResponseBody      `json:"response_body,omitempty"`
}

// PingRequest is an empty keepalive/reachability probe.
type PingRequest struct{}

// TraceRouteRequest is an empty request acknowledged by the terminus; the
// hop-by-hop trace itself is assembled by intermediate daemons on the
// return path, which this module does not implement (no multi-hop fleet
// to traverse in-process).
type TraceRouteRequest struct{}

// ManagementRequest addresses the bus daemon itself.
type ManagementRequest struct {
	RequestType ManagementRequestType `json:"request_type"`
	Args        map[string]string     `json:"args,omitempty"`
}

// RouteEntry is one row of a route-table snapshot (spec §4.E export_routes).
type RouteEntry struct {
	Key            servicepath.ServicePath `json:"key"`
	NextHopIsLocal bool                    `json:"next_hop_is_local"`
	HopCount       uint32                  `json:"hop_count"`
	RemoteEndpoint string                  `json:"remote_endpoint,omitempty"`
}

// RouteQueryResult is the response payload of ManagementRequest{SwbusdGetRoutes}.
type RouteQueryResult struct {
	Routes []RouteEntry `json:"routes"`
}

// ManagementQueryResult carries a free-form string result for management
// request types other than route queries. It is part of the ResponseBody
// union, but no code in this module produces it.
type ManagementQueryResult struct {
	Value string `json:"value"`
}

// Message is the full wire envelope.
type Message struct {
	Header Header
	Body   Body
}

// New builds a message from an explicit header and body.
func New(header Header, body Body) Message {
	return Message{Header: header, Body: body}
}

// NewResponse builds a response to request, per spec §4.B:
//   - source = responderSP if non-nil, else request.Header.Destination
//   - destination = request.Header.Source
//   - id = newID
//   - TTL resets to DefaultTTL
func NewResponse(request Message, responderSP *servicepath.ServicePath, errorCode swbuserr.Code, errorMessage string, newID uint64, responseBody *ResponseBody) Message {
	source := request.Header.Destination
	if responderSP != nil {
		source = *responderSP
	}
	header := NewHeader(source, request.Header.Source, newID)
	return Message{
		Header: header,
		Body: Body{
			Response: &Response{
				RequestID:    request.Header.ID,
				ErrorCode:    errorCode,
				ErrorMessage: errorMessage,
				ResponseBody: responseBody,
			},
		},
	}
}
