// Package protocol encodes and decodes the IQ-style signaling exchanges
// jicofo's core consumes and produces: a Jingle-like offer/answer dialect
// towards clients, and a colibri-v2-like dialect towards bridges (§6). Both
// dialects share the same request/response correlation mechanics, provided
// by Collector.
package protocol

import (
	"encoding/json"
)

// IQType mirrors the three IQ stanza kinds used by both dialects.
type IQType string

const (
	IQSet    IQType = "set"
	IQResult IQType = "result"
	IQError  IQType = "error"
)

// ErrorCondition is the standard set of conditions a peer can report.
type ErrorCondition string

const (
	ConditionBadRequest        ErrorCondition = "bad-request"
	ConditionItemNotFound      ErrorCondition = "item-not-found"
	ConditionConflict          ErrorCondition = "conflict"
	ConditionServiceUnavailable ErrorCondition = "service-unavailable"
	ConditionNotAcceptable     ErrorCondition = "not-acceptable"
	ConditionInternalServerErr ErrorCondition = "internal-server-error"
)

// ApplicationReason distinguishes bridge-originated errors from errors
// raised by an intermediary (the bus, jicofo itself).
type ApplicationReason string

const (
	ReasonConferenceNotFound ApplicationReason = "CONFERENCE_NOT_FOUND"
	ReasonGracefulShutdown   ApplicationReason = "GRACEFUL_SHUTDOWN"
	ReasonUnknown            ApplicationReason = ""
)

// StanzaError is the structured error payload of an IQ-error response.
type StanzaError struct {
	Condition ErrorCondition    `json:"condition"`
	Reason    ApplicationReason `json:"reason,omitempty"`
	Message   string            `json:"message,omitempty"`
}

func (e *StanzaError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason != ReasonUnknown {
		return string(e.Condition) + "/" + string(e.Reason)
	}
	return string(e.Condition)
}

// ClientMessageType enumerates the Jingle-like client dialect (§6).
type ClientMessageType string

const (
	ClientSessionInitiate   ClientMessageType = "session-initiate"
	ClientSessionAccept     ClientMessageType = "session-accept"
	ClientTransportInfo     ClientMessageType = "transport-info"
	ClientTransportAccept   ClientMessageType = "transport-accept"
	ClientTransportReject   ClientMessageType = "transport-reject"
	ClientSourceAdd         ClientMessageType = "source-add"
	ClientSourceRemove      ClientMessageType = "source-remove"
	ClientSessionTerminate  ClientMessageType = "session-terminate"
	ClientMuteRequest       ClientMessageType = "mute-request"
	ClientRestartRequest    ClientMessageType = "session-restart"
)

// MediaType is audio or video; Source.MediaType and caps are scoped to it.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// VideoType distinguishes camera vs. screen-share video sources.
type VideoType string

const (
	VideoTypeCamera VideoType = "camera"
	VideoTypeDesktop VideoType = "desktop"
)

// Source describes a single media stream, identified by ssrc within a
// conference (§3).
type Source struct {
	SSRC      uint32    `json:"ssrc"`
	MediaType MediaType `json:"mediaType"`
	Name      string    `json:"name"`
	MSID      string    `json:"msid,omitempty"`
	VideoType VideoType `json:"videoType,omitempty"`
	Owner     string    `json:"owner"`
	// GroupID ties related SSRCs (simulcast layers, a primary/RTX pair)
	// into one logical ssrc-group (§4.5 max-ssrc-groups-per-user).
	// Sources with no group membership leave this empty.
	GroupID string `json:"groupId,omitempty"`
}

// Fingerprint is a DTLS fingerprint advertised in a transport element.
type Fingerprint struct {
	Hash       string `json:"hash"`
	Value      string `json:"value"`
	Setup      string `json:"setup"` // actpass | active | passive
}

// Candidate is an ICE candidate advertised in a transport element.
type Candidate struct {
	Foundation string `json:"foundation"`
	Component  int    `json:"component"`
	Protocol   string `json:"protocol"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	Type       string `json:"type"`
}

// Transport carries ICE/DTLS negotiation state; wsCandidate marks whether a
// WebSocket transport candidate is present (only one relay side advertises
// one, see §4.4).
type Transport struct {
	UFrag        string        `json:"ufrag"`
	Pwd          string        `json:"pwd"`
	Fingerprints []Fingerprint `json:"fingerprints,omitempty"`
	Candidates   []Candidate   `json:"candidates,omitempty"`
	SctpPort     *int          `json:"sctpPort,omitempty"`
	WebSocket    string        `json:"webSocket,omitempty"`
	// Setup is the DTLS setup attribute ("active" | "passive" | "actpass").
	// Only meaningful on relay (bridge-to-bridge) transports; client-facing
	// transports leave it empty.
	Setup string `json:"setup,omitempty"`
}

// Offer is the client-presented session description for session-initiate /
// transport-accept style requests.
type Offer struct {
	Sources      []Source  `json:"sources"`
	Transport    Transport `json:"transport"`
	Codecs       []string  `json:"codecs,omitempty"`
	RTPHeaderExt []string  `json:"rtpHeaderExtensions,omitempty"`
}

// ClientMessage is an envelope for any message on the client dialect.
type ClientMessage struct {
	ID         string            `json:"id"`
	Type       IQType            `json:"type"`
	Kind       ClientMessageType `json:"kind"`
	From       string            `json:"from"`
	To         string            `json:"to,omitempty"`
	Offer      *Offer            `json:"offer,omitempty"`
	Transport  *Transport        `json:"transport,omitempty"`
	Sources    []Source          `json:"sources,omitempty"`
	MediaType  MediaType         `json:"mediaType,omitempty"`
	DoMute     bool              `json:"doMute,omitempty"`
	TargetIDs  []string          `json:"targetIds,omitempty"`
	Error      *StanzaError      `json:"error,omitempty"`
}

// Marshal/Unmarshal are thin wrappers so callers don't reach for
// encoding/json directly; kept for symmetry with the bridge dialect and to
// give the dialect a seam for a future wire-format swap.
func (m *ClientMessage) Marshal() ([]byte, error)   { return json.Marshal(m) }
func UnmarshalClientMessage(b []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
