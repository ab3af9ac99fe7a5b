package protocol

import "encoding/json"

// EndpointElement is one nested endpoint directive inside a ConferenceModify
// request: create, update, or expire a single participant's channels.
type EndpointElement struct {
	ID              string    `json:"id"`
	StatsID         string    `json:"statsId,omitempty"`
	Create          bool      `json:"create,omitempty"`
	Expire          bool      `json:"expire,omitempty"`
	ForceMuteAudio  bool      `json:"forceMuteAudio,omitempty"`
	ForceMuteVideo  bool      `json:"forceMuteVideo,omitempty"`
	Sources         []Source  `json:"sources,omitempty"`
	Transport       Transport `json:"transport"`
	Media           []Media   `json:"media,omitempty"`
}

// Media is a single m-line directive (audio/video) under an endpoint or
// relay element.
type Media struct {
	Type    MediaType `json:"type"`
	Payload string    `json:"payload,omitempty"`
}

// RelayElement is a nested relay directive inside a ConferenceModify request:
// establishes or updates the bridge-to-bridge mesh link (§4.4).
type RelayElement struct {
	ID          string    `json:"id"`
	Initiator   bool      `json:"initiator"`
	Create      bool      `json:"create,omitempty"`
	Expire      bool      `json:"expire,omitempty"`
	Endpoints   []string  `json:"endpoints,omitempty"`
	Transport   Transport `json:"transport"`
}

// ConferenceModify is the colibri-v2-like request sent to a bridge (§6).
type ConferenceModify struct {
	ID        string            `json:"id"`
	Type      IQType            `json:"type"`
	Conference string           `json:"conference"`
	Create    bool              `json:"create,omitempty"`
	Expire    bool              `json:"expire,omitempty"`
	Endpoints []EndpointElement `json:"endpoints,omitempty"`
	Relays    []RelayElement    `json:"relays,omitempty"`
	Error     *StanzaError      `json:"error,omitempty"`
}

// ConferenceModified is the bridge's response to a ConferenceModify,
// carrying feedback sources and the accepted transport for each endpoint.
type ConferenceModified struct {
	ID        string                    `json:"id"`
	Type      IQType                    `json:"type"`
	Endpoints []EndpointModifiedElement `json:"endpoints,omitempty"`
	Relays    []RelayModifiedElement    `json:"relays,omitempty"`
	Error     *StanzaError              `json:"error,omitempty"`
}

// RelayModifiedElement is the bridge's confirmation for one relay: the
// transport it proposes for the bridge-to-bridge DTLS/ICE session (§4.4).
// A freshly created relay must propose setup=actpass; the manager pins the
// concrete role from there.
type RelayModifiedElement struct {
	ID        string    `json:"id"`
	Transport Transport `json:"transport"`
}

// EndpointModifiedElement is the bridge's confirmation for one endpoint:
// the transport it accepted and any feedback (mixed-indicator) sources.
type EndpointModifiedElement struct {
	ID              string    `json:"id"`
	Transport       Transport `json:"transport"`
	FeedbackSources []Source  `json:"feedbackSources,omitempty"`
	SessionID       string    `json:"sessionId"`
}

func (m *ConferenceModify) Marshal() ([]byte, error) { return json.Marshal(m) }

func UnmarshalConferenceModified(b []byte) (*ConferenceModified, error) {
	var m ConferenceModified
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
