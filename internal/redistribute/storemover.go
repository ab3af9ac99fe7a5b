package redistribute

import (
	"context"
	"sort"

	"github.com/jitsi/jicofo/internal/conference"
)

// ConferenceLookup is the subset of the conference store the mover needs:
// find a room's handle, and enumerate every room currently live.
type ConferenceLookup interface {
	Get(roomID string) (*conference.Orchestrator, bool)
	All() []*conference.Orchestrator
}

// StoreMover implements ConferenceMover over every conference the process
// is currently hosting, fanning the operator's bridge-scoped move APIs out
// across rooms (§4.3, §6 /move-endpoint, /move-endpoints, /move-fraction).
type StoreMover struct {
	store ConferenceLookup
}

// NewStoreMover builds a StoreMover over store.
func NewStoreMover(store ConferenceLookup) *StoreMover {
	return &StoreMover{store: store}
}

// ConferencesOnBridge reports every conference's footprint on bridgeJID.
func (m *StoreMover) ConferencesOnBridge(bridgeJID string) []ConferenceUsage {
	var usages []ConferenceUsage
	for _, o := range m.store.All() {
		ids := o.EndpointsOnBridge(bridgeJID)
		if len(ids) > 0 {
			usages = append(usages, ConferenceUsage{ConferenceID: o.RoomID, EndpointCount: len(ids)})
		}
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].ConferenceID < usages[j].ConferenceID })
	return usages
}

// MoveEndpoint re-invites a single named endpoint of conferenceID.
func (m *StoreMover) MoveEndpoint(ctx context.Context, conferenceID, endpointID, fromBridge string) error {
	o, ok := m.store.Get(conferenceID)
	if !ok {
		return conference.ErrParticipantNotFound
	}
	return o.MoveParticipant(ctx, endpointID, fromBridge)
}

// MoveEndpoints re-invites up to n endpoints of conferenceID off bridgeJID,
// in deterministic (sorted endpoint id) order, returning how many actually
// moved.
func (m *StoreMover) MoveEndpoints(ctx context.Context, conferenceID, bridgeJID string, n int) (int, error) {
	o, ok := m.store.Get(conferenceID)
	if !ok {
		return 0, conference.ErrParticipantNotFound
	}

	ids := o.EndpointsOnBridge(bridgeJID)
	sort.Strings(ids)

	moved := 0
	for _, id := range ids {
		if moved >= n {
			break
		}
		if err := o.MoveParticipant(ctx, id, bridgeJID); err != nil {
			continue
		}
		moved++
	}
	return moved, nil
}
