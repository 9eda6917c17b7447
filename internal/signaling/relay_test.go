package signaling

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/storefront-realtime/internal/models"
	"github.com/mossy-p/storefront-realtime/internal/registry"
)

type fakeMember struct {
	id       string
	identity models.Identity

	mu     sync.Mutex
	frames [][]byte
}

func (m *fakeMember) ConnID() string            { return m.id }
func (m *fakeMember) Identity() models.Identity { return m.identity }

func (m *fakeMember) Enqueue(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
	return true
}

func (m *fakeMember) events(t *testing.T) []models.Event {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Event, 0, len(m.frames))
	for _, frame := range m.frames {
		var ev models.Event
		require.NoError(t, json.Unmarshal(frame, &ev))
		out = append(out, ev)
	}
	return out
}

func (m *fakeMember) named(t *testing.T, name string) []models.Event {
	t.Helper()
	var out []models.Event
	for _, ev := range m.events(t) {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func data(t *testing.T, ev models.Event) map[string]any {
	t.Helper()
	m, ok := ev.Data.(map[string]any)
	require.True(t, ok, "event data must be an object")
	return m
}

func setup(t *testing.T, ids ...string) (*Relay, map[string]*fakeMember) {
	t.Helper()
	reg := registry.New(zerolog.Nop())
	relay := NewRelay(reg, zerolog.Nop())
	members := make(map[string]*fakeMember, len(ids))
	for _, id := range ids {
		m := &fakeMember{id: id, identity: models.Identity{ID: "user-" + id, Role: models.RoleClient}}
		reg.Register(m)
		members[id] = m
	}
	return relay, members
}

func TestJoinRequiresRoomAndIdentity(t *testing.T) {
	relay, members := setup(t, "x")

	relay.Join("x", members["x"].identity, "", "X", "video")
	errs := members["x"].named(t, models.EventError)
	require.Len(t, errs, 1)

	relay.Join("x", models.Identity{}, "call-1", "X", "video")
	errs = members["x"].named(t, models.EventError)
	require.Len(t, errs, 2)

	_, in := relay.InRoom("x")
	assert.False(t, in)
	assert.Nil(t, relay.Roster("call-1"))
}

func TestJoinEmitsRosterAndUserJoined(t *testing.T) {
	relay, members := setup(t, "x", "y")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")
	relay.Join("y", members["y"].identity, "call-1", "Y", "video")

	// X's confirmation roster is empty: nobody else was in the room yet.
	joined := members["x"].named(t, models.EventJoinedRoom)
	require.Len(t, joined, 1)
	xData := data(t, joined[0])
	assert.Equal(t, "call-1", xData["roomId"])
	assert.Empty(t, xData["participants"])

	// Y's roster holds X, excluding Y itself.
	joined = members["y"].named(t, models.EventJoinedRoom)
	require.Len(t, joined, 1)
	roster, ok := data(t, joined[0])["participants"].([]any)
	require.True(t, ok)
	require.Len(t, roster, 1)
	first, ok := roster[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x", first["connectionId"])
	assert.Equal(t, true, first["audioEnabled"])
	assert.Equal(t, true, first["videoEnabled"])

	// X hears about Y; Y does not hear about itself.
	userJoined := members["x"].named(t, models.EventUserJoined)
	require.Len(t, userJoined, 1)
	assert.Equal(t, "y", data(t, userJoined[0])["connectionId"])
	assert.Empty(t, members["y"].named(t, models.EventUserJoined))
}

func TestAudioCallDisablesVideoFlag(t *testing.T) {
	relay, members := setup(t, "x")
	relay.Join("x", members["x"].identity, "call-1", "X", "audio")

	roster := relay.Roster("call-1")
	require.Len(t, roster, 1)
	assert.True(t, roster[0].AudioEnabled)
	assert.False(t, roster[0].VideoEnabled)
}

func TestDuplicateJoinYieldsOneParticipant(t *testing.T) {
	relay, members := setup(t, "x")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")
	relay.Join("x", members["x"].identity, "call-1", "X again", "video")

	roster := relay.Roster("call-1")
	require.Len(t, roster, 1)
	assert.Equal(t, "X again", roster[0].DisplayName, "re-join replaces the record")
}

func TestJoiningSecondRoomLeavesFirst(t *testing.T) {
	relay, members := setup(t, "x", "y")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")
	relay.Join("y", members["y"].identity, "call-1", "Y", "video")

	relay.Join("x", members["x"].identity, "call-2", "X", "video")

	assert.Len(t, relay.Roster("call-1"), 1, "no stale membership left behind")
	require.Len(t, relay.Roster("call-2"), 1)
	roomID, in := relay.InRoom("x")
	require.True(t, in)
	assert.Equal(t, "call-2", roomID)

	left := members["y"].named(t, models.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "x", data(t, left[0])["connectionId"])
}

func TestLeaveDestroysEmptyRoom(t *testing.T) {
	relay, members := setup(t, "x", "y")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")
	relay.Join("y", members["y"].identity, "call-1", "Y", "video")

	relay.Leave("x")
	left := members["y"].named(t, models.EventUserLeft)
	require.Len(t, left, 1)
	require.Len(t, relay.Roster("call-1"), 1)

	relay.Leave("y")
	assert.Nil(t, relay.Roster("call-1"), "empty room is destroyed immediately")
}

func TestForwardStampsFromAndPreservesPayload(t *testing.T) {
	relay, members := setup(t, "x", "y")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")
	relay.Join("y", members["y"].identity, "call-1", "Y", "video")

	payload := json.RawMessage(`{"sdp":"v=0 o=- 46117 2","type":"offer"}`)
	relay.Forward("x", models.EventOffer, "y", "call-1", payload)

	offers := members["y"].named(t, models.EventOffer)
	require.Len(t, offers, 1)
	d := data(t, offers[0])
	assert.Equal(t, "x", d["from"], "from is stamped by the relay, never trusted")
	assert.Equal(t, "y", d["to"])

	forwarded, err := json.Marshal(d["payload"])
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(forwarded), "payload is relayed opaquely")

	// Nobody else saw the point-to-point message.
	assert.Empty(t, members["x"].named(t, models.EventOffer))
}

func TestForwardToDisconnectedTargetIsSilent(t *testing.T) {
	relay, members := setup(t, "x")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")

	relay.Forward("x", models.EventIceCandidate, "gone", "call-1", json.RawMessage(`{"candidate":"c"}`))

	assert.Empty(t, members["x"].named(t, models.EventError), "no error is raised to the sender")
	assert.Empty(t, members["x"].named(t, models.EventIceCandidate))
}

func TestToggleVideoBroadcastsToRoom(t *testing.T) {
	relay, members := setup(t, "x", "y")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")
	relay.Join("y", members["y"].identity, "call-1", "Y", "video")

	relay.ToggleVideo("x", false)

	toggled := members["y"].named(t, models.EventVideoToggled)
	require.Len(t, toggled, 1)
	d := data(t, toggled[0])
	assert.Equal(t, false, d["enabled"])
	identity, ok := d["identity"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user-x", identity["id"])

	// The caller's own record reflects the change but gets no echo.
	roster := relay.Roster("call-1")
	for _, p := range roster {
		if p.ConnID == "x" {
			assert.False(t, p.VideoEnabled)
		}
	}
	assert.Empty(t, members["x"].named(t, models.EventVideoToggled))
}

func TestToggleOutsideAnyRoomIsNoOp(t *testing.T) {
	relay, members := setup(t, "x")
	relay.ToggleAudio("x", false)
	relay.ToggleVideo("x", false)
	assert.Empty(t, members["x"].events(t))
}

func TestEndCallAnnouncesThenCleansUp(t *testing.T) {
	relay, members := setup(t, "x", "y")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")
	relay.Join("y", members["y"].identity, "call-1", "Y", "video")

	relay.EndCall("x")

	ended := members["y"].named(t, models.EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "x", data(t, ended[0])["connectionId"])

	// end-call already announced; no duplicate user-left.
	assert.Empty(t, members["y"].named(t, models.EventUserLeft))
	_, in := relay.InRoom("x")
	assert.False(t, in)
	assert.Len(t, relay.Roster("call-1"), 1)
}

func TestEndCallOutsideAnyRoomIsNoOp(t *testing.T) {
	relay, members := setup(t, "x")
	relay.EndCall("x")
	assert.Empty(t, members["x"].events(t))
}

func TestDisconnectRunsLeaveCleanup(t *testing.T) {
	relay, members := setup(t, "x", "y")
	relay.Join("x", members["x"].identity, "call-1", "X", "video")
	relay.Join("y", members["y"].identity, "call-1", "Y", "video")

	relay.Disconnect("x")

	_, in := relay.InRoom("x")
	assert.False(t, in)
	require.Len(t, relay.Roster("call-1"), 1)
	left := members["y"].named(t, models.EventUserLeft)
	require.Len(t, left, 1)

	relay.Disconnect("y")
	assert.Nil(t, relay.Roster("call-1"))
}
