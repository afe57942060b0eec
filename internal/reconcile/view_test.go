package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/threadwatch/pkg/models"
)

func msg(uuid string, typ models.MessageType) models.Message {
	return models.Message{
		UUID:      uuid,
		Type:      typ,
		Content:   "content " + uuid,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SessionID: "sess-1",
		ProjectID: "demo",
	}
}

func pairs(n int) []models.Message {
	var out []models.Message
	for i := 0; i < n; i++ {
		out = append(out, msg(fmt.Sprintf("u%d", i), models.MessageTypeUser))
		out = append(out, msg(fmt.Sprintf("a%d", i), models.MessageTypeAssistant))
	}
	return out
}

func uuids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.UUID
	}
	return out
}

// ViewSuite is a test suite for ThreadView transitions.
type ViewSuite struct {
	suite.Suite
}

func TestViewSuite(t *testing.T) {
	suite.Run(t, new(ViewSuite))
}

// TestInitialLoadAllRead tests that a full load starts with everything
// disclosed and nothing pending.
func (s *ViewSuite) TestInitialLoadAllRead() {
	initial := pairs(3)
	v := NewThreadView(initial)

	s.Equal(uuids(initial), uuids(v.Read()))
	s.Empty(v.Unread())
	s.Equal(0, v.UnreadCount())
}

// TestFirstTwoAlwaysVisible tests that leading messages are disclosed even
// when they arrive via delta rather than initial load.
func (s *ViewSuite) TestFirstTwoAlwaysVisible() {
	v := NewThreadView(nil)

	v.ApplyDelta(pairs(2))

	s.Equal([]string{"u0", "a0"}, uuids(v.Read()))
	s.Equal([]string{"u1", "a1"}, uuids(v.Unread()))
	s.Equal(2, v.UnreadCount())
}

// TestAppendLandsInUnread tests the steady-state append transition.
func (s *ViewSuite) TestAppendLandsInUnread() {
	initial := pairs(3)
	v := NewThreadView(initial)

	extra := msg("a9", models.MessageTypeAssistant)
	v.ApplyDelta(append(initial, extra))

	s.Equal(uuids(initial), uuids(v.Read()))
	s.Equal([]string{"a9"}, uuids(v.Unread()))
	s.Equal(1, v.UnreadCount())
}

// TestApplyDeltaIdempotent tests that re-applying the same fetched set does
// not change the partition.
func (s *ViewSuite) TestApplyDeltaIdempotent() {
	initial := pairs(3)
	v := NewThreadView(initial)

	delta := append(initial, msg("a9", models.MessageTypeAssistant))
	v.ApplyDelta(delta)
	readOnce, unreadOnce := uuids(v.Read()), uuids(v.Unread())

	v.ApplyDelta(delta)

	s.Equal(readOnce, uuids(v.Read()))
	s.Equal(unreadOnce, uuids(v.Unread()))
}

// TestReveal tests that reveal discloses everything pending exactly once.
func (s *ViewSuite) TestReveal() {
	initial := pairs(3)
	v := NewThreadView(initial)
	v.ApplyDelta(append(initial, msg("a9", models.MessageTypeAssistant)))

	v.Reveal()

	s.Equal(append(uuids(initial), "a9"), uuids(v.Read()))
	s.Empty(v.Unread())
	s.Equal(0, v.UnreadCount())

	// Revealing with nothing pending is a no-op.
	v.Reveal()
	s.Len(v.Read(), 7)
}

// TestNoDuplicateAcrossSets tests the partition invariant: every known UUID
// appears in exactly one of read or unread.
func (s *ViewSuite) TestNoDuplicateAcrossSets() {
	initial := pairs(2)
	v := NewThreadView(initial)

	delta := append(initial, msg("u5", models.MessageTypeUser), msg("a5", models.MessageTypeAssistant))
	v.ApplyDelta(delta)
	v.ApplyDelta(delta)

	seen := make(map[string]int)
	for _, id := range append(uuids(v.Read()), uuids(v.Unread())...) {
		seen[id]++
	}
	for id, n := range seen {
		s.Equal(1, n, "uuid %s appears %d times", id, n)
	}
	s.Len(seen, 6)
}

// TestLiveAppendScenario tests the full flow for a thread with three
// user/assistant pairs followed by a late assistant turn.
func (s *ViewSuite) TestLiveAppendScenario() {
	initial := pairs(3)
	v := NewThreadView(initial)
	s.Len(v.Read(), 6)
	s.Equal(0, v.UnreadCount())

	seventh := msg("a99", models.MessageTypeAssistant)
	v.ApplyDelta(append(initial, seventh))
	s.Equal(1, v.UnreadCount())
	s.Equal([]string{"a99"}, uuids(v.Unread()))

	v.Reveal()
	s.Equal(0, v.UnreadCount())
	s.Contains(uuids(v.Read()), "a99")
}

// EngineSuite is a test suite for per-thread view routing.
type EngineSuite struct {
	suite.Suite
	engine *Engine
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine()
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

// TestUnknownThreadTreatedAsInitialLoad tests the fallback path for a thread
// the client has never seen.
func (s *EngineSuite) TestUnknownThreadTreatedAsInitialLoad() {
	initial := pairs(3)
	s.engine.ApplyDelta("t1", initial)

	v := s.engine.View("t1")
	s.Require().NotNil(v)
	s.Len(v.Read(), 6)
	s.Equal(0, s.engine.UnreadCount("t1"))
}

// TestKnownThreadDelta tests that subsequent deltas go through the steady
// state transition.
func (s *EngineSuite) TestKnownThreadDelta() {
	initial := pairs(3)
	s.engine.ApplyDelta("t1", initial)
	s.engine.ApplyDelta("t1", append(initial, msg("a9", models.MessageTypeAssistant)))

	s.Equal(1, s.engine.UnreadCount("t1"))

	s.engine.Reveal("t1")
	s.Equal(0, s.engine.UnreadCount("t1"))
}

// TestThreadsIndependent tests that views do not leak across thread ids.
func (s *EngineSuite) TestThreadsIndependent() {
	s.engine.ApplyDelta("t1", pairs(2))
	s.engine.ApplyDelta("t2", pairs(1))

	t1 := s.engine.View("t1")
	t2 := s.engine.View("t2")
	s.Len(t1.Read(), 4)
	s.Len(t2.Read(), 2)

	s.engine.Drop("t2")
	s.Nil(s.engine.View("t2"))
	s.NotNil(s.engine.View("t1"))
}

// TestRevealUnknownThreadNoop tests that reveal on an unknown id is safe.
func (s *EngineSuite) TestRevealUnknownThreadNoop() {
	s.engine.Reveal("nope")
	s.Equal(0, s.engine.UnreadCount("nope"))
}
