package checkin

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
)

var (
	ada   = gateway.User{ID: "100", Name: "ada"}
	brian = gateway.User{ID: "200", Name: "brian"}
	cleo  = gateway.User{ID: "300", Name: "cleo"}
	dev   = gateway.User{ID: "400", Name: "dev"}
	eve   = gateway.User{ID: "500", Name: "eve"}
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testSession(members ...gateway.User) *Session {
	p := Params{Creator: ada, ChannelID: "chan", GuildID: "guild", CycleDuration: 45 * time.Minute}
	return newSession("s1", p, append([]gateway.User(nil), members...), 3, epoch)
}

func ids(users []gateway.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

// requireConsistent checks the membership invariants against the live
// fields rather than a snapshot.
func requireConsistent(t *testing.T, s *Session) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.present {
		require.GreaterOrEqual(t, indexOf(s.members, p.ID), 0, "present member %s not enrolled", p.ID)
	}
	require.Len(t, s.absences, len(s.members))
	for _, m := range s.members {
		_, ok := s.absences[m.ID]
		require.True(t, ok, "member %s has no absence entry", m.ID)
		require.Less(t, indexOf(s.exited, m.ID), 0, "member %s is also exited", m.ID)
		require.Less(t, s.absences[m.ID], s.maxAbsences)
	}
	seen := make(map[string]bool)
	for _, e := range s.exited {
		require.False(t, seen[e.ID], "%s exited twice", e.ID)
		seen[e.ID] = true
	}
}

func TestSessionStartsWithEveryonePresent(t *testing.T) {
	s := testSession(brian, cleo, dev, ada)
	snap := s.Snapshot()

	assert.Equal(t, []string{"200", "300", "400", "100"}, ids(snap.Members))
	assert.Equal(t, ids(snap.Members), ids(snap.Present))
	for _, m := range snap.Members {
		assert.Equal(t, 0, snap.Absences[m.ID])
	}
	assert.Equal(t, int64(2700), snap.CycleSeconds)
	requireConsistent(t, s)
}

func TestSessionMarkPresent(t *testing.T) {
	s := testSession(ada, brian)
	_, err := s.AdvanceCycle()
	require.NoError(t, err)

	require.NoError(t, s.MarkPresent(brian))
	snap := s.Snapshot()
	assert.Equal(t, []string{"200"}, ids(snap.Present))
	assert.Equal(t, 0, snap.Absences["200"])

	assert.ErrorIs(t, s.MarkPresent(eve), ErrNotMember)
	requireConsistent(t, s)
}

func TestSessionMarkPresentTwiceIsNoop(t *testing.T) {
	s := testSession(ada, brian)
	_, err := s.AdvanceCycle()
	require.NoError(t, err)
	require.NoError(t, s.MarkPresent(brian))
	before := s.Snapshot()

	assert.ErrorIs(t, s.MarkPresent(brian), ErrAlreadyPresent)
	assert.Equal(t, before, s.Snapshot())
}

func TestSessionJoinAndLeave(t *testing.T) {
	s := testSession(ada)

	require.NoError(t, s.Join(brian))
	assert.ErrorIs(t, s.Join(brian), ErrAlreadyMember)
	snap := s.Snapshot()
	assert.Equal(t, []string{"100", "200"}, ids(snap.Members))
	assert.Equal(t, []string{"100", "200"}, ids(snap.Present))

	emptied, err := s.Leave(brian)
	require.NoError(t, err)
	assert.False(t, emptied)
	snap = s.Snapshot()
	assert.Equal(t, []string{"100"}, ids(snap.Members))
	assert.Equal(t, []string{"200"}, ids(snap.Exited))
	_, tracked := snap.Absences["200"]
	assert.False(t, tracked)

	_, err = s.Leave(brian)
	assert.ErrorIs(t, err, ErrNotInSession)
	requireConsistent(t, s)
}

func TestSessionEvictsAfterThreeAbsences(t *testing.T) {
	s := testSession(ada, brian, cleo, dev)

	for cycle := 1; cycle <= 3; cycle++ {
		for _, u := range []gateway.User{ada, brian, cleo} {
			if cycle > 1 {
				require.NoError(t, s.MarkPresent(u))
			}
		}
		res, err := s.AdvanceCycle()
		require.NoError(t, err)
		assert.Equal(t, cycle, res.Cycle)
		requireConsistent(t, s)

		if cycle < 3 {
			// everyone was present in cycle 1
			assert.Empty(t, res.Evicted)
		}
	}

	// The first cycle counts as attended for everyone, so dev needs one more.
	snap := s.Snapshot()
	require.Contains(t, ids(snap.Members), "400")
	assert.Equal(t, 2, snap.Absences["400"])

	for _, u := range []gateway.User{ada, brian, cleo} {
		require.NoError(t, s.MarkPresent(u))
	}
	res, err := s.AdvanceCycle()
	require.NoError(t, err)
	assert.Equal(t, []string{"400"}, ids(res.Evicted))
	assert.False(t, res.Empty)

	snap = s.Snapshot()
	assert.Equal(t, []string{"100", "200", "300"}, ids(snap.Members))
	assert.Equal(t, []string{"400"}, ids(snap.Exited))
	_, tracked := snap.Absences["400"]
	assert.False(t, tracked)
	requireConsistent(t, s)
}

func TestSessionEvictsAbsentMemberOnThirdCycle(t *testing.T) {
	s := testSession(ada, brian, cleo, dev)
	// Start every cycle with nobody present except the three attendees.
	for i := 0; i < 3; i++ {
		s.mu.Lock()
		s.present = []gateway.User{ada, brian, cleo}
		s.mu.Unlock()
		res, err := s.AdvanceCycle()
		require.NoError(t, err)
		if i < 2 {
			assert.Empty(t, res.Evicted)
		} else {
			assert.Equal(t, []string{"400"}, ids(res.Evicted))
		}
	}
	snap := s.Snapshot()
	assert.Len(t, snap.Members, 3)
	assert.Equal(t, []string{"400"}, ids(snap.Exited))
}

func TestSessionJoinResurrectsExited(t *testing.T) {
	s := testSession(ada, brian)
	for i := 0; i < 3; i++ {
		s.mu.Lock()
		s.present = []gateway.User{ada}
		s.mu.Unlock()
		_, err := s.AdvanceCycle()
		require.NoError(t, err)
	}
	require.Equal(t, []string{"200"}, ids(s.Snapshot().Exited))

	require.NoError(t, s.Join(brian))
	snap := s.Snapshot()
	assert.Empty(t, snap.Exited)
	assert.Contains(t, ids(snap.Members), "200")
	assert.Contains(t, ids(snap.Present), "200")
	assert.Equal(t, 0, snap.Absences["200"])
	requireConsistent(t, s)
}

func TestSessionRejoinAfterLeaveResetsHistory(t *testing.T) {
	s := testSession(ada, brian)
	for i := 0; i < 2; i++ {
		s.mu.Lock()
		s.present = []gateway.User{ada}
		s.mu.Unlock()
		_, err := s.AdvanceCycle()
		require.NoError(t, err)
	}
	require.Equal(t, 2, s.Snapshot().Absences["200"])

	_, err := s.Leave(brian)
	require.NoError(t, err)
	require.NoError(t, s.Join(brian))
	assert.Equal(t, 0, s.Snapshot().Absences["200"])
}

func TestSessionLeaveLastMemberEnds(t *testing.T) {
	s := testSession(ada)

	emptied, err := s.Leave(ada)
	require.NoError(t, err)
	assert.True(t, emptied)
	assert.True(t, s.Ended())

	assert.ErrorIs(t, s.Join(brian), ErrSessionEnded)
	_, err = s.AdvanceCycle()
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestSessionAdvanceToEmptyEnds(t *testing.T) {
	s := testSession(ada)
	var res CycleResult
	var err error
	for i := 0; i < 3; i++ {
		s.mu.Lock()
		s.present = nil
		s.mu.Unlock()
		res, err = s.AdvanceCycle()
		require.NoError(t, err)
	}
	assert.True(t, res.Empty)
	assert.True(t, s.Ended())
}

func TestSessionEndIsCreatorOnly(t *testing.T) {
	s := testSession(ada, brian)
	before := s.Snapshot()

	assert.ErrorIs(t, s.End(brian.ID), ErrNotCreator)
	assert.False(t, s.Ended())
	assert.Equal(t, before, s.Snapshot())

	require.NoError(t, s.End(ada.ID))
	assert.True(t, s.Ended())
	assert.ErrorIs(t, s.End(ada.ID), ErrSessionEnded)
}

func TestSessionDisposeClearsState(t *testing.T) {
	s := testSession(ada, brian)
	final := s.dispose()
	assert.Len(t, final.Members, 2)

	snap := s.Snapshot()
	assert.Empty(t, snap.Members)
	assert.Empty(t, snap.Present)
	assert.Empty(t, snap.Absences)
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after dispose")
	}
	// second dispose must not panic on the closed channel
	s.dispose()
}

func TestSessionSetPromptRefAfterEnd(t *testing.T) {
	s := testSession(ada)
	ref := gateway.MessageRef{ChannelID: "chan", MessageID: "m1"}
	require.True(t, s.SetPromptRef(ref))
	assert.Equal(t, ref, s.TakePromptRef())
	assert.True(t, s.PromptRef().IsZero())

	require.NoError(t, s.End(ada.ID))
	assert.False(t, s.SetPromptRef(ref))
}

func TestSessionInvariantsHoldUnderRandomOperations(t *testing.T) {
	users := []gateway.User{ada, brian, cleo, dev, eve}
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		s := testSession(ada, brian, cleo)
		for step := 0; step < 200 && !s.Ended(); step++ {
			u := users[rng.Intn(len(users))]
			switch rng.Intn(4) {
			case 0:
				_ = s.MarkPresent(u)
			case 1:
				_ = s.Join(u)
			case 2:
				_, _ = s.Leave(u)
			case 3:
				_, _ = s.AdvanceCycle()
			}
			requireConsistent(t, s)
		}
	}
}
