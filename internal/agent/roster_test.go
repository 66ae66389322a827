// ABOUTME: Tests for the Roster agent table and hierarchy invariants.
// ABOUTME: Validates assignment consistency, re-parenting, and removal cleanup.

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoster(t *testing.T) *Roster {
	t.Helper()
	return NewRoster(nil)
}

func addAgent(t *testing.T, r *Roster, id string, class Class) {
	t.Helper()
	require.NoError(t, r.Add(&Agent{
		ID:       id,
		Name:     "agent-" + id,
		Class:    class,
		Provider: "claude",
	}))
}

func TestRoster_Add_Duplicate(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "a1", ClassBuilder)

	err := r.Add(&Agent{ID: "a1"})
	assert.ErrorIs(t, err, ErrAgentExists)
}

func TestRoster_Add_DefaultsToIdle(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "a1", ClassBuilder)

	a, ok := r.Get("a1")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, a.Status)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestRoster_Get_ReturnsCopy(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "a1", ClassBuilder)

	a, ok := r.Get("a1")
	require.True(t, ok)
	a.Status = StatusError

	again, ok := r.Get("a1")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, again.Status)
}

func TestRoster_Update_Missing(t *testing.T) {
	r := testRoster(t)

	_, err := r.Update("nope", func(a *Agent) { a.Status = StatusWorking })
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRoster_AssignSubordinates_SetsBothSides(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)
	addAgent(t, r, "s2", ClassReviewer)

	accepted, err := r.AssignSubordinates("boss", []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, accepted)

	boss, _ := r.Get("boss")
	assert.Equal(t, []string{"s1", "s2"}, boss.SubordinateIDs)

	s1, _ := r.Get("s1")
	assert.Equal(t, "boss", s1.BossID)
	s2, _ := r.Get("s2")
	assert.Equal(t, "boss", s2.BossID)
}

func TestRoster_AssignSubordinates_DropsUnknownAndBossClass(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "other-boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)

	accepted, err := r.AssignSubordinates("boss", []string{"s1", "ghost", "other-boss"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, accepted)

	ob, _ := r.Get("other-boss")
	assert.Empty(t, ob.BossID)
}

func TestRoster_AssignSubordinates_Reparents(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss1", ClassBoss)
	addAgent(t, r, "boss2", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)

	_, err := r.AssignSubordinates("boss1", []string{"s1"})
	require.NoError(t, err)

	_, err = r.AssignSubordinates("boss2", []string{"s1"})
	require.NoError(t, err)

	b1, _ := r.Get("boss1")
	assert.Empty(t, b1.SubordinateIDs)
	b2, _ := r.Get("boss2")
	assert.Equal(t, []string{"s1"}, b2.SubordinateIDs)
	s1, _ := r.Get("s1")
	assert.Equal(t, "boss2", s1.BossID)
}

func TestRoster_AssignSubordinates_Idempotent(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)

	_, err := r.AssignSubordinates("boss", []string{"s1"})
	require.NoError(t, err)
	_, err = r.AssignSubordinates("boss", []string{"s1"})
	require.NoError(t, err)

	boss, _ := r.Get("boss")
	assert.Equal(t, []string{"s1"}, boss.SubordinateIDs)
	s1, _ := r.Get("s1")
	assert.Equal(t, "boss", s1.BossID)
}

func TestRoster_AssignSubordinates_ClearsDropped(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)
	addAgent(t, r, "s2", ClassBuilder)

	_, err := r.AssignSubordinates("boss", []string{"s1", "s2"})
	require.NoError(t, err)

	_, err = r.AssignSubordinates("boss", []string{"s2"})
	require.NoError(t, err)

	s1, _ := r.Get("s1")
	assert.Empty(t, s1.BossID)
	s2, _ := r.Get("s2")
	assert.Equal(t, "boss", s2.BossID)
}

func TestRoster_RemoveSubordinate_NoOpWhenUnassigned(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)

	require.NoError(t, r.RemoveSubordinate("boss", "s1"))

	boss, _ := r.Get("boss")
	assert.Empty(t, boss.SubordinateIDs)
}

func TestRoster_RemoveSubordinate_ClearsBossID(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)

	_, err := r.AssignSubordinates("boss", []string{"s1"})
	require.NoError(t, err)
	require.NoError(t, r.RemoveSubordinate("boss", "s1"))

	s1, _ := r.Get("s1")
	assert.Empty(t, s1.BossID)
	boss, _ := r.Get("boss")
	assert.Empty(t, boss.SubordinateIDs)
}

func TestRoster_Remove_DetachesFromBoss(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)

	_, err := r.AssignSubordinates("boss", []string{"s1"})
	require.NoError(t, err)

	removed, err := r.Remove("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", removed.ID)

	boss, _ := r.Get("boss")
	assert.Empty(t, boss.SubordinateIDs)
}

func TestRoster_Remove_ClearsSubordinateBackrefs(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)

	_, err := r.AssignSubordinates("boss", []string{"s1"})
	require.NoError(t, err)

	_, err = r.Remove("boss")
	require.NoError(t, err)

	s1, _ := r.Get("s1")
	assert.Empty(t, s1.BossID)
}

func TestRoster_Subordinates_AssignmentOrder(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "boss", ClassBoss)
	addAgent(t, r, "s1", ClassBuilder)
	addAgent(t, r, "s2", ClassReviewer)

	_, err := r.AssignSubordinates("boss", []string{"s2", "s1"})
	require.NoError(t, err)

	subs, err := r.Subordinates("boss")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "s2", subs[0].ID)
	assert.Equal(t, "s1", subs[1].ID)
}

func TestRoster_WorkingWithoutProcess(t *testing.T) {
	r := testRoster(t)
	addAgent(t, r, "a1", ClassBuilder)
	addAgent(t, r, "a2", ClassBuilder)
	addAgent(t, r, "a3", ClassBuilder)

	for _, id := range []string{"a1", "a2"} {
		_, err := r.Update(id, func(a *Agent) { a.Status = StatusWorking })
		require.NoError(t, err)
	}

	tracked := map[string]bool{"a2": true}
	ids := r.WorkingWithoutProcess(func(id string) bool { return tracked[id] })
	assert.Equal(t, []string{"a1"}, ids)
}
