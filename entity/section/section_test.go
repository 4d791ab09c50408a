package section

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

type fakeTrain struct {
	id int32
}

func (t *fakeTrain) ID() int32 { return t.id }
func (t *fakeTrain) Name() string { return fmt.Sprint(t.id) }
func (t *fakeTrain) Speed() float64 { return 0 }
func (t *fakeTrain) Length() float64 { return 100 }
func (t *fakeTrain) IsStatic() bool { return false }
func (t *fakeTrain) CarClass() entity.CarClass { return entity.ClassPassenger }
func (t *fakeTrain) String() string { return fmt.Sprintf("Train %d", t.id) }

func newTestManager(t *testing.T) *SectionManager {
	m := NewManager(nil)
	m.Init([]input.Section{
		{ID: 1, Length: 500, MaxV: 20},
		{ID: 2, Length: 300, MaxV: 10, LevelCrossings: []float64{100, 400}},
		{ID: 3, Length: 50, MovableTable: true},
	})
	return m
}

func TestManagerGet(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, int32(1), m.Get(1).ID())
	_, err := m.GetOrError(9)
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get(9) })
	// 区段外的道口被忽略
	assert.Equal(t, []float64{100}, m.Get(2).LevelCrossings())
}

func TestOccupancyTakesEffectAfterPrepare(t *testing.T) {
	m := newTestManager(t)
	s := m.Get(1)
	a, b := &fakeTrain{id: 1}, &fakeTrain{id: 2}

	s.Occupy(b, 400, 300)
	s.Occupy(a, -20, 80)
	assert.Empty(t, s.Occupants())
	assert.False(t, s.IsOccupiedByOther(1))

	m.Prepare()
	occ := s.Occupants()
	require.Len(t, occ, 2)
	assert.Equal(t, entity.Occupant{Train: a, From: 0, To: 80}, occ[0])
	assert.Equal(t, entity.Occupant{Train: b, From: 300, To: 400}, occ[1])
	assert.True(t, s.IsOccupiedByOther(1))
	assert.True(t, s.IsOccupiedByOther(3))

	// 未重新登记的列车视为已出清
	s.Occupy(a, 100, 200)
	m.Prepare()
	assert.Len(t, s.Occupants(), 1)
	assert.False(t, s.IsOccupiedByOther(1))
}

func TestReservation(t *testing.T) {
	m := newTestManager(t)
	s := m.Get(1)
	assert.True(t, s.Reserve(1))
	assert.True(t, s.Reserve(1))
	assert.False(t, s.Reserve(2))
	assert.Equal(t, int32(1), s.ReservedBy())
	assert.False(t, s.Release(2))
	assert.True(t, s.Release(1))
	assert.Equal(t, int32(0), s.ReservedBy())
	assert.True(t, s.Reserve(2))
}

func TestMovableTable(t *testing.T) {
	m := newTestManager(t)
	assert.True(t, m.Get(3).TableAligned())
	assert.Error(t, m.SetTableAligned(1, false))
	require.NoError(t, m.SetTableAligned(3, false))
	assert.True(t, m.Get(3).TableAligned())
	m.Prepare()
	assert.False(t, m.Get(3).TableAligned())
	assert.True(t, m.Get(1).TableAligned())
}
