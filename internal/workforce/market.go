// Package workforce implements the labor market: a rolling pool of
// procedurally generated candidates the facility can hire from.
package workforce

import (
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/talgya/cultivar/internal/entropy"
	"github.com/talgya/cultivar/internal/facility"
)

// Roles the facility hires for.
const (
	RoleGrower     = "grower"
	RoleTechnician = "technician"
	RoleTrimmer    = "trimmer"
	RoleManager    = "manager"
)

// Candidate is one hireable worker on the market.
type Candidate struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Role          string  `json:"role"`
	Skill         float64 `json:"skill"` // 0..1
	SalaryPerTick float64 `json:"salary_per_tick"`
	ListedTick    int64   `json:"listed_tick"`
}

// Market holds the current candidate pool. Refresh replaces the pool on a
// cadence the host chooses (typically weekly); hiring removes a candidate.
// The pool is read by the HTTP surface while the tick loop refreshes it, so
// access goes through a mutex and Candidates hands out snapshots.
type Market struct {
	rand *entropy.Source

	mu   sync.Mutex
	pool []Candidate

	// PoolSize is how many candidates a refresh lists.
	PoolSize int
}

// NewMarket creates a labor market over a random source.
func NewMarket(rand *entropy.Source) *Market {
	return &Market{
		rand:     rand,
		PoolSize: 6,
	}
}

// Candidates returns a snapshot of the current pool, safe to hold across a
// Refresh.
func (m *Market) Candidates() []Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Candidate, len(m.pool))
	copy(out, m.pool)
	return out
}

// Refresh replaces the pool with freshly generated candidates. The new pool
// gets its own backing array so snapshots handed out earlier stay intact.
func (m *Market) Refresh(tick int64) {
	fresh := make([]Candidate, 0, m.PoolSize)
	for i := 0; i < m.PoolSize; i++ {
		fresh = append(fresh, m.generate(tick))
	}
	m.mu.Lock()
	m.pool = fresh
	m.mu.Unlock()
}

// Hire moves a candidate off the market onto the facility roster.
func (m *Market) Hire(state *facility.State, candidateID string, tick int64) (*facility.Employee, error) {
	m.mu.Lock()
	idx := -1
	for i, c := range m.pool {
		if c.ID == candidateID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("candidate %q not on the market", candidateID)
	}
	c := m.pool[idx]
	m.pool = append(m.pool[:idx], m.pool[idx+1:]...)
	m.mu.Unlock()

	emp := &facility.Employee{
		ID:            c.ID,
		Name:          c.Name,
		Role:          c.Role,
		Skill:         c.Skill,
		SalaryPerTick: c.SalaryPerTick,
		HiredTick:     tick,
	}
	state.Personnel = append(state.Personnel, emp)
	return emp, nil
}

// Dismiss removes an employee from the roster.
func Dismiss(state *facility.State, employeeID string) error {
	for i, emp := range state.Personnel {
		if emp.ID == employeeID {
			state.Personnel = append(state.Personnel[:i], state.Personnel[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("employee %q not on the roster", employeeID)
}

func (m *Market) generate(tick int64) Candidate {
	role := m.randomRole()
	skill := clamp(m.rand.Normal(0.45, 0.18), 0.05, 0.95)

	// Salary scales with role base and skill, with a little market noise.
	salary := roleBaseSalary(role) * (0.7 + skill*0.6) * m.rand.Range(0.9, 1.1)

	return Candidate{
		ID:            ulid.Make().String(),
		Name:          m.generateName(),
		Role:          role,
		Skill:         skill,
		SalaryPerTick: salary,
		ListedTick:    tick,
	}
}

func (m *Market) randomRole() string {
	r := m.rand.Float()
	switch {
	case r < 0.40:
		return RoleGrower
	case r < 0.65:
		return RoleTrimmer
	case r < 0.88:
		return RoleTechnician
	default:
		return RoleManager
	}
}

func roleBaseSalary(role string) float64 {
	switch role {
	case RoleGrower:
		return 22
	case RoleTrimmer:
		return 16
	case RoleTechnician:
		return 28
	case RoleManager:
		return 40
	default:
		return 18
	}
}

func (m *Market) generateName() string {
	first := firstNames[m.rand.IntN(len(firstNames))]
	last := lastNames[m.rand.IntN(len(lastNames))]
	return first + " " + last
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Name pools for procedural generation.
var firstNames = []string{
	"Ana", "Bram", "Cora", "Dario", "Edie", "Felix", "Gwen",
	"Hugo", "Iris", "Jonas", "Kira", "Leo", "Mara", "Nils",
	"Olive", "Petra", "Quinn", "Rowan", "Sage", "Theo", "Uma",
	"Vera", "Wren", "Yara", "Zane", "Astrid", "Beck", "Calla",
}

var lastNames = []string{
	"Voss", "Ashford", "Greenvale", "Millward", "Copperfield",
	"Silverdale", "Deepwell", "Brightwater", "Riverstone", "Harper",
	"Mercer", "Ward", "Cross", "Thatcher", "Caldwell", "Frost",
	"Holloway", "Farrow", "Wyatt", "Briar", "Hearthstone", "Redforge",
}
