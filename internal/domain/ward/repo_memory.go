package ward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nir/leitos/pkg/pagination"
)

// memState is the full ward held by MemoryStore. Order slices keep
// insertion order so listings and snapshots are stable.
type memState struct {
	Patients   map[string]*Patient
	Beds       map[string]*Bed
	Admissions map[string]*Admission

	PatientOrder   []string
	BedOrder       []string
	AdmissionOrder []string
}

func newMemState() *memState {
	return &memState{
		Patients:   map[string]*Patient{},
		Beds:       map[string]*Bed{},
		Admissions: map[string]*Admission{},
	}
}

func (s *memState) clone() *memState {
	cp := &memState{
		Patients:       make(map[string]*Patient, len(s.Patients)),
		Beds:           make(map[string]*Bed, len(s.Beds)),
		Admissions:     make(map[string]*Admission, len(s.Admissions)),
		PatientOrder:   append([]string(nil), s.PatientOrder...),
		BedOrder:       append([]string(nil), s.BedOrder...),
		AdmissionOrder: append([]string(nil), s.AdmissionOrder...),
	}
	for id, p := range s.Patients {
		cp.Patients[id] = p.clone()
	}
	for id, b := range s.Beds {
		cp.Beds[id] = b.clone()
	}
	for id, a := range s.Admissions {
		cp.Admissions[id] = a.clone()
	}
	return cp
}

func (s *memState) patientList() []*Patient {
	out := make([]*Patient, 0, len(s.PatientOrder))
	for _, id := range s.PatientOrder {
		out = append(out, s.Patients[id].clone())
	}
	return out
}

func (s *memState) bedList() []*Bed {
	out := make([]*Bed, 0, len(s.BedOrder))
	for _, id := range s.BedOrder {
		out = append(out, s.Beds[id].clone())
	}
	return out
}

func (s *memState) admissionList() []*Admission {
	out := make([]*Admission, 0, len(s.AdmissionOrder))
	for _, id := range s.AdmissionOrder {
		out = append(out, s.Admissions[id].clone())
	}
	return out
}

type (
	memTxKey   struct{}
	memViewKey struct{}
)

var errReadOnly = errors.New("ward: write inside a read-only transaction")

// MemoryStore keeps the ward in process. Readers share an RWMutex; WithTx
// takes the write lock, works on a cloned state and swaps it in only when fn
// succeeds, so a failed mutation leaves no trace.
type MemoryStore struct {
	mu       sync.RWMutex
	state    *memState
	now      func() time.Time
	onCommit func(*memState) error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

var _ Repository = (*MemoryStore)(nil)

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(ctx)
	}
	if _, ok := ctx.Value(memViewKey{}).(*memState); ok {
		return errReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(context.WithValue(ctx, memTxKey{}, working)); err != nil {
		return err
	}
	if s.onCommit != nil {
		if err := s.onCommit(working); err != nil {
			return fmt.Errorf("persist ward state: %w", err)
		}
	}
	s.state = working
	return nil
}

// ReadTx holds the read lock for the duration of fn, so writers wait.
func (s *MemoryStore) ReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(ctx)
	}
	if _, ok := ctx.Value(memViewKey{}).(*memState); ok {
		return fn(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(context.WithValue(ctx, memViewKey{}, s.state))
}

// view runs fn against the transaction state in ctx, or under the read lock.
func (s *MemoryStore) view(ctx context.Context, fn func(st *memState) error) error {
	if st, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(st)
	}
	if st, ok := ctx.Value(memViewKey{}).(*memState); ok {
		return fn(st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// update runs fn inside the caller's transaction or a fresh one.
func (s *MemoryStore) update(ctx context.Context, fn func(st *memState) error) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(memTxKey{}).(*memState))
	})
}

func (s *MemoryStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := s.view(ctx, func(st *memState) error {
		snap = NewSnapshot(st.patientList(), st.bedList(), st.admissionList())
		return nil
	})
	return snap, err
}

func (s *MemoryStore) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var out *Patient
	err := s.view(ctx, func(st *memState) error {
		p, ok := st.Patients[id]
		if !ok {
			return fmt.Errorf("patient %s: %w", id, ErrNotFound)
		}
		out = p.clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) GetBed(ctx context.Context, id string) (*Bed, error) {
	var out *Bed
	err := s.view(ctx, func(st *memState) error {
		b, ok := st.Beds[id]
		if !ok {
			return fmt.Errorf("bed %s: %w", id, ErrNotFound)
		}
		out = b.clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) GetAdmission(ctx context.Context, id string) (*Admission, error) {
	var out *Admission
	err := s.view(ctx, func(st *memState) error {
		a, ok := st.Admissions[id]
		if !ok {
			return fmt.Errorf("admission %s: %w", id, ErrNotFound)
		}
		out = a.clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) ActiveAdmissionByPatient(ctx context.Context, patientID string) (*Admission, error) {
	var out *Admission
	err := s.view(ctx, func(st *memState) error {
		var mine []*Admission
		for _, id := range st.AdmissionOrder {
			if a := st.Admissions[id]; a.PatientID == patientID {
				mine = append(mine, a)
			}
		}
		a := latestActive(mine)
		if a == nil {
			return fmt.Errorf("active admission for patient %s: %w", patientID, ErrNotFound)
		}
		out = a.clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) SavePatient(ctx context.Context, p *Patient) error {
	return s.update(ctx, func(st *memState) error {
		if _, ok := st.Patients[p.ID]; !ok {
			return fmt.Errorf("patient %s: %w", p.ID, ErrNotFound)
		}
		p.UpdatedAt = s.now()
		st.Patients[p.ID] = p.clone()
		return nil
	})
}

func (s *MemoryStore) SaveBed(ctx context.Context, b *Bed) error {
	return s.update(ctx, func(st *memState) error {
		if _, ok := st.Beds[b.ID]; !ok {
			return fmt.Errorf("bed %s: %w", b.ID, ErrNotFound)
		}
		if err := checkBedHolder(st, b); err != nil {
			return err
		}
		b.UpdatedAt = s.now()
		st.Beds[b.ID] = b.clone()
		return nil
	})
}

func (s *MemoryStore) SaveAdmission(ctx context.Context, a *Admission) error {
	return s.update(ctx, func(st *memState) error {
		cur, ok := st.Admissions[a.ID]
		if !ok {
			return fmt.Errorf("admission %s: %w", a.ID, ErrNotFound)
		}
		if !cur.Status.Active() && a.Status.Active() {
			return fmt.Errorf("admission %s: reopening a %s admission: %w", a.ID, cur.Status, ErrInvariant)
		}
		st.Admissions[a.ID] = a.clone()
		return nil
	})
}

func (s *MemoryStore) CreatePatient(ctx context.Context, p *Patient) error {
	return s.update(ctx, func(st *memState) error {
		if p.ID == "" {
			p.ID = newID()
		}
		if _, ok := st.Patients[p.ID]; ok {
			return fmt.Errorf("patient %s already exists: %w", p.ID, ErrInvalidInput)
		}
		now := s.now()
		p.CreatedAt, p.UpdatedAt = now, now
		st.Patients[p.ID] = p.clone()
		st.PatientOrder = append(st.PatientOrder, p.ID)
		return nil
	})
}

func (s *MemoryStore) CreateBed(ctx context.Context, b *Bed) error {
	return s.update(ctx, func(st *memState) error {
		if b.ID == "" {
			b.ID = newID()
		}
		if _, ok := st.Beds[b.ID]; ok {
			return fmt.Errorf("bed %s already exists: %w", b.ID, ErrInvalidInput)
		}
		if err := provisionBed(b); err != nil {
			return err
		}
		now := s.now()
		b.CreatedAt, b.UpdatedAt = now, now
		st.Beds[b.ID] = b.clone()
		st.BedOrder = append(st.BedOrder, b.ID)
		return nil
	})
}

func (s *MemoryStore) CreateAdmission(ctx context.Context, a *Admission) error {
	return s.update(ctx, func(st *memState) error {
		if a.ID == "" {
			a.ID = newID()
		}
		if _, ok := st.Admissions[a.ID]; ok {
			return fmt.Errorf("admission %s already exists: %w", a.ID, ErrInvalidInput)
		}
		if _, ok := st.Patients[a.PatientID]; !ok {
			return fmt.Errorf("patient %s: %w", a.PatientID, ErrNotFound)
		}
		if _, ok := st.Beds[a.BedID]; !ok {
			return fmt.Errorf("bed %s: %w", a.BedID, ErrNotFound)
		}
		if a.Status == "" {
			a.Status = StatusInternado
		}
		if a.Status.Active() {
			for _, other := range st.Admissions {
				if other.BedID == a.BedID && other.Status.Active() {
					return fmt.Errorf("bed %s already holds admission %s: %w", a.BedID, other.ID, ErrInvariant)
				}
			}
		}
		if a.SystemEntryDate.IsZero() {
			a.SystemEntryDate = s.now()
		}
		st.Admissions[a.ID] = a.clone()
		st.AdmissionOrder = append(st.AdmissionOrder, a.ID)
		return nil
	})
}

func (s *MemoryStore) ListBeds(ctx context.Context, f BedFilter, limit, offset int) ([]*Bed, int, error) {
	var out []*Bed
	var total int
	err := s.view(ctx, func(st *memState) error {
		var matched []*Bed
		for _, id := range st.BedOrder {
			if b := st.Beds[id]; f.Match(b) {
				matched = append(matched, b.clone())
			}
		}
		total = len(matched)
		out = pagination.Slice(matched, limit, offset)
		return nil
	})
	return out, total, err
}

func (s *MemoryStore) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	var total int
	err := s.view(ctx, func(st *memState) error {
		all := st.patientList()
		total = len(all)
		out = pagination.Slice(all, limit, offset)
		return nil
	})
	return out, total, err
}

// checkBedHolder enforces that an Ocupado bed references exactly one active
// admission placed in it, and that a bed with a reference is Ocupado.
func checkBedHolder(st *memState, b *Bed) error {
	hasRef := b.CurrentAdmissionID != nil && *b.CurrentAdmissionID != ""
	if b.Occupied() != hasRef {
		return fmt.Errorf("bed %s: status %s with admission reference %t: %w", b.ID, b.Status, hasRef, ErrInvariant)
	}
	if !hasRef {
		return nil
	}
	a, ok := st.Admissions[*b.CurrentAdmissionID]
	if !ok {
		return fmt.Errorf("bed %s references admission %s: %w", b.ID, *b.CurrentAdmissionID, ErrNotFound)
	}
	if !a.Status.Active() || a.BedID != b.ID {
		return fmt.Errorf("bed %s references admission %s which is not active in it: %w", b.ID, a.ID, ErrInvariant)
	}
	return nil
}
