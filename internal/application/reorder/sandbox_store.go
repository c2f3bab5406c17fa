package reorder

import (
	"context"
	"errors"
	"sync"

	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/internal/domain/repository"
)

// sandboxStore lee el estado real una sola vez y aplica las mutaciones solo en memoria.
// Lo usa el modo simulación: el ciclo se comporta igual pero nada se persiste.
type sandboxStore struct {
	base  repository.LedgerStore
	mu    sync.Mutex
	state *entity.LedgerState
}

func newSandboxStore(base repository.LedgerStore) *sandboxStore {
	return &sandboxStore{base: base}
}

func (s *sandboxStore) current(ctx context.Context) (*entity.LedgerState, error) {
	if s.state == nil {
		st, err := s.base.Load(ctx)
		if err != nil {
			return nil, err
		}
		s.state = st.Clone()
		s.state.EnsureInit()
	}
	return s.state, nil
}

func (s *sandboxStore) Load(ctx context.Context) (*entity.LedgerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

func (s *sandboxStore) Update(ctx context.Context, fn func(state *entity.LedgerState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.current(ctx)
	if err != nil {
		return err
	}
	work := st.Clone()
	if err := fn(work); err != nil {
		if errors.Is(err, repository.ErrUnchanged) {
			return nil
		}
		return err
	}
	s.state = work
	return nil
}
