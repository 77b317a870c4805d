package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"royal-decrees/internal/model"
	"royal-decrees/internal/repository"
	"royal-decrees/internal/state"
)

// Notifier delivers a message to a monarch on whatever platform they use.
type Notifier interface {
	Notify(ctx context.Context, monarch model.Monarch, text string) error
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, model.Monarch, string) error { return nil }

// SnapshotWriter persists a monarch's decrees outside the database.
type SnapshotWriter interface {
	Save(monarchID uint, decrees []model.Decree) error
}

// DecreeInput represents data required to issue a decree.
type DecreeInput struct {
	Title          string
	Description    string
	Type           model.DecreeType
	TargetQuantity int
	Unit           model.Unit
	DueDate        *time.Time
	Recurrence     *model.Recurrence
}

var ErrTitleRequired = errors.New("title is required")

// DecreeService applies decree actions to the cached state of each monarch and
// runs the resulting commands against storage and the notifier.
type DecreeService struct {
	decrees   *repository.DecreeRepository
	monarchs  *repository.MonarchRepository
	snapshots SnapshotWriter
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	states map[uint]state.State
	locks  map[uint]*sync.Mutex
}

func NewDecreeService(decrees *repository.DecreeRepository, monarchs *repository.MonarchRepository, snapshots SnapshotWriter, notifier Notifier, log *zap.Logger) *DecreeService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DecreeService{
		decrees:   decrees,
		monarchs:  monarchs,
		snapshots: snapshots,
		notifier:  notifier,
		log:       log.Named("decrees"),
		now:       time.Now,
		states:    make(map[uint]state.State),
		locks:     make(map[uint]*sync.Mutex),
	}
}

// SetNotifier swaps the notifier once the transport is up.
func (s *DecreeService) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Issue validates input and creates a new pending decree.
func (s *DecreeService) Issue(ctx context.Context, monarch *model.Monarch, input DecreeInput) (*model.Decree, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if input.TargetQuantity < 0 {
		return nil, fmt.Errorf("target quantity must not be negative")
	}

	decree := model.Decree{
		ID:             uuid.NewString(),
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Type:           input.Type,
		TargetQuantity: input.TargetQuantity,
		Unit:           input.Unit,
		DueDate:        input.DueDate,
		CreatedAt:      s.now(),
	}
	if decree.Type == "" {
		decree.Type = model.TypeGeneral
	}
	if decree.Unit == "" {
		decree.Unit = model.UnitSessions
	}
	if input.Recurrence != nil {
		rule := input.Recurrence.Normalize()
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		decree.Recurrence = &rule
	}

	next, err := s.dispatch(ctx, monarch, state.Issued{Decree: decree})
	if err != nil {
		return nil, err
	}
	issued, _ := next.Find(decree.ID)
	return &issued, nil
}

// List returns the monarch's decrees from the cached state.
func (s *DecreeService) List(ctx context.Context, monarch *model.Monarch) ([]model.Decree, error) {
	st, err := s.load(ctx, monarch.ID)
	if err != nil {
		return nil, err
	}
	return st.Decrees, nil
}

func (s *DecreeService) Get(ctx context.Context, monarch *model.Monarch, id string) (*model.Decree, error) {
	st, err := s.load(ctx, monarch.ID)
	if err != nil {
		return nil, err
	}
	d, ok := st.Find(id)
	if !ok {
		return nil, state.ErrDecreeNotFound
	}
	return &d, nil
}

// RecordProgress adds units of work. The decree completes once it reaches its target.
func (s *DecreeService) RecordProgress(ctx context.Context, monarch *model.Monarch, id string, amount int) (*model.Decree, error) {
	return s.apply(ctx, monarch, id, state.ProgressRecorded{ID: id, Amount: amount, At: s.now()})
}

func (s *DecreeService) Complete(ctx context.Context, monarch *model.Monarch, id string) (*model.Decree, error) {
	return s.apply(ctx, monarch, id, state.Completed{ID: id, At: s.now()})
}

func (s *DecreeService) Abandon(ctx context.Context, monarch *model.Monarch, id string) (*model.Decree, error) {
	return s.apply(ctx, monarch, id, state.Abandoned{ID: id})
}

// Revoke deletes a decree and returns what it was.
func (s *DecreeService) Revoke(ctx context.Context, monarch *model.Monarch, id string) (*model.Decree, error) {
	before, err := s.Get(ctx, monarch, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.dispatch(ctx, monarch, state.Revoked{ID: id}); err != nil {
		return nil, err
	}
	return before, nil
}

// Refresh drops the cached state so the next call reads from the database.
func (s *DecreeService) Refresh(monarchID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, monarchID)
}

// ResolveID expands a unique ID prefix, as shown in chat, to the full decree ID.
func (s *DecreeService) ResolveID(ctx context.Context, monarch *model.Monarch, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", state.ErrDecreeNotFound
	}
	decrees, err := s.List(ctx, monarch)
	if err != nil {
		return "", err
	}
	var match string
	for _, d := range decrees {
		if strings.HasPrefix(d.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous decree id %q", prefix)
			}
			match = d.ID
		}
	}
	if match == "" {
		return "", state.ErrDecreeNotFound
	}
	return match, nil
}

func (s *DecreeService) apply(ctx context.Context, monarch *model.Monarch, id string, action state.Action) (*model.Decree, error) {
	next, err := s.dispatch(ctx, monarch, action)
	if err != nil {
		return nil, err
	}
	d, ok := next.Find(id)
	if !ok {
		return nil, state.ErrDecreeNotFound
	}
	return &d, nil
}

func (s *DecreeService) load(ctx context.Context, monarchID uint) (state.State, error) {
	s.mu.Lock()
	st, ok := s.states[monarchID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	lock := s.monarchLock(monarchID)
	lock.Lock()
	defer lock.Unlock()
	return s.loadLocked(ctx, monarchID)
}

// loadLocked returns the cached state, reading it from the database on a miss.
// The caller holds the monarch's lock.
func (s *DecreeService) loadLocked(ctx context.Context, monarchID uint) (state.State, error) {
	s.mu.Lock()
	st, ok := s.states[monarchID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	rows, err := s.decrees.ListByUser(ctx, monarchID)
	if err != nil {
		return state.State{}, err
	}
	next, cmds, err := state.Reduce(state.State{MonarchID: monarchID}, state.Loaded{Decrees: rows})
	if err != nil {
		return state.State{}, err
	}

	s.mu.Lock()
	s.states[monarchID] = next
	s.mu.Unlock()

	s.log.Debug("state loaded", zap.Uint("monarch", monarchID), zap.Int("decrees", len(rows)))
	if err := s.run(ctx, model.Monarch{ID: monarchID}, cmds); err != nil {
		s.log.Warn("run load commands", zap.Uint("monarch", monarchID), zap.Error(err))
	}
	return next, nil
}

// dispatch reduces one action against the cached state and runs its commands.
// Dispatches for one monarch run one at a time, so storage and snapshots see
// commands in the order the states were produced.
func (s *DecreeService) dispatch(ctx context.Context, monarch *model.Monarch, action state.Action) (state.State, error) {
	lock := s.monarchLock(monarch.ID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.loadLocked(ctx, monarch.ID)
	if err != nil {
		return state.State{}, err
	}
	next, cmds, err := state.Reduce(current, action)
	if err != nil {
		return state.State{}, err
	}

	s.mu.Lock()
	s.states[monarch.ID] = next
	s.mu.Unlock()

	if err := s.run(ctx, *monarch, cmds); err != nil {
		s.Refresh(monarch.ID)
		return state.State{}, err
	}
	return next, nil
}

func (s *DecreeService) monarchLock(monarchID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[monarchID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[monarchID] = lock
	}
	return lock
}

func (s *DecreeService) run(ctx context.Context, monarch model.Monarch, cmds []state.Command) error {
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case state.SaveDecree:
			d := c.Decree
			if c.New {
				if err := s.decrees.Create(ctx, &d); err != nil {
					return err
				}
				s.log.Info("decree issued", zap.String("id", d.ID), zap.Uint("monarch", d.UserID), zap.Bool("repetitive", d.Recurrence.Repetitive()))
				continue
			}
			if err := s.decrees.Save(ctx, &d); err != nil {
				return err
			}
			s.log.Info("decree saved", zap.String("id", d.ID), zap.String("status", string(d.Status)), zap.Int("progress", d.CurrentQuantity))
		case state.DeleteDecree:
			if err := s.decrees.Delete(ctx, monarch.ID, c.ID); err != nil {
				return err
			}
			s.log.Info("decree revoked", zap.String("id", c.ID), zap.Uint("monarch", monarch.ID))
		case state.GrantRenown:
			if s.monarchs == nil {
				continue
			}
			if err := s.monarchs.AddRenown(ctx, monarch.ID, c.Points); err != nil {
				return err
			}
		case state.Announce:
			s.mu.Lock()
			n := s.notifier
			s.mu.Unlock()
			// Delivery failures are logged only.
			if err := n.Notify(ctx, monarch, c.Text); err != nil {
				s.log.Warn("announce", zap.Uint("monarch", monarch.ID), zap.Error(err))
			}
		case state.WriteSnapshot:
			if s.snapshots == nil {
				continue
			}
			if err := s.snapshots.Save(c.State.MonarchID, c.State.Decrees); err != nil {
				s.log.Warn("write snapshot", zap.Uint("monarch", c.State.MonarchID), zap.Error(err))
			}
		default:
			return fmt.Errorf("unknown command %T", cmd)
		}
	}
	return nil
}
