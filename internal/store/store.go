// Package store owns the space collection and the single "current" pointer.
//
// Every state transition is a whole method executed under one lock: the read,
// the decision and the write happen atomically, so two interleaved calls can
// never both observe room for one more space, and the "exactly one current
// space" invariant holds at every observable point. External code never
// mutates store state directly.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/quota"
	"github.com/lumenote-ai/notebook-platform/internal/storage"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
	"github.com/lumenote-ai/notebook-platform/pkg/metrics"
)

var (
	// ErrQuotaExceeded is the expected, user-facing denial from Create.
	ErrQuotaExceeded = errors.New("space quota exceeded for this notebook")

	// ErrSpaceNotFound is returned when an operation targets a missing space.
	ErrSpaceNotFound = errors.New("space not found")
)

// Persister receives the full store snapshot after each committed mutation.
// Persistence is best-effort; failures are logged, never propagated.
type Persister interface {
	Save(*storage.Snapshot) error
}

// Store is the space store.
type Store struct {
	mu      sync.Mutex
	spaces  []*model.Space
	current string

	policy  quota.Policy
	persist Persister
	logger  *logger.Logger

	subs []chan model.StoreEvent

	now   func() time.Time
	newID func() string
}

// New creates an empty store. Call Restore to load persisted state.
func New(policy quota.Policy, persist Persister, log *logger.Logger) *Store {
	return &Store{
		policy:  policy,
		persist: persist,
		logger:  log,
		now:     time.Now,
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Restore loads a persisted snapshot into the store. Stale in-flight naming
// guards are cleared (they cannot survive a restart), and a dangling current
// pointer is repaired against the restored collection.
func (s *Store) Restore(snap *storage.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spaces = s.spaces[:0]
	for i := range snap.Spaces {
		sp := snap.Spaces[i]
		sp.Metadata.GeneratingName = false
		s.spaces = append(s.spaces, &sp)
	}

	s.current = ""
	if snap.CurrentSpaceID != "" && s.findLocked(snap.CurrentSpaceID) != nil {
		s.current = snap.CurrentSpaceID
	}
	if s.current == "" && len(s.spaces) > 0 {
		s.current = s.mostRecentLocked().ID
	}
}

// Subscribe returns a channel of store events. Events are dropped for slow
// subscribers rather than blocking transitions.
func (s *Store) Subscribe(buffer int) <-chan model.StoreEvent {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.StoreEvent, buffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Close closes all subscriber channels.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

// Create inserts a new space and makes it current. The quota check and the
// insert are one transition; a denial leaves the store untouched and returns
// ErrQuotaExceeded.
func (s *Store) Create(notebookID, name string, tier quota.Tier) (model.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.notebookCountLocked(notebookID)
	if !s.policy.Allow(count, tier) {
		metrics.SpacesDenied.WithLabelValues(notebookID, string(tier)).Inc()
		s.logger.Info("space creation denied by quota",
			zap.String("notebook_id", notebookID),
			zap.String("tier", string(tier)),
			zap.Int("count", count),
		)
		return model.Space{}, ErrQuotaExceeded
	}

	now := s.now()
	sp := &model.Space{
		ID:         s.newID(),
		NotebookID: notebookID,
		Name:       s.uniqueSiblingNameLocked(notebookID, name),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.spaces = append(s.spaces, sp)
	s.current = sp.ID

	metrics.SpacesCreated.WithLabelValues(notebookID).Inc()
	s.commitLocked(
		model.StoreEvent{Type: model.EventSpaceCreated, SpaceID: sp.ID, NotebookID: notebookID},
		model.StoreEvent{Type: model.EventCurrentChanged, SpaceID: sp.ID, NotebookID: notebookID},
	)
	return copySpace(sp), nil
}

// Delete removes a space. If it was current, a replacement is selected in the
// same transition: a non-archived untitled default space in the same notebook
// first, then the most recently updated non-archived space, and as a last
// resort a freshly synthesized default space, so the store is never left with
// zero spaces.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	victim := s.findLocked(id)
	if victim == nil {
		return ErrSpaceNotFound
	}

	kept := s.spaces[:0]
	for _, sp := range s.spaces {
		if sp.ID != id {
			kept = append(kept, sp)
		}
	}
	s.spaces = kept

	events := []model.StoreEvent{{Type: model.EventSpaceDeleted, SpaceID: id, NotebookID: victim.NotebookID}}
	if s.current == id {
		next := s.selectReplacementLocked(victim.NotebookID, true)
		s.current = next.ID
		events = append(events, model.StoreEvent{Type: model.EventCurrentChanged, SpaceID: next.ID, NotebookID: next.NotebookID})
	}

	s.commitLocked(events...)
	return nil
}

// Archive soft-deletes a space: it stays in the collection but is excluded
// from quota counting and from replacement selection. Reassigns current like
// Delete when needed.
func (s *Store) Archive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return ErrSpaceNotFound
	}
	sp.Archived = true
	sp.UpdatedAt = s.now()

	events := []model.StoreEvent{{Type: model.EventSpaceArchived, SpaceID: id, NotebookID: sp.NotebookID}}
	if s.current == id {
		next := s.selectReplacementLocked(sp.NotebookID, true)
		s.current = next.ID
		events = append(events, model.StoreEvent{Type: model.EventCurrentChanged, SpaceID: next.ID, NotebookID: next.NotebookID})
	}

	s.commitLocked(events...)
	return nil
}

// Rename sets the space name. Manual renames suppress future auto-naming;
// programmatic ones (the naming engine) do not.
func (s *Store) Rename(id, name string, manual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return ErrSpaceNotFound
	}
	sp.Name = name
	if manual {
		sp.Metadata.ManuallyRenamed = true
	}
	sp.UpdatedAt = s.now()

	s.commitLocked(model.StoreEvent{Type: model.EventSpaceRenamed, SpaceID: id, NotebookID: sp.NotebookID})
	return nil
}

// SetPinned toggles the pinned flag.
func (s *Store) SetPinned(id string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return ErrSpaceNotFound
	}
	sp.Metadata.Pinned = pinned
	sp.UpdatedAt = s.now()

	s.commitLocked(model.StoreEvent{Type: model.EventSpacePinned, SpaceID: id, NotebookID: sp.NotebookID})
	return nil
}

// Switch makes the given space current. The method returns only after the
// pointer is updated and subscribers have been notified, so callers can
// safely trigger dependent effects (message replay) on return.
func (s *Store) Switch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return ErrSpaceNotFound
	}
	if s.current == id {
		return nil
	}
	s.current = id

	s.commitLocked(model.StoreEvent{Type: model.EventCurrentChanged, SpaceID: id, NotebookID: sp.NotebookID})
	return nil
}

// AddMessage appends a message to the current space, deduplicating by id:
// a colliding identifier replaces the existing message instead of appending a
// duplicate. If no current space exists the store self-heals by selecting or
// synthesizing a default space first; the message is never dropped.
func (s *Store) AddMessage(msg model.Message) (model.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(s.current)
	if sp == nil {
		sp = s.selectReplacementLocked("", false)
		s.current = sp.ID
		s.logger.Warn("no current space, self-healed before append",
			zap.String("space_id", sp.ID),
			zap.String("message_id", msg.ID),
		)
	}

	s.appendMessageLocked(sp, msg)
	s.commitLocked(model.StoreEvent{
		Type: model.EventMessageAdded, SpaceID: sp.ID, NotebookID: sp.NotebookID, MessageID: msg.ID,
	})
	return copySpace(sp), nil
}

// AddMessageTo appends a message to a specific space, with the same
// dedupe-by-id semantics. Used for late-arriving completions that must land
// in their owning space, not the now-current one.
func (s *Store) AddMessageTo(spaceID string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(spaceID)
	if sp == nil {
		return fmt.Errorf("%w: %s", ErrSpaceNotFound, spaceID)
	}

	s.appendMessageLocked(sp, msg)
	s.commitLocked(model.StoreEvent{
		Type: model.EventMessageAdded, SpaceID: sp.ID, NotebookID: sp.NotebookID, MessageID: msg.ID,
	})
	return nil
}

// MarkContextReset flags the space so the chat engine starts from an empty
// effective context while the persisted message list keeps rendering.
func (s *Store) MarkContextReset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return ErrSpaceNotFound
	}
	sp.Metadata.ContextReset = true
	sp.UpdatedAt = s.now()

	s.commitLocked(model.StoreEvent{Type: model.EventContextReset, SpaceID: id, NotebookID: sp.NotebookID})
	return nil
}

// ClearStudyMode removes the study-mode descriptor from a space.
func (s *Store) ClearStudyMode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return ErrSpaceNotFound
	}
	sp.StudyMode = ""

	s.commitLocked()
	return nil
}

// SetStudyMode attaches an opaque study-mode descriptor to a space.
func (s *Store) SetStudyMode(id, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return ErrSpaceNotFound
	}
	sp.StudyMode = mode

	s.commitLocked()
	return nil
}

// Get returns a copy of one space.
func (s *Store) Get(id string) (model.Space, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return model.Space{}, false
	}
	return copySpace(sp), true
}

// Current returns a copy of the current space.
func (s *Store) Current() (model.Space, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(s.current)
	if sp == nil {
		return model.Space{}, false
	}
	return copySpace(sp), true
}

// CurrentID returns the current space id, or "" during bootstrap.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// List returns all spaces in display order: pinned first, then most recently
// updated.
func (s *Store) List() model.ListSpacesResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.orderedLocked()
	out := make([]model.Space, 0, len(ordered))
	for _, sp := range ordered {
		out = append(out, copySpace(sp))
	}
	return model.ListSpacesResponse{
		Spaces:         out,
		CurrentSpaceID: s.current,
		Total:          len(out),
	}
}

// Search matches space names and message bodies, case-insensitively. One
// match per space; the name is checked first and the first hit wins.
func (s *Store) Search(query string) []model.SearchMatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var matches []model.SearchMatch
	for _, sp := range s.orderedLocked() {
		if strings.Contains(strings.ToLower(sp.Name), q) {
			matches = append(matches, model.SearchMatch{
				SpaceID: sp.ID, SpaceName: sp.Name, Kind: model.MatchName, Text: sp.Name,
			})
			continue
		}
		for _, msg := range sp.Messages {
			if strings.Contains(strings.ToLower(msg.Content), q) {
				matches = append(matches, model.SearchMatch{
					SpaceID: sp.ID, SpaceName: sp.Name, Kind: model.MatchMessage, Text: msg.Content,
				})
				break
			}
		}
	}
	return matches
}

// BeginNaming atomically transitions a space to the generating state. It
// returns false unless all guards hold: not manually renamed, not already
// generating, cooldown elapsed, and the content eligibility predicate is
// satisfied.
func (s *Store) BeginNaming(id string, cooldown time.Duration, eligible func(*model.Space) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return false
	}
	if sp.Metadata.ManuallyRenamed || sp.Metadata.GeneratingName {
		return false
	}
	if !sp.Metadata.LastAutoNameUpdate.IsZero() && s.now().Sub(sp.Metadata.LastAutoNameUpdate) < cooldown {
		return false
	}
	if eligible != nil && !eligible(sp) {
		return false
	}

	sp.Metadata.GeneratingName = true
	s.commitLocked()
	return true
}

// FinishNaming completes a naming run started by BeginNaming. The generated
// name is written only when it differs from the current one, but the cooldown
// stamp is refreshed either way so content that yields no better name does
// not retry in a tight loop.
func (s *Store) FinishNaming(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.findLocked(id)
	if sp == nil {
		return
	}
	sp.Metadata.GeneratingName = false
	sp.Metadata.LastAutoNameUpdate = s.now()

	var events []model.StoreEvent
	if name != "" && name != sp.Name {
		sp.Name = name
		sp.UpdatedAt = s.now()
		events = append(events, model.StoreEvent{Type: model.EventSpaceRenamed, SpaceID: id, NotebookID: sp.NotebookID})
	}
	s.commitLocked(events...)
}

// ---- internal transitions (caller holds s.mu) ----

func (s *Store) findLocked(id string) *model.Space {
	if id == "" {
		return nil
	}
	for _, sp := range s.spaces {
		if sp.ID == id {
			return sp
		}
	}
	return nil
}

func (s *Store) notebookCountLocked(notebookID string) int {
	n := 0
	for _, sp := range s.spaces {
		if sp.NotebookID == notebookID && !sp.Archived {
			n++
		}
	}
	return n
}

// uniqueSiblingNameLocked de-duplicates a requested name against sibling
// spaces in the same notebook, appending a numeric suffix when needed.
func (s *Store) uniqueSiblingNameLocked(notebookID, requested string) string {
	base := strings.TrimSpace(requested)
	if base == "" {
		base = model.DefaultSpaceName
	}

	taken := func(name string) bool {
		for _, sp := range s.spaces {
			if sp.NotebookID == notebookID && sp.Name == name {
				return true
			}
		}
		return false
	}

	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s %d", base, i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// selectReplacementLocked picks the next current space: an untitled default
// space in the given notebook, else the most recently updated remaining
// space, else a freshly synthesized default space.
func (s *Store) selectReplacementLocked(notebookID string, skipArchived bool) *model.Space {
	for _, sp := range s.spaces {
		if skipArchived && sp.Archived {
			continue
		}
		if sp.NotebookID == notebookID && sp.HasDefaultName() && !sp.Metadata.ManuallyRenamed {
			return sp
		}
	}

	var newest *model.Space
	for _, sp := range s.spaces {
		if skipArchived && sp.Archived {
			continue
		}
		if newest == nil || sp.UpdatedAt.After(newest.UpdatedAt) {
			newest = sp
		}
	}
	if newest != nil {
		return newest
	}

	now := s.now()
	fresh := &model.Space{
		ID:         s.newID(),
		NotebookID: notebookID,
		Name:       model.DefaultSpaceName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.spaces = append(s.spaces, fresh)
	return fresh
}

func (s *Store) mostRecentLocked() *model.Space {
	var newest *model.Space
	for _, sp := range s.spaces {
		if newest == nil || sp.UpdatedAt.After(newest.UpdatedAt) {
			newest = sp
		}
	}
	return newest
}

func (s *Store) appendMessageLocked(sp *model.Space, msg model.Message) {
	for i := range sp.Messages {
		if sp.Messages[i].ID == msg.ID {
			sp.Messages[i] = msg
			sp.UpdatedAt = s.now()
			return
		}
	}
	sp.Messages = append(sp.Messages, msg)
	sp.UpdatedAt = s.now()
	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
}

func (s *Store) orderedLocked() []*model.Space {
	ordered := make([]*model.Space, len(s.spaces))
	copy(ordered, s.spaces)
	// Pinned first, then most recently updated.
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Metadata.Pinned != b.Metadata.Pinned {
			return a.Metadata.Pinned
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return ordered
}

// commitLocked persists the snapshot best-effort and fans out events.
func (s *Store) commitLocked(events ...model.StoreEvent) {
	if s.persist != nil {
		if err := s.persist.Save(s.snapshotLocked()); err != nil {
			metrics.SnapshotWriteFailures.Inc()
			s.logger.Error("failed to persist store snapshot", zap.Error(err))
		}
	}
	for i := range events {
		events[i].OccurredAt = s.now()
		for _, ch := range s.subs {
			select {
			case ch <- events[i]:
			default:
			}
		}
	}
}

func (s *Store) snapshotLocked() *storage.Snapshot {
	snap := &storage.Snapshot{CurrentSpaceID: s.current}
	snap.Spaces = make([]model.Space, 0, len(s.spaces))
	for _, sp := range s.spaces {
		snap.Spaces = append(snap.Spaces, copySpace(sp))
	}
	return snap
}

func copySpace(sp *model.Space) model.Space {
	out := *sp
	out.Messages = make([]model.Message, len(sp.Messages))
	copy(out.Messages, sp.Messages)
	return out
}
