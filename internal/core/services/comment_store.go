package services

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/ups-collab/internal/core/domain"
)

// commentState is a comment as seen at some point, possibly deleted.
type commentState struct {
	comment domain.Comment
	deleted bool
}

// commentEntry is the local state of one comment.
//
// rev is the local mutation version that last wrote the visible state, or 0
// when it came from the backend. confirmed is the last state the backend
// acknowledged and is nil for a create that has not been confirmed yet.
// speculative is set while visible holds a local write the backend has not
// acknowledged.
type commentEntry struct {
	visible     commentState
	rev         int64
	confirmed   *commentState
	speculative bool
}

// CommentStore is the versioned reducer behind a session's comment list.
//
// Local writes are ordered by mutation version and remote writes by backend
// version; anything older than what is already applied is discarded.
// Deleted comments keep a tombstone so stale updates cannot resurrect them.
type CommentStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*commentEntry
}

// NewCommentStore creates an empty store.
func NewCommentStore() *CommentStore {
	return &CommentStore{entries: make(map[uuid.UUID]*commentEntry)}
}

func confirmedEntry(state commentState) *commentEntry {
	c := state
	return &commentEntry{visible: state, confirmed: &c}
}

// Reset replaces the store contents with a freshly loaded list. Unconfirmed
// local writes and tombstones survive; every other comment the list does not
// carry is dropped.
func (s *CommentStore) Reset(comments []domain.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[uuid.UUID]*commentEntry, len(comments))
	for id, e := range s.entries {
		if e.speculative || e.visible.deleted {
			next[id] = e
		}
	}
	for _, c := range comments {
		if cur, ok := next[c.ID]; ok && cur.visible.comment.Version >= c.Version {
			continue
		}
		next[c.ID] = confirmedEntry(commentState{comment: c})
	}
	s.entries = next
}

// applyLocal installs c as the speculative state of a new comment.
func (s *CommentStore) applyLocal(c domain.Comment, rev int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[c.ID]; ok {
		cur.visible = commentState{comment: c}
		cur.rev = rev
		cur.speculative = true
		return
	}
	s.entries[c.ID] = &commentEntry{visible: commentState{comment: c}, rev: rev, speculative: true}
}

// update applies fn to the visible comment as a local write. A nil fn
// tombstones the comment. It reports false when the comment is unknown or
// already deleted.
func (s *CommentStore) update(id uuid.UUID, rev int64, fn func(domain.Comment) domain.Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[id]
	if !ok || cur.visible.deleted {
		return false
	}
	if fn == nil {
		cur.visible.deleted = true
	} else {
		cur.visible.comment = fn(cur.visible.comment)
	}
	cur.rev = rev
	cur.speculative = true
	return true
}

// revert drops the speculative state written by rev and shows the last
// confirmed state again. Nothing happens when a newer write has landed on
// the entry since. A create that was never confirmed disappears.
func (s *CommentStore) revert(id uuid.UUID, rev int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[id]
	if !ok || cur.rev != rev {
		return false
	}
	if cur.confirmed == nil {
		delete(s.entries, id)
		return true
	}
	cur.visible = *cur.confirmed
	cur.rev = 0
	cur.speculative = false
	return true
}

func (s *CommentStore) confirm(id uuid.UUID, state commentState, rev int64) bool {
	cur, ok := s.entries[id]
	if !ok {
		s.entries[id] = confirmedEntry(state)
		s.entries[id].rev = rev
		return true
	}
	if rev < cur.rev || state.comment.Version < cur.visible.comment.Version {
		// Still the newest acknowledged state, even if not shown.
		if cur.confirmed == nil || state.comment.Version > cur.confirmed.comment.Version {
			c := state
			cur.confirmed = &c
		}
		return false
	}
	c := state
	cur.visible = state
	cur.confirmed = &c
	cur.rev = rev
	cur.speculative = false
	return true
}

// commit records the backend's answer to local mutation rev.
func (s *CommentStore) commit(c domain.Comment, rev int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirm(c.ID, commentState{comment: c}, rev)
}

// commitDelete records a confirmed delete as a tombstone at version.
func (s *CommentStore) commitDelete(id uuid.UUID, version, rev int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tombstone := commentState{deleted: true}
	if cur, ok := s.entries[id]; ok {
		tombstone.comment = cur.visible.comment
	}
	tombstone.comment.ID = id
	tombstone.comment.Version = version
	if !s.confirm(id, tombstone, rev) {
		return false
	}
	s.tombstoneReplies(id)
	return true
}

// applyRemote applies a comment written by another session. It wins only
// with a strictly newer backend version.
func (s *CommentStore) applyRemote(c domain.Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[c.ID]; ok && c.Version <= cur.visible.comment.Version {
		return false
	}
	s.entries[c.ID] = confirmedEntry(commentState{comment: c})
	return true
}

// applyRemoteDelete tombstones a comment deleted by another session.
func (s *CommentStore) applyRemoteDelete(id uuid.UUID, version int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tombstone := commentState{deleted: true}
	if cur, ok := s.entries[id]; ok {
		if version <= cur.visible.comment.Version {
			return false
		}
		tombstone.comment = cur.visible.comment
	}
	tombstone.comment.ID = id
	tombstone.comment.Version = version
	s.entries[id] = confirmedEntry(tombstone)
	s.tombstoneReplies(id)
	return true
}

// tombstoneReplies removes the replies of a deleted comment. The backend
// deletes a thread in one write that bumps every reply once, so each
// tombstone sits one version above the reply it hides.
func (s *CommentStore) tombstoneReplies(parentID uuid.UUID) {
	for id, e := range s.entries {
		parent := e.visible.comment.ParentID
		if e.visible.deleted || parent == nil || *parent != parentID {
			continue
		}
		tombstone := commentState{comment: e.visible.comment, deleted: true}
		tombstone.comment.Version++
		s.entries[id] = confirmedEntry(tombstone)
	}
}

// Get returns the visible comment with id.
func (s *CommentStore) Get(id uuid.UUID) (domain.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.visible.deleted {
		return domain.Comment{}, false
	}
	return e.visible.comment, true
}

// List returns the visible comments matching filter, oldest first.
func (s *CommentStore) List(filter domain.FilterConfig) []domain.Comment {
	s.mu.RLock()
	out := make([]domain.Comment, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.visible.deleted && filter.Matches(e.visible.comment) {
			out = append(out, e.visible.comment)
		}
	}
	s.mu.RUnlock()

	sortByCreation(out)
	return out
}

func sortByCreation(comments []domain.Comment) {
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID.String() < comments[j].ID.String()
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
}

// Replies returns the visible replies to parentID, oldest first.
func (s *CommentStore) Replies(parentID uuid.UUID) []domain.Comment {
	s.mu.RLock()
	out := make([]domain.Comment, 0)
	for _, e := range s.entries {
		parent := e.visible.comment.ParentID
		if !e.visible.deleted && parent != nil && *parent == parentID {
			out = append(out, e.visible.comment)
		}
	}
	s.mu.RUnlock()

	sortByCreation(out)
	return out
}

// Len returns the number of visible comments.
func (s *CommentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if !e.visible.deleted {
			n++
		}
	}
	return n
}
