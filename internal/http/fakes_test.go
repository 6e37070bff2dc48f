package httpx

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
)

// memoryStore backs every repository interface used by the router tests.
type memoryStore struct {
	mu         sync.Mutex
	identities map[string]*domain.Identity
	samples    []domain.HealthSample
	alerts     []domain.Alert
	posts      map[string]*domain.Post
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		identities: make(map[string]*domain.Identity),
		posts:      make(map[string]*domain.Post),
	}
}

func (m *memoryStore) CreateIdentity(_ context.Context, identity *domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.identities {
		if existing.Email == identity.Email {
			return repository.ErrConflict
		}
	}
	clone := *identity
	m.identities[identity.ID] = &clone
	return nil
}

func (m *memoryStore) GetIdentity(_ context.Context, id string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.identities[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) GetIdentityByEmail(_ context.Context, email string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.identities {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) UpdateProfile(_ context.Context, id string, update domain.ProfileUpdate) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	if update.Sport != nil {
		u.Sport = *update.Sport
	}
	clone := *u
	return &clone, nil
}

func (m *memoryStore) DeleteIdentity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, id)
	return nil
}

func (m *memoryStore) ListFollowers(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.identities[id]; ok {
		return append([]string(nil), u.Followers...), nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) Follow(_ context.Context, followerID, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.identities[targetID]
	if !ok {
		return repository.ErrNotFound
	}
	target.Followers = append(target.Followers, followerID)
	if follower, ok := m.identities[followerID]; ok {
		follower.Following = append(follower.Following, targetID)
	}
	return nil
}

func (m *memoryStore) Unfollow(context.Context, string, string) error { return nil }

func (m *memoryStore) AppendSample(_ context.Context, sample *domain.HealthSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, *sample)
	return nil
}

func (m *memoryStore) LatestSample(_ context.Context, userID string) (*domain.HealthSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.samples) - 1; i >= 0; i-- {
		if m.samples[i].UserID == userID {
			s := m.samples[i]
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) filter(f domain.HealthFilter) []domain.HealthSample {
	var out []domain.HealthSample
	for _, s := range m.samples {
		if s.UserID != f.UserID {
			continue
		}
		if !f.From.IsZero() && s.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && s.Timestamp.After(f.To) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (m *memoryStore) ListSamples(_ context.Context, f domain.HealthFilter) ([]domain.HealthSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(f)
	if f.Offset >= len(all) {
		return nil, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (m *memoryStore) CountSamples(_ context.Context, f domain.HealthFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(f)), nil
}

func (m *memoryStore) SamplesBetween(_ context.Context, userID string, from, to time.Time) ([]domain.HealthSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(domain.HealthFilter{UserID: userID, From: from, To: to}), nil
}

func (m *memoryStore) AppendAlert(_ context.Context, alert *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, *alert)
	return nil
}

func (m *memoryStore) ListAlerts(_ context.Context, userID string, limit int) ([]domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Alert
	for _, a := range m.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) CreatePost(_ context.Context, p *domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.posts[p.ID] = &clone
	return nil
}

func (m *memoryStore) GetPost(_ context.Context, id string) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.posts[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) ListPosts(_ context.Context, authorID string, limit, offset int) ([]domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Post
	for _, p := range m.posts {
		if authorID == "" || p.UserID == authorID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) CountPosts(_ context.Context, authorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.posts {
		if authorID == "" || p.UserID == authorID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) AddLike(_ context.Context, postID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	p.Likes = append(p.Likes, userID)
	return len(p.Likes), nil
}

func (m *memoryStore) RemoveLike(_ context.Context, postID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	kept := p.Likes[:0]
	for _, id := range p.Likes {
		if id != userID {
			kept = append(kept, id)
		}
	}
	p.Likes = kept
	return len(p.Likes), nil
}

func (m *memoryStore) CountRecentLikesBy(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

func (m *memoryStore) AddComment(_ context.Context, c *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[c.PostID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Comments = append(p.Comments, *c)
	return nil
}

func (m *memoryStore) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	return nil
}
