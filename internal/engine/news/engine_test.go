package news

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhsu/longbox/internal/domain"
)

type fakeNewsStore struct {
	articles []domain.NewsArticle
	marked   map[string]time.Time
}

func newFakeNewsStore(articles ...domain.NewsArticle) *fakeNewsStore {
	return &fakeNewsStore{articles: articles, marked: make(map[string]time.Time)}
}

func (s *fakeNewsStore) ListPending(ctx context.Context) ([]domain.NewsArticle, error) {
	var out []domain.NewsArticle
	for _, a := range s.articles {
		if _, done := s.marked[a.ID]; !done {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeNewsStore) MarkDistributed(ctx context.Context, id string, at time.Time) error {
	if _, done := s.marked[id]; done {
		return domain.ErrNotFound
	}
	s.marked[id] = at
	return nil
}

type fakeTierStore struct {
	tiers    []domain.InformationTier
	users    map[string]int // user id -> tier rank
	listErr  error
	syncHits int
}

func (s *fakeTierStore) ListTiers(ctx context.Context) ([]domain.InformationTier, error) {
	s.syncHits++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tiers, nil
}

func (s *fakeTierStore) ListUsersAtOrAbove(ctx context.Context, rank int) ([]domain.TierUser, error) {
	var out []domain.TierUser
	for id, r := range s.users {
		if r >= rank {
			out = append(out, domain.TierUser{ID: id})
		}
	}
	return out, nil
}

type delivery struct {
	article domain.NewsArticle
	users   []domain.TierUser
}

type fakeDeliverer struct {
	deliveries []delivery
	err        error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, article domain.NewsArticle, users []domain.TierUser) error {
	if d.err != nil {
		return d.err
	}
	d.deliveries = append(d.deliveries, delivery{article: article, users: users})
	return nil
}

func standardTiers() *fakeTierStore {
	return &fakeTierStore{
		tiers: []domain.InformationTier{
			{ID: "tier-free", Name: "Free", Rank: 1},
			{ID: "tier-pro", Name: "Pro", Rank: 2},
			{ID: "tier-insider", Name: "Insider", Rank: 3},
		},
		users: map[string]int{
			"user-free":    1,
			"user-pro":     2,
			"user-insider": 3,
		},
	}
}

func newTestEngine(articles *fakeNewsStore, tiers *fakeTierStore, d Deliverer) *Engine {
	e := New(articles, tiers, d, slog.New(slog.DiscardHandler))
	e.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestTickDistributesPendingArticleOnce(t *testing.T) {
	articles := newFakeNewsStore(domain.NewsArticle{
		ID:                 "art-1",
		Headline:           "Issue #1 reprint announced",
		RequiredTierID:     "tier-free",
		DistributionStatus: domain.DistributionPending,
	})
	tiers := standardTiers()
	d := &fakeDeliverer{}
	e := newTestEngine(articles, tiers, d)

	res, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Succeeded)

	require.Len(t, d.deliveries, 1)
	assert.Equal(t, "art-1", d.deliveries[0].article.ID)
	// Free tier: everyone at rank >= 1 is eligible.
	assert.Len(t, d.deliveries[0].users, 3)

	_, marked := articles.marked["art-1"]
	assert.True(t, marked)

	// A second cycle finds nothing pending and writes nothing.
	res, err = e.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Len(t, d.deliveries, 1)
}

func TestTierGatingExcludesLowerRanks(t *testing.T) {
	articles := newFakeNewsStore(domain.NewsArticle{
		ID:             "art-insider",
		Headline:       "Publisher acquisition leak",
		RequiredTierID: "tier-insider",
	})
	tiers := standardTiers()
	d := &fakeDeliverer{}
	e := newTestEngine(articles, tiers, d)

	_, err := e.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, d.deliveries, 1)
	require.Len(t, d.deliveries[0].users, 1)
	assert.Equal(t, "user-insider", d.deliveries[0].users[0].ID)
}

func TestUnknownTierLeavesArticlePending(t *testing.T) {
	articles := newFakeNewsStore(domain.NewsArticle{
		ID:             "art-1",
		RequiredTierID: "tier-nonexistent",
	})
	tiers := standardTiers()
	d := &fakeDeliverer{}
	e := newTestEngine(articles, tiers, d)

	res, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "unknown information tier")

	assert.Empty(t, d.deliveries)
	assert.Empty(t, articles.marked)

	// Still pending for the next cycle.
	pending, err := articles.ListPending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDeliveryFailureLeavesArticlePending(t *testing.T) {
	articles := newFakeNewsStore(domain.NewsArticle{
		ID:             "art-1",
		RequiredTierID: "tier-free",
	})
	d := &fakeDeliverer{err: errors.New("bus unavailable")}
	e := newTestEngine(articles, standardTiers(), d)

	res, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, articles.marked)
}

func TestFirstTickSyncsTiersLazily(t *testing.T) {
	articles := newFakeNewsStore(domain.NewsArticle{
		ID:             "art-1",
		RequiredTierID: "tier-free",
	})
	tiers := standardTiers()
	e := newTestEngine(articles, tiers, &fakeDeliverer{})

	// No explicit SyncTiers call before the first distribution tick.
	_, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tiers.syncHits)
}

func TestSyncTiersRefreshesCatalog(t *testing.T) {
	tiers := standardTiers()
	articles := newFakeNewsStore(domain.NewsArticle{
		ID:             "art-new-tier",
		RequiredTierID: "tier-vip",
	})
	d := &fakeDeliverer{}
	e := newTestEngine(articles, tiers, d)

	res, err := e.SyncTiers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)

	// The article's tier does not exist yet.
	res, err = e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	// The tier appears upstream; the next sync picks it up.
	tiers.tiers = append(tiers.tiers, domain.InformationTier{ID: "tier-vip", Name: "VIP", Rank: 4})
	_, err = e.SyncTiers(context.Background())
	require.NoError(t, err)

	res, err = e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Len(t, d.deliveries, 1)
}

func TestSyncFailureFailsTickWhenCatalogEmpty(t *testing.T) {
	articles := newFakeNewsStore(domain.NewsArticle{
		ID:             "art-1",
		RequiredTierID: "tier-free",
	})
	tiers := standardTiers()
	tiers.listErr = errors.New("db down")
	e := newTestEngine(articles, tiers, &fakeDeliverer{})

	_, err := e.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync tiers")
}
