package seed

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/listingboard/internal/broker"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/ledger"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/store"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "-")
	os.Exit(m.Run())
}

type SeederSuite struct {
	suite.Suite
	ctx    context.Context
	ledger *ledger.Ledger
	store  *store.MemoryStore
}

func (s *SeederSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemoryStore(broker.NewLocalBroker())
	s.ledger = ledger.New(s.store)
}

func (s *SeederSuite) smallOptions() Options {
	return Options{Owners: 3, JobsPerOwner: 2, PartnersPerOwner: 1, Users: 10, Interactions: 200, Workers: 4}
}

func (s *SeederSuite) TestSeedTestFixtures() {
	summary, err := NewSeeder(s.store, s.ledger, 1).SeedTest(s.ctx)
	s.Require().NoError(err)

	s.Len(summary.Listings, 3)
	s.Equal(2, summary.Recommends)
	s.Equal(2, summary.Favorites)
	s.Equal(4, summary.Clicks)

	stats, err := s.ledger.GetStatistics(s.ctx, summary.Listings[0])
	s.Require().NoError(err)
	s.ElementsMatch([]string{"alice", "bob"}, stats.Recommend.Users)
	s.True(stats.Has(models.SignalFavorite, "alice"))
	s.Equal(3, stats.Click.Count)
}

func (s *SeederSuite) TestSeedDevRespectsSizes() {
	opts := s.smallOptions()
	summary, err := NewSeeder(s.store, s.ledger, 42).SeedDev(s.ctx, opts)
	s.Require().NoError(err)

	s.Len(summary.Listings, opts.Owners*(opts.JobsPerOwner+opts.PartnersPerOwner))
	s.Len(summary.Users, opts.Users)
	s.LessOrEqual(summary.Clicks, opts.Interactions)

	jobs := 0
	for _, ref := range summary.Listings {
		if ref.Kind == models.KindJob {
			jobs++
		}
		stats, err := s.ledger.GetStatistics(s.ctx, ref)
		s.Require().NoError(err)
		s.Equal(len(stats.Recommend.Users), stats.Recommend.Count)
		s.LessOrEqual(stats.Recommend.Count, opts.Users)
		s.LessOrEqual(stats.Favorite.Count, opts.Users)
		s.LessOrEqual(stats.Click.Count, opts.Users)
	}
	s.Equal(opts.Owners*opts.JobsPerOwner, jobs)
}

func (s *SeederSuite) TestClean() {
	seeder := NewSeeder(s.store, s.ledger, 7)
	summary, err := seeder.SeedTest(s.ctx)
	s.Require().NoError(err)

	s.Equal(FixtureRefs(), summary.Listings)
	s.Require().NoError(seeder.Clean(s.ctx, FixtureRefs()))
	_, err = s.ledger.GetStatistics(s.ctx, summary.Listings[0])
	s.ErrorIs(err, apperrors.ErrNotFound)

	// Already gone
	s.NoError(seeder.Clean(s.ctx, summary.Listings))
}

func TestSeederSuite(t *testing.T) {
	suite.Run(t, new(SeederSuite))
}

func TestSeedDevIsReproducible(t *testing.T) {
	run := func() *Summary {
		mem := store.NewMemoryStore(broker.NewLocalBroker())
		opts := Options{Owners: 2, JobsPerOwner: 2, PartnersPerOwner: 1, Users: 5, Interactions: 50, Workers: 1}
		summary, err := NewSeeder(mem, ledger.New(mem), 99).SeedDev(context.Background(), opts)
		require.NoError(t, err)
		return summary
	}

	first, second := run(), run()
	assert.Equal(t, first.Listings, second.Listings)
	assert.Equal(t, first.Users, second.Users)
	assert.Equal(t, first.Clicks, second.Clicks)
	assert.Equal(t, first.Favorites, second.Favorites)
}
