// Package seed fills a ledger with listings and realistic interaction traffic
// for development and demos.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/ledger"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options sizes a development seed
type Options struct {
	Owners           int
	JobsPerOwner     int
	PartnersPerOwner int
	Users            int
	Interactions     int
	// Workers bounds how many interactions run at once
	Workers int
}

// DefaultOptions returns the sizes used by `seed dev`
func DefaultOptions() Options {
	return Options{
		Owners:           20,
		JobsPerOwner:     5,
		PartnersPerOwner: 2,
		Users:            200,
		Interactions:     5000,
		Workers:          8,
	}
}

// Summary reports what a seed run created
type Summary struct {
	Listings   []models.ListingRef
	Users      []string
	Recommends int
	Favorites  int
	Clicks     int
}

// Seeder handles ledger seeding operations
type Seeder struct {
	catalog store.Catalog
	ledger  *ledger.Ledger
	faker   *gofakeit.Faker
}

// NewSeeder creates a seeder writing listings to catalog and interactions
// through l. A zero seed picks a random one; any other value makes runs
// reproducible.
func NewSeeder(catalog store.Catalog, l *ledger.Ledger, seed uint64) *Seeder {
	return &Seeder{
		catalog: catalog,
		ledger:  l,
		faker:   gofakeit.New(seed),
	}
}

// SeedDev creates fake owners, listings and users, then replays random
// interaction traffic through the ledger.
func (s *Seeder) SeedDev(ctx context.Context, opts Options) (*Summary, error) {
	logger.Log.Info("Creating listings...",
		zap.Int("owners", opts.Owners),
		zap.Int("jobs_per_owner", opts.JobsPerOwner),
		zap.Int("partners_per_owner", opts.PartnersPerOwner),
	)
	listings, err := s.seedListings(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to seed listings: %w", err)
	}

	users := make([]string, opts.Users)
	for i := range users {
		users[i] = s.faker.Username() + "-" + s.faker.DigitN(4)
	}

	logger.Log.Info("Replaying interactions...", zap.Int("count", opts.Interactions))
	summary := &Summary{Listings: listings, Users: users}
	if err := s.replay(ctx, s.randomInteractions(listings, users, opts.Interactions), opts.Workers); err != nil {
		return nil, fmt.Errorf("failed to seed interactions: %w", err)
	}
	if err := s.summarize(ctx, summary); err != nil {
		return nil, err
	}

	logger.Log.Info("Seed complete",
		zap.Int("listings", len(listings)),
		zap.Int("recommends", summary.Recommends),
		zap.Int("favorites", summary.Favorites),
		zap.Int("clicks", summary.Clicks),
	)
	return summary, nil
}

// SeedTest creates a small fixed data set that tests and demos can rely on
func (s *Seeder) SeedTest(ctx context.Context) (*Summary, error) {
	listings := fixtures()
	users := []string{"alice", "bob", "charlie", "diana", "eve"}

	summary := &Summary{Users: users}
	for _, listing := range listings {
		if err := s.catalog.CreateListing(ctx, listing); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", listing.Ref(), err)
		}
		summary.Listings = append(summary.Listings, listing.Ref())
	}

	backend := listings[0].Ref()
	partner := listings[2].Ref()
	plan := []interaction{
		{models.SignalRecommend, backend, "alice"},
		{models.SignalRecommend, backend, "bob"},
		{models.SignalFavorite, backend, "alice"},
		{models.SignalClick, backend, "alice"},
		{models.SignalClick, backend, "bob"},
		{models.SignalClick, backend, "charlie"},
		{models.SignalFavorite, partner, "diana"},
		{models.SignalClick, partner, "eve"},
	}
	if err := s.replay(ctx, plan, 1); err != nil {
		return nil, err
	}
	if err := s.summarize(ctx, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func fixtures() []*models.Listing {
	return []*models.Listing{
		{Kind: models.KindJob, OwnerID: "acme", ListingID: "backend-engineer", Title: "Backend Engineer", Company: "Acme"},
		{Kind: models.KindJob, OwnerID: "acme", ListingID: "designer", Title: "Product Designer", Company: "Acme"},
		{Kind: models.KindPartner, OwnerID: "acme", ListingID: "recruiting-co", Title: "Recruiting Co", Company: "Acme"},
	}
}

// FixtureRefs returns the listings created by SeedTest
func FixtureRefs() []models.ListingRef {
	var refs []models.ListingRef
	for _, l := range fixtures() {
		refs = append(refs, l.Ref())
	}
	return refs
}

// Clean deletes the given listings, ignoring ones already gone
func (s *Seeder) Clean(ctx context.Context, refs []models.ListingRef) error {
	for _, ref := range refs {
		if err := s.catalog.DeleteListing(ctx, ref); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("failed to delete %s: %w", ref, err)
		}
	}
	return nil
}

func (s *Seeder) seedListings(ctx context.Context, opts Options) ([]models.ListingRef, error) {
	var refs []models.ListingRef
	for o := 0; o < opts.Owners; o++ {
		company := s.faker.Company()
		owner := s.faker.UUID()

		add := func(kind models.ListingKind, title string) error {
			listing := &models.Listing{
				Kind:      kind,
				OwnerID:   owner,
				ListingID: s.faker.UUID(),
				Title:     title,
				Company:   company,
			}
			if err := s.catalog.CreateListing(ctx, listing); err != nil {
				return err
			}
			refs = append(refs, listing.Ref())
			return nil
		}

		for j := 0; j < opts.JobsPerOwner; j++ {
			if err := add(models.KindJob, s.faker.JobTitle()); err != nil {
				return nil, err
			}
		}
		for p := 0; p < opts.PartnersPerOwner; p++ {
			if err := add(models.KindPartner, s.faker.Company()+" "+s.faker.BS()); err != nil {
				return nil, err
			}
		}
	}
	return refs, nil
}

type interaction struct {
	signal models.Signal
	ref    models.ListingRef
	actor  string
}

// randomInteractions draws count interactions: half clicks, the rest split
// between favorites and recommends. Popular listings draw more traffic.
func (s *Seeder) randomInteractions(listings []models.ListingRef, users []string, count int) []interaction {
	if len(listings) == 0 || len(users) == 0 {
		return nil
	}
	plan := make([]interaction, 0, count)
	for i := 0; i < count; i++ {
		// Squaring skews the pick towards the front of the list
		r := s.faker.Float64()
		ref := listings[int(r*r*float64(len(listings)))]
		actor := users[s.faker.IntRange(0, len(users)-1)]

		var signal models.Signal
		switch roll := s.faker.IntRange(0, 9); {
		case roll < 5:
			signal = models.SignalClick
		case roll < 8:
			signal = models.SignalFavorite
		default:
			signal = models.SignalRecommend
		}
		plan = append(plan, interaction{signal: signal, ref: ref, actor: actor})
	}
	return plan
}

// replay applies plan through the ledger using up to workers goroutines
func (s *Seeder) replay(ctx context.Context, plan []interaction, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, it := range plan {
		g.Go(func() error {
			var err error
			switch it.signal {
			case models.SignalClick:
				_, err = s.ledger.RecordClick(ctx, it.ref, it.actor)
			case models.SignalFavorite:
				_, err = s.ledger.ToggleFavorite(ctx, it.ref, it.actor)
			case models.SignalRecommend:
				_, err = s.ledger.ToggleRecommend(ctx, it.ref, it.actor)
			}
			return err
		})
	}
	return g.Wait()
}

// summarize totals the committed statistics of the seeded listings
func (s *Seeder) summarize(ctx context.Context, summary *Summary) error {
	for _, ref := range summary.Listings {
		stats, err := s.ledger.GetStatistics(ctx, ref)
		if err != nil {
			return err
		}
		summary.Recommends += stats.Recommend.Count
		summary.Favorites += stats.Favorite.Count
		summary.Clicks += stats.Click.Count
	}
	return nil
}
