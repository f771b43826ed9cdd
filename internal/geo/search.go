package geo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/errandly/backend/internal/models"
)

// RadiusProfile controls how the search area widens for one worker role.
type RadiusProfile struct {
	InitialKm float64
	StepKm    float64
	MaxKm     float64
}

var profiles = map[models.WorkerRole]RadiusProfile{
	models.WorkerRoleRider:    {InitialKm: 3, StepKm: 3, MaxKm: 12},
	models.WorkerRoleErrander: {InitialKm: 2, StepKm: 1, MaxKm: 6},
}

// ProfileFor returns the radius profile for a role.
func ProfileFor(role models.WorkerRole) RadiusProfile {
	return profiles[role]
}

// Candidate is a worker within the search radius, annotated with distance.
type Candidate struct {
	Worker     *models.Worker
	DistanceKm float64
}

// WorkerSource lists verified, available workers of a role whose location
// was reported after freshSince.
type WorkerSource interface {
	FindAvailable(ctx context.Context, role models.WorkerRole, freshSince time.Time) ([]*models.Worker, error)
}

// Searcher runs the expanding-radius candidate search. Given identical
// worker locations it is deterministic: workers are fetched once, distances
// computed in a single batch, and the radius widened over the precomputed
// set until candidates appear or the cap is hit.
type Searcher struct {
	Workers   WorkerSource
	Distance  DistanceProvider
	Staleness time.Duration
	Logger    *slog.Logger
}

// DefaultStaleness is how old a worker's last location may be before the
// worker is excluded from search.
const DefaultStaleness = 30 * time.Minute

func NewSearcher(workers WorkerSource, distance DistanceProvider, logger *slog.Logger) *Searcher {
	return &Searcher{Workers: workers, Distance: distance, Staleness: DefaultStaleness, Logger: logger}
}

// FindCandidates returns workers within the smallest radius that contains at
// least one, sorted by distance, together with the number of expansion steps
// taken. An empty result with no error means the cap was reached with zero
// candidates; the task stays pending and the caller notifies the customer.
func (s *Searcher) FindCandidates(ctx context.Context, center Point, role models.WorkerRole) ([]Candidate, int, error) {
	prof, ok := profiles[role]
	if !ok {
		return nil, 0, fmt.Errorf("no radius profile for role %q", role)
	}

	now := time.Now()
	workers, err := s.Workers.FindAvailable(ctx, role, now.Add(-s.Staleness))
	if err != nil {
		return nil, 0, fmt.Errorf("find available workers: %w", err)
	}
	if len(workers) == 0 {
		return nil, 1, nil
	}

	points := make([]Point, 0, len(workers))
	eligible := make([]*models.Worker, 0, len(workers))
	for _, w := range workers {
		if w.LastKnownLocation == nil {
			continue
		}
		eligible = append(eligible, w)
		points = append(points, PointOf(*w.LastKnownLocation))
	}
	if len(eligible) == 0 {
		return nil, 1, nil
	}

	dists, err := s.Distance.DistanceKm(ctx, center, points)
	if err != nil {
		return nil, 0, fmt.Errorf("distance batch: %w", err)
	}

	all := make([]Candidate, len(eligible))
	for i, w := range eligible {
		all[i] = Candidate{Worker: w, DistanceKm: dists[i]}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].DistanceKm < all[j].DistanceKm })

	steps := 0
	for radius := prof.InitialKm; ; radius += prof.StepKm {
		if radius > prof.MaxKm {
			radius = prof.MaxKm
		}
		steps++
		within := withinRadius(all, radius)
		if len(within) > 0 {
			s.Logger.Info("candidates found", "role", role, "radius_km", radius, "count", len(within), "steps", steps)
			return within, steps, nil
		}
		if radius >= prof.MaxKm {
			s.Logger.Info("no candidates within cap", "role", role, "cap_km", prof.MaxKm, "steps", steps)
			return nil, steps, nil
		}
	}
}

func withinRadius(sorted []Candidate, radiusKm float64) []Candidate {
	var out []Candidate
	for _, c := range sorted {
		if c.DistanceKm > radiusKm {
			break
		}
		out = append(out, c)
	}
	return out
}
