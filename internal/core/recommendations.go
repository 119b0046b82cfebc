package core

import (
	"context"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ytmdremote/internal/store"
	"ytmdremote/pkg/fuzzy"
	"ytmdremote/pkg/text"
)

const (
	maxHeadCandidates  = 2
	maxArtistSearches  = 3
	keywordsPerSearch  = 2
	seenFalsePositives = 0.01
)

var (
	seedParser     = text.NewParser()
	seedNormalizer = fuzzy.NewNormalizer()
)

// DeriveSeed computes head candidates, artist terms, keyword terms and the
// exclusion set from a user's likes and history. Terms keep their order of
// first appearance, likes before history.
func DeriveSeed(history, likes []Track) RecommendationSeed {
	seed := RecommendationSeed{ExcludeIDs: make(map[string]bool, len(history)+len(likes))}

	for _, list := range [][]Track{likes, history} {
		for _, track := range list {
			if track.ID == "" {
				continue
			}
			if !seed.ExcludeIDs[track.ID] && len(seed.HeadCandidates) < maxHeadCandidates {
				seed.HeadCandidates = append(seed.HeadCandidates, track)
			}
			seed.ExcludeIDs[track.ID] = true
		}
	}

	seenArtists := make(map[string]bool)
	seenKeywords := make(map[string]bool)
	for _, list := range [][]Track{likes, history} {
		for _, track := range list {
			for _, artist := range seedParser.SplitArtists(track.Artist) {
				key := seedNormalizer.Fold(artist)
				if key == "" || seenArtists[key] {
					continue
				}
				seenArtists[key] = true
				seed.ArtistTerms = append(seed.ArtistTerms, artist)
			}
			for _, keyword := range seedParser.Keywords(track.Title) {
				if seenKeywords[keyword] {
					continue
				}
				seenKeywords[keyword] = true
				seed.KeywordTerms = append(seed.KeywordTerms, keyword)
			}
		}
	}

	return seed
}

// SearchQueries returns the secondary searches for seed in merge order:
// artist searches first, then one combined keyword search.
func (s RecommendationSeed) SearchQueries() []string {
	queries := make([]string, 0, maxArtistSearches+1)
	for i, artist := range s.ArtistTerms {
		if i == maxArtistSearches {
			break
		}
		queries = append(queries, artist)
	}
	if len(s.KeywordTerms) > 0 {
		n := min(keywordsPerSearch, len(s.KeywordTerms))
		queries = append(queries, strings.Join(s.KeywordTerms[:n], " "))
	}
	return queries
}

// Recommender turns a user's history and likes into a list of tracks to play.
type Recommender struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewRecommender creates a recommender; a nil searcher limits results to head candidates.
func NewRecommender(searcher Searcher, logger *zap.Logger) *Recommender {
	return &Recommender{
		searcher: searcher,
		logger:   logger,
	}
}

// Recommend returns at most limit tracks: head candidates followed by
// de-duplicated search results. Failed searches contribute nothing.
func (r *Recommender) Recommend(ctx context.Context, history, likes []Track, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}

	seed := DeriveSeed(history, likes)
	heads := seed.HeadCandidates
	if len(heads) > limit {
		heads = heads[:limit]
	}
	result := append([]Track(nil), heads...)
	if len(result) >= limit || r.searcher == nil {
		return result, nil
	}

	queries := seed.SearchQueries()
	results := make([][]Track, len(queries))

	var group errgroup.Group
	for i, query := range queries {
		group.Go(func() error {
			tracks, err := r.searcher.Search(ctx, query)
			if err != nil {
				r.logger.Debug("Recommendation search failed",
					zap.String("query", query),
					zap.Error(err))
				return nil
			}
			results[i] = tracks
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capacity := len(seed.ExcludeIDs) + 1
	for _, tracks := range results {
		capacity += len(tracks)
	}
	seen := store.NewSeenSet(capacity, seenFalsePositives)
	seen.AddAll(slices.Collect(maps.Keys(seed.ExcludeIDs)))
	excluded := seen.Size()

	remaining := limit - len(result)
	for _, tracks := range results {
		for _, track := range tracks {
			if remaining == 0 {
				break
			}
			if track.ID == "" || !seen.Add(track.ID) {
				continue
			}
			result = append(result, track)
			remaining--
		}
	}

	r.logger.Debug("Derived recommendations",
		zap.Int("heads", len(heads)),
		zap.Int("searches", len(queries)),
		zap.Int("excluded", excluded),
		zap.Int("total", len(result)))
	return result, nil
}
