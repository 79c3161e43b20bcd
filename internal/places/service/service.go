// Package service implements city resolution around a coordinate.
// Given a latitude/longitude it returns named places (cities, regions)
// near that point, combining a proximity cache with free-text place
// searches against the Graph API.
package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"photobridge_backend/internal/graph"
	"photobridge_backend/platform/logger"
)

const (
	// metersPerDegree is the equirectangular projection scale factor.
	metersPerDegree = 111320.0

	cacheHitMeters  = 500.0
	cacheSeedMeters = 1000.0

	nearbyRadiusMeters = 1000
	wideRadiusMeters   = 10000

	maxQueryWords = 5
)

// cityCategories are the place categories eligible as a "city" for
// geo-tagging purposes.
var cityCategories = map[string]struct{}{
	"City":                  {},
	"Neighborhood":          {},
	"Country":               {},
	"State/province/region": {},
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Searcher issues place searches against the Graph API.
type Searcher interface {
	SearchPlaces(ctx context.Context, token, query string, lat, lon float64, distanceMeters int) ([]graph.Place, error)
}

// Service resolves cities near a coordinate.
type Service struct {
	searcher Searcher
	cache    *ProximityCache
	log      *logger.Logger
}

// New creates a new place resolution service.
func New(searcher Searcher, cache *ProximityCache, log *logger.Logger) *Service {
	return &Service{
		searcher: searcher,
		cache:    cache,
		log:      log,
	}
}

// Cache returns the proximity cache backing this service.
func (s *Service) Cache() *ProximityCache {
	return s.cache
}

// ResolveCities returns the named places near coord, most relevant first.
//
// A cached result within 500 m is returned as-is without any network
// calls. A cached result within 1000 m seeds the working set. The
// resolver then searches with an empty query at 1000 m, builds a word
// frequency histogram from the returned place and city names, and
// re-searches at 10000 m with the most frequent words to pick up
// cities the nearby search missed. Search failures propagate to the
// caller and nothing is cached for the failed call.
func (s *Service) ResolveCities(ctx context.Context, token string, coord Coordinates) ([]graph.Place, error) {
	cached, dist, found := s.cache.Nearest(coord)
	if found && dist < cacheHitMeters {
		s.log.Debug("place cache hit", "distanceMeters", dist)
		return cached, nil
	}

	seen := make(map[string]struct{})
	var result []graph.Place
	if found && dist < cacheSeedMeters {
		result = make([]graph.Place, len(cached))
		copy(result, cached)
		for _, place := range cached {
			seen[place.ID] = struct{}{}
		}
	} else {
		result = make([]graph.Place, 0)
	}

	places, err := s.searcher.SearchPlaces(ctx, token, "", coord.Latitude, coord.Longitude, nearbyRadiusMeters)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	order := make([]string, 0, 32)
	for _, place := range places {
		cityName := ""
		if place.Location != nil {
			cityName = place.Location.City
		}
		for _, word := range tokenize(place.Name, cityName) {
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
		if _, dup := seen[place.ID]; !dup && IsCity(place) {
			result = append(result, place)
			seen[place.ID] = struct{}{}
		}
	}

	if len(order) == 0 {
		order = append(order, "city")
		counts["city"] = 1
	}

	// Stable sort keeps first-seen order among words with equal counts.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	threshold := counts[order[len(order)/2]]

	words := order
	if len(words) > maxQueryWords {
		words = words[:maxQueryWords]
	}
	for i, word := range words {
		// The most frequent word is always queried. Later words stop
		// the loop once their count falls to the median threshold.
		if i > 0 && counts[word] <= threshold {
			break
		}
		matches, err := s.searcher.SearchPlaces(ctx, token, word, coord.Latitude, coord.Longitude, wideRadiusMeters)
		if err != nil {
			return nil, err
		}
		for _, place := range matches {
			if _, dup := seen[place.ID]; !dup && IsCity(place) {
				result = append(result, place)
				seen[place.ID] = struct{}{}
			}
		}
	}

	s.cache.Add(coord, result)
	return result, nil
}

// NearestCity returns the city closest to coord, or nil when the list
// is empty or no entry carries coordinates.
func NearestCity(coord Coordinates, cities []graph.Place) *graph.Place {
	var nearest *graph.Place
	best := 1.0e12
	for i := range cities {
		loc := cities[i].Location
		if !loc.HasCoordinates() {
			continue
		}
		dist := Distance(coord, Coordinates{Latitude: *loc.Latitude, Longitude: *loc.Longitude})
		if dist < best {
			nearest = &cities[i]
			best = dist
		}
	}
	return nearest
}

// Distance computes the approximate separation in meters of two nearby
// coordinates using an equirectangular projection. The first argument's
// latitude sets the north-south scale, so Distance(a, b) and
// Distance(b, a) can differ slightly.
func Distance(a, b Coordinates) float64 {
	dx := (a.Longitude - b.Longitude) * metersPerDegree
	dy := (a.Latitude - b.Latitude) * metersPerDegree * math.Cos(a.Latitude*math.Pi/180)
	return math.Sqrt(dx*dx + dy*dy)
}

// IsCity reports whether a place qualifies as a city for geo-tagging:
// an eligible category with both coordinates present.
func IsCity(place graph.Place) bool {
	if _, ok := cityCategories[place.Category]; !ok {
		return false
	}
	return place.Location.HasCoordinates()
}

// tokenize splits a place name and its city name into histogram words.
// Each word loses at most one leading ","/"(" and one trailing ","/")",
// then words of more than two runes are kept, lowercased.
func tokenize(name, city string) []string {
	fields := strings.Fields(name)
	fields = append(fields, strings.Fields(city)...)

	words := make([]string, 0, len(fields))
	for _, word := range fields {
		if len(word) > 0 && (word[0] == ',' || word[0] == '(') {
			word = word[1:]
		}
		if len(word) > 0 && (word[len(word)-1] == ',' || word[len(word)-1] == ')') {
			word = word[:len(word)-1]
		}
		if utf8.RuneCountInString(word) > 2 {
			words = append(words, strings.ToLower(word))
		}
	}
	return words
}
