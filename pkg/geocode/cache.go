package geocode

import (
	"strings"

	"go.uber.org/zap"
)

// cacheKey normalises a place name for memoisation.
func cacheKey(place string) string {
	return strings.ToLower(strings.Join(strings.Fields(place), " "))
}

func (g *geocoder) lookupCache(key string) (*Result, bool) {
	v, ok := g.cache.Load(key)
	if !ok {
		return nil, false
	}
	zap.L().Debug("geocode cache hit", zap.String("place", key))
	r := *v.(*Result)
	return &r, true
}

func (g *geocoder) storeCache(key string, r *Result) {
	cp := *r
	g.cache.Store(key, &cp)
}
