package stackgen

import "github.com/ethereum/go-ethereum/metrics"

var (
	compiledCounter     = metrics.NewRegisteredCounter("stackgen/compiled", nil)
	stackTooDeepCounter = metrics.NewRegisteredCounter("stackgen/stacktoodeep", nil)
	shuffleOpsCounter   = metrics.NewRegisteredCounter("stackgen/shuffle_ops", nil)
	layoutTimer         = metrics.NewRegisteredTimer("stackgen/layout_ns", nil)
	cacheHitCounter     = metrics.NewRegisteredCounter("stackgen/cache_hit", nil)
	cacheMissCounter    = metrics.NewRegisteredCounter("stackgen/cache_miss", nil)
)
