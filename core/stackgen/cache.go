package stackgen

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
)

const layoutCacheCap = 1024

var layoutCache *lru.Cache[common.Hash, *Layout]

func init() {
	layoutCache = lru.NewCache[common.Hash, *Layout](layoutCacheCap)
}

// CompileLayout runs GenerateLayout, consulting and populating the
// package-level layout cache keyed by codeHash when opts.EnableCache is set.
// codeHash identifies the compilation unit the way go-ethereum identifies a
// contract's runtime code: callers that already compute one (e.g. from an
// InMemorySink's assembled bytecode, or their own source hash) should reuse
// it rather than rehash.
func CompileLayout(dfg *DFG, codeHash common.Hash, opts CompileOptions) (*Layout, error) {
	if !opts.EnableCache {
		return GenerateLayout(dfg, opts)
	}

	if layout, ok := layoutCache.Get(codeHash); ok {
		cacheHitCounter.Inc(1)
		return layout, nil
	}
	cacheMissCounter.Inc(1)

	layout, err := GenerateLayout(dfg, opts)
	if err != nil {
		return nil, err
	}
	layoutCache.Add(codeHash, layout)
	return layout, nil
}

// InvalidateLayout drops codeHash's cached layout, if any.
func InvalidateLayout(codeHash common.Hash) {
	layoutCache.Remove(codeHash)
}
