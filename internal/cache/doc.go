// Package cache provides a cost-bounded LRU cache.
//
// The cache backs both the decoded B-tree node cache (cost = 1 per node) and
// the page byte cache of pagestore.CachingStore (cost = len(bytes)). Memory
// charged to an optional resource.Controller is released on eviction.
package cache
