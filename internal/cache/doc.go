// Package cache provides a small generic LRU cache for adapter objects that
// must be released when they fall out of the cache.
//
//	c := cache.New[key, gpucore.BindGroupID](8, func(_ key, g gpucore.BindGroupID) {
//		adapter.DestroyBindGroup(g)
//	})
//	g, err := c.GetOrCreate(k, create)
//
// LRU is not safe for concurrent use. Owners serialise access.
package cache
