package engine

import "maps"

// MarkLoaded records that the integration ref for key is running in this
// process.
func (e *Engine) MarkLoaded(key, ref string) {
	e.loadedMu.Lock()
	defer e.loadedMu.Unlock()
	e.loaded[key] = ref
}

// MarkUnloaded removes key from the loaded set.
func (e *Engine) MarkUnloaded(key string) {
	e.loadedMu.Lock()
	defer e.loadedMu.Unlock()
	delete(e.loaded, key)
}

// IsLoaded reports whether key is in the loaded set.
func (e *Engine) IsLoaded(key string) bool {
	e.loadedMu.RLock()
	defer e.loadedMu.RUnlock()
	_, ok := e.loaded[key]
	return ok
}

// Loaded returns a copy of the loaded set, keyed by module key with the
// integration ref as value.
func (e *Engine) Loaded() map[string]string {
	e.loadedMu.RLock()
	defer e.loadedMu.RUnlock()
	return maps.Clone(e.loaded)
}
