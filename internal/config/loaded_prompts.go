package config

import (
	"sync"
)

var (
	loadedPromptsMu sync.RWMutex
	loadedPrompts   = map[string]LoadedPrompts{}
)

// LoadedPrompts holds prompt text read from files for one operation.
type LoadedPrompts struct {
	System string
	User   string
}

// GetPromptsForOperation returns a copy of the file-loaded prompts for an
// operation. Missing entries are empty.
func GetPromptsForOperation(op string) LoadedPrompts {
	loadedPromptsMu.RLock()
	defer loadedPromptsMu.RUnlock()
	return loadedPrompts[op]
}

func setLoadedPrompts(op string, p LoadedPrompts) {
	loadedPromptsMu.Lock()
	defer loadedPromptsMu.Unlock()
	loadedPrompts[op] = p
}

func resetLoadedPrompts() {
	loadedPromptsMu.Lock()
	defer loadedPromptsMu.Unlock()
	loadedPrompts = map[string]LoadedPrompts{}
}
