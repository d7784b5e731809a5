package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alvinbot/alvin/pkg/provider/llm"
	"github.com/alvinbot/alvin/pkg/provider/stt"
	"github.com/alvinbot/alvin/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// kind holds the registered factories for one pipeline stage.
type kind[T any] struct {
	mu        sync.RWMutex
	stage     string
	factories map[string]Factory[T]
}

func (k *kind[T]) register(name string, f Factory[T]) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.factories == nil {
		k.factories = make(map[string]Factory[T])
	}
	k.factories[name] = f
}

func (k *kind[T]) create(entry ProviderEntry) (T, error) {
	k.mu.RLock()
	f, ok := k.factories[entry.Name]
	k.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, k.stage, entry.Name)
	}
	return f(entry)
}

// Registry maps provider names to their constructor functions for each
// pipeline stage. It is safe for concurrent use.
type Registry struct {
	stt kind[stt.Provider]
	llm kind[llm.Provider]
	tts kind[tts.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	r := &Registry{}
	r.stt.stage = "stt"
	r.llm.stage = "llm"
	r.tts.stage = "tts"
	return r
}

// RegisterSTT registers an STT provider factory under name. Registering the
// same name again overwrites the previous factory.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) { r.stt.register(name, f) }

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { r.llm.register(name, f) }

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) { r.tts.register(name, f) }

// CreateSTT instantiates the STT provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] when the name is unknown.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) { return r.stt.create(entry) }

// CreateLLM instantiates the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) { return r.llm.create(entry) }

// CreateTTS instantiates the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) { return r.tts.create(entry) }
