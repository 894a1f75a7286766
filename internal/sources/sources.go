// Package sources implements the listing strategies. Every source produces
// the same thing: an ordered, finite stream of candidate items with a stable
// identifier and a fetch URL. Which strategy runs is picked by type string.
package sources

import (
	"fmt"
	"log/slog"

	"gaceta/internal/core"
)

// Settings is the common knob set; each source reads the fields it needs.
type Settings struct {
	URL       string
	Ref       string
	Extension string
	MaxItems  int
	Token     string
	Logger    *slog.Logger
}

var factoryFuncs = map[string]func(name string, settings Settings) (core.Source, error){}

func Register(sourceType string, fn func(name string, settings Settings) (core.Source, error)) {
	factoryFuncs[sourceType] = fn
}

func New(sourceType, name string, settings Settings) (core.Source, error) {
	fn, exists := factoryFuncs[sourceType]
	if !exists {
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}

	if settings.URL == "" {
		return nil, fmt.Errorf("source %s: url is required", name)
	}
	if settings.Extension == "" {
		settings.Extension = ".epub"
	}
	if settings.Logger == nil {
		settings.Logger = slog.Default()
	}

	return fn(name, settings)
}
