// Package deliver implements the delivery channels: everything that can take
// one identifier plus payload and hand it to an external mail transport.
package deliver

import (
	"fmt"

	"gaceta/internal/core"
)

// Settings covers both channel variants; each reads what it needs.
type Settings struct {
	Host     string
	Port     int
	From     string
	To       string
	Subject  string
	Body     string
	Password string
}

var factoryFuncs = map[string]func(name string, settings Settings) (core.Deliverer, error){}

func Register(deliveryType string, fn func(name string, settings Settings) (core.Deliverer, error)) {
	factoryFuncs[deliveryType] = fn
}

func New(deliveryType, name string, settings Settings) (core.Deliverer, error) {
	fn, exists := factoryFuncs[deliveryType]
	if !exists {
		return nil, fmt.Errorf("unsupported delivery type: %s", deliveryType)
	}

	if settings.To == "" {
		return nil, fmt.Errorf("delivery %s: recipient address is required", name)
	}

	return fn(name, settings)
}
