package browser

import (
	"context"
	"fmt"

	"github.com/roomkeeper/roomkeeper/pkg/config"
)

// Open launches the configured driver and returns a Driver with one open page.
func Open(ctx context.Context, opts Options) (Driver, error) {
	opts = opts.withDefaults()

	switch opts.Engine {
	case config.EnginePlaywright:
		return openPlaywright(opts)
	case config.EngineRod:
		return openRod(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported browser engine: %s", opts.Engine)
	}
}
