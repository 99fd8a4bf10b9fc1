package normalize

import (
	"go.uber.org/fx"

	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
)

// Module provides the normalizer to Fx as the port.Normalizer interface.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewCachedNormalizer,
			fx.As(new(port.Normalizer)),
		),
	),
)
