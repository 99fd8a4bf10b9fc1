package accumulator

import (
	"go.uber.org/fx"
)

// Module provides the durable accumulator to Fx as the Accumulator interface.
// Processes that do not need durable accumulation can supply a
// MemoryAccumulator instead.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewDurableAccumulator,
			fx.As(new(Accumulator)),
		),
	),
)
