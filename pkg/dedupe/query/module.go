package query

import "go.uber.org/fx"

// Module provides the query service to Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
