package logging

import (
	"go.uber.org/fx"
)

// Module provides the logging run listener into the "run_listeners" group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLoggingRunListener, fx.ResultTags(`group:"run_listeners"`))),
)
