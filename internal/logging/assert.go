package logging

import "github.com/vvka-141/txwrap/pkg/txwrap"

// Verify the loggers implement txwrap.Logger at compile time
var (
	_ txwrap.Logger = (*ConsoleLogger)(nil)
	_ txwrap.Logger = (*NullLogger)(nil)
	_ txwrap.Logger = (*RecordingLogger)(nil)
)
