package build

// Version is set at build time via -ldflags.
var Version = "v0.0.0-dev"
