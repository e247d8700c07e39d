// Package common holds process-wide constants and the logger setup shared
// by all commands.
package common

// PackageName is used as the metrics namespace and default service tag.
const PackageName = "agent-registry"

// Version is set at build time via -ldflags.
var Version = "dev"
