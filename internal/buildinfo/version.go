// Package buildinfo exposes build metadata set through -ldflags.
package buildinfo

// Version is overridden at build time with
// -ldflags "-X github.com/silver2dream/hardnested-bot/internal/buildinfo.Version=v1.2.3".
var Version = "dev"
