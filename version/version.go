// Package version is stamped at build time:
//
//	go build -ldflags "-X supctl/version.Version=1.2.0 -X supctl/version.GitHash=$(git rev-parse --short HEAD)"
package version

var (
	Version   = "dev"
	GitHash   = "unknown"
	BuildDate = "unknown"
)
