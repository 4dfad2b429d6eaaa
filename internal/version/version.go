package version

// Version is the current version of the anonymate binary.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/shobhitrajxyz/anonymate-app/internal/version.Version=v1.0.0'"
var Version = "dev"
