package version

// Version is set at build time:
//
//	go build -ldflags "-X github.com/kelda/licensemaker/pkg/version.Version=v1.2.0" ./cli
var Version = "latest"
