package meta

import (
	"fmt"
	"runtime"
)

// Info describes the build context of a resplite binary.
//
// Most of it is set at build time by the Go linker, see the vars below.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// These will be filled in using the linker -X flag
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// Go Tag is the Go build tags. See the following references for more info.
	//
	// * https://golang.org/pkg/go/build/#hdr-Build_Constraints
	// * https://www.digitalocean.com/community/tutorials/customizing-go-binaries-with-build-tags
	// * https://dave.cheney.net/2013/10/12/how-to-use-conditional-compilation-with-the-go-build-tool
	//
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
// Fields the linker did not set are reported as "unknown", except GoTag.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   orUnknown(Version),
		Build:     orUnknown(Build),
		Branch:    orUnknown(Branch),
		BuildTime: orUnknown(BuildTimeUTC),
		GoTag:     GoTag,
		Platform:  platform,
	}
}

// String renders the info the way the version command prints it.
func (i Info) String() string {
	s := fmt.Sprintf("resplite %s (%s, %s)\nbuilt %s with %s for %s",
		i.Version, i.Build, i.Branch, i.BuildTime, i.GoVersion, i.Platform)

	if i.GoTag != "" {
		s += fmt.Sprintf(" [%s]", i.GoTag)
	}

	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
