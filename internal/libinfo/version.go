/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo reports the version of the library for user agents and the CLI.
package libinfo

import (
	"regexp"
	"runtime/debug"
	"sync"
)

const libShortName = "go-callkit"

const moduleName = "github.com/acronis/" + libShortName

const unknownVersion = "v0.0.0"

var (
	libVersion     string
	libVersionOnce sync.Once
)

// Version returns the version of the library as recorded in the build info of the binary.
func Version() string {
	libVersionOnce.Do(func() {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			libVersion = findModuleVersion(buildInfo, moduleName)
		}
		if libVersion == "" {
			libVersion = unknownVersion
		}
	})
	return libVersion
}

// UserAgent returns the User-Agent header value for HTTP requests made by the library.
func UserAgent() string {
	return libShortName + "/" + Version()
}

// findModuleVersion looks up the module either as the main module of the binary or among its dependencies.
// Major version suffixes ("/v2") are matched too.
func findModuleVersion(buildInfo *debug.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return ""
}
