package version

import "os"

const (
	// EnvironmentVariable overrides the reported environment label in release builds.
	EnvironmentVariable = "APPSHELL_ENV"

	developmentEnvironment = "development"
	productionEnvironment  = "production"
	releaseBuildMode       = "release"
)

// IsRelease reports whether the binary was built in release mode.
func IsRelease() bool {
	return BuildMode == releaseBuildMode
}

// Environment returns the environment label shown to the UI: "development" for
// development builds, otherwise the APPSHELL_ENV value or "production" when unset.
func Environment() string {
	return environment(IsRelease(), os.LookupEnv)
}

func environment(release bool, lookup func(string) (string, bool)) string {
	if !release {
		return developmentEnvironment
	}

	if value, ok := lookup(EnvironmentVariable); ok {
		return value
	}

	return productionEnvironment
}
