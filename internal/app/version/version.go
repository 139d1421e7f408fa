package version

// Default values are overridden at build time via -ldflags.
var (
	buildVersion = "dev"
	builtAt      = ""
)

type Info struct {
	Version string `json:"version"`
	BuiltAt string `json:"built_at,omitempty"`
}

func BuildVersion() string {
	return buildVersion
}

func BuiltAt() string {
	return builtAt
}

func GetInfo() Info {
	return Info{
		Version: buildVersion,
		BuiltAt: builtAt,
	}
}
