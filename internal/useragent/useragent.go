package useragent

import (
	"fmt"
	"strings"

	"github.com/vectorstack-ai/go-vectorstackai/internal"
)

func getPackageVersion() string {
	return internal.Version
}

// BuildUserAgent returns the User-Agent value sent with every request, with the
// normalized source tag appended when one is set.
func BuildUserAgent(sourceTag string) string {
	return buildUserAgent("go-vectorstackai", sourceTag)
}

// BuildUserAgentCLI is the User-Agent used by the vstack command.
func BuildUserAgentCLI(sourceTag string) string {
	return buildUserAgent("go-vectorstackai[cli]", sourceTag)
}

func buildUserAgent(appName string, sourceTag string) string {
	appVersion := getPackageVersion()

	sourceTagInfo := ""
	if sourceTag != "" {
		sourceTagInfo = buildSourceTagField(sourceTag)
	}
	return fmt.Sprintf("%s/%s%s", appName, appVersion, sourceTagInfo)
}

func buildSourceTagField(sourceTag string) string {
	sourceTag = strings.ToLower(sourceTag)

	// Limit charset to [a-z0-9_ :]
	var strBldr strings.Builder
	for _, char := range sourceTag {
		if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') || char == '_' || char == ' ' || char == ':' {
			strBldr.WriteRune(char)
		}
	}

	// Condense runs of whitespace into a single underscore
	normalized := strings.Join(strings.Fields(strBldr.String()), "_")

	return fmt.Sprintf("; source_tag=%s;", normalized)
}
