package cli

import (
	"fmt"
	"os"
	"strings"
)

// envPrefix namespaces every environment default.
const envPrefix = "WORKERMGR_"

// envName maps a flag name to its environment variable: sock-name -> WORKERMGR_SOCK_NAME.
func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func envSet(flag string) bool { return os.Getenv(envName(flag)) != "" }

func envStr(flag, def string) string {
	if v := os.Getenv(envName(flag)); v != "" {
		return v
	}
	return def
}

func envBool(flag string, def bool) bool {
	v := os.Getenv(envName(flag))
	if v == "" {
		return def
	}
	s := strings.ToLower(v)
	return s == "1" || s == "true" || s == "yes"
}

func envInt(flag string, def int) int {
	if v := os.Getenv(envName(flag)); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}
