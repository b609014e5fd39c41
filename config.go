package cfddns

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvAPIToken          = "CF_API_TOKEN"
	EnvZoneID            = "ZONE_ID"
	EnvDomain            = "DOMAIN"
	EnvRecordNames       = "RECORDS_NAMES"
	EnvIPServiceURL      = "IP_SERVICE_URL"
	EnvAPIURL            = "CF_API_URL"
	EnvPushgatewayURL    = "PUSHGATEWAY_URL"
	EnvShoutrrrAddresses = "SHOUTRRR_ADDRESSES"
)

const (
	DefaultIPServiceURL  = "https://api.ipify.org?format=json"
	DefaultCloudflareURL = "https://api.cloudflare.com/client/v4"
)

// Config is built once at startup and passed to New.
type Config struct {
	APIToken   string
	ZoneID     string
	Domain     string
	Subdomains []string

	IPServiceURL      string
	APIURL            string
	PushgatewayURL    string
	ShoutrrrAddresses []string
}

// MissingVariableError names a required environment variable that was not set.
type MissingVariableError string

func (e MissingVariableError) Error() string {
	return fmt.Sprintf("environment variable %s not found", string(e))
}

// LoadConfig loads envFile into the process environment, if it can, and reads the configuration from it.
// Variables already present in the environment are not overridden by the file.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		// a missing or unparsable file is not an error: the environment may carry everything
		_ = godotenv.Load(envFile)
	}
	return ConfigFromEnv(os.LookupEnv)
}

// ConfigFromEnv reads the configuration through lookup, which has the signature of os.LookupEnv.
func ConfigFromEnv(lookup func(string) (string, bool)) (c Config, err error) {
	required := []struct {
		name string
		dst  *string
	}{
		{EnvAPIToken, &c.APIToken},
		{EnvZoneID, &c.ZoneID},
		{EnvDomain, &c.Domain},
	}
	for _, r := range required {
		if *r.dst, err = requireEnv(lookup, r.name); err != nil {
			return Config{}, err
		}
	}
	names, err := requireEnv(lookup, EnvRecordNames)
	if err != nil {
		return Config{}, err
	}
	c.Subdomains = SplitList(names)

	c.IPServiceURL = env(lookup, EnvIPServiceURL, DefaultIPServiceURL)
	c.APIURL = strings.TrimSuffix(env(lookup, EnvAPIURL, DefaultCloudflareURL), "/")
	c.PushgatewayURL = env(lookup, EnvPushgatewayURL, "")
	if addrs := env(lookup, EnvShoutrrrAddresses, ""); addrs != "" {
		c.ShoutrrrAddresses = SplitList(addrs)
	}
	return c, nil
}

// SplitList splits a comma separated list and trims each entry.
// Order and duplicates are preserved.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func requireEnv(lookup func(string) (string, bool), name string) (string, error) {
	v, found := lookup(name)
	if !found || v == "" {
		return "", MissingVariableError(name)
	}
	return v, nil
}

func env(lookup func(string) (string, bool), name string, defaultvalue string) string {
	e, found := lookup(name)
	if found && e != "" {
		return e
	}
	return defaultvalue
}
