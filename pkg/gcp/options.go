package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/hopl-labs/hopl-backend/pkg/config"
)

// ClientOptions picks explicit credentials when configured. Inline JSON wins over a file path;
// with neither, the SDK falls back to Application Default Credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.ApplicationCredentials))
	}
	return opts
}
