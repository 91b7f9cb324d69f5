package meeting

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

var ErrNoCredentials = errors.New("no usable service account credentials found")

const serviceAccountFile = "service-account.json"

// GoogleEnv is the standard Google credentials environment.
type GoogleEnv struct {
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type Credentials struct {
	Path        string
	JSON        []byte
	ClientEmail string
}

// CandidatePaths lists credential locations in probe order: the
// configured file, the working directory, its config/google folder, the
// executable's config/google folder and GOOGLE_APPLICATION_CREDENTIALS.
func CandidatePaths(explicit string) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(wd, serviceAccountFile),
			filepath.Join(wd, "config", "google", serviceAccountFile),
		)
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), "config", "google", serviceAccountFile))
	}

	var env GoogleEnv
	if err := envconfig.Process("", &env); err == nil && env.ApplicationCredentials != "" {
		paths = append(paths, env.ApplicationCredentials)
	}
	return paths
}

// ResolveCredentials returns the first path holding a parseable service
// account key. Missing and malformed files are skipped.
func ResolveCredentials(paths []string) (*Credentials, error) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		cfg, err := google.JWTConfigFromJSON(data, calendar.CalendarScope)
		if err != nil {
			continue
		}
		return &Credentials{Path: path, JSON: data, ClientEmail: cfg.Email}, nil
	}
	return nil, ErrNoCredentials
}
