package github

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// Configuration keys of a github unit.
const (
	ConfigRepos   = "repos"
	ConfigState   = "state"
	ConfigBaseURL = "base_url"
)

// RepoRef names a repository.
type RepoRef struct {
	Owner string
	Name  string
}

// String returns "owner/name".
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoRef parses "owner/name".
func ParseRepoRef(s string) (RepoRef, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("%w: %q", ErrInvalidRepo, s)
	}
	return RepoRef{Owner: owner, Name: name}, nil
}

// IssueID returns the external id of an issue: "owner/name#number".
func IssueID(repo RepoRef, number int) string {
	return repo.String() + "#" + strconv.Itoa(number)
}

// ParseIssueID splits an external id produced by IssueID.
func ParseIssueID(id string) (RepoRef, int, error) {
	ref, num, ok := strings.Cut(id, "#")
	if !ok {
		return RepoRef{}, 0, fmt.Errorf("%w: %q", ErrInvalidExternalID, id)
	}
	repo, err := ParseRepoRef(ref)
	if err != nil {
		return RepoRef{}, 0, fmt.Errorf("%w: %q", ErrInvalidExternalID, id)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return RepoRef{}, 0, fmt.Errorf("%w: %q", ErrInvalidExternalID, id)
	}
	return repo, n, nil
}

// Config holds the parsed configuration for a GitHub unit.
type Config struct {
	// Repos are the repositories to mirror, one scope each.
	Repos []RepoRef

	// State filters issues by state: all, open or closed. Default: all.
	State string

	// BaseURL overrides the API endpoint (GitHub Enterprise).
	BaseURL string
}

// ParseConfig parses a unit's config map into a Config struct.
func ParseConfig(unit domain.SyncUnit) (*Config, error) {
	cfg := &Config{State: "all", BaseURL: unit.Config[ConfigBaseURL]}

	for _, part := range strings.Split(unit.Config[ConfigRepos], ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		repo, err := ParseRepoRef(part)
		if err != nil {
			return nil, fmt.Errorf("%w: unit %s: %w", domain.ErrConfiguration, unit.ID, err)
		}
		cfg.Repos = append(cfg.Repos, repo)
	}
	if len(cfg.Repos) == 0 {
		return nil, fmt.Errorf("%w: unit %s: no repositories configured", domain.ErrConfiguration, unit.ID)
	}

	if s := strings.ToLower(strings.TrimSpace(unit.Config[ConfigState])); s != "" {
		switch s {
		case "all", "open", "closed":
			cfg.State = s
		default:
			return nil, fmt.Errorf("%w: unit %s: invalid issue state %q", domain.ErrConfiguration, unit.ID, s)
		}
	}
	return cfg, nil
}
