package analysis

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultNoisePrefixes are commit message prefixes that do not reflect authored work
var DefaultNoisePrefixes = []string{"Merge", "Update"}

// unknownAuthor is what the hosting API reports when a commit has no author name
const unknownAuthor = "Unknown"

// Preprocessor applies the caller-side commit policy before aggregation:
// noise commits and anonymous authors are dropped.
type Preprocessor struct {
	noisePrefixes []string
}

// NewPreprocessor creates a preprocessor. A nil prefixes slice selects the defaults;
// an empty non-nil slice disables message filtering.
func NewPreprocessor(noisePrefixes []string) *Preprocessor {
	if noisePrefixes == nil {
		noisePrefixes = DefaultNoisePrefixes
	}
	return &Preprocessor{noisePrefixes: append([]string(nil), noisePrefixes...)}
}

// IsNoise reports whether message starts with a configured noise prefix
func (p *Preprocessor) IsNoise(message string) bool {
	for _, prefix := range p.noisePrefixes {
		if prefix != "" && strings.HasPrefix(message, prefix) {
			return true
		}
	}
	return false
}

// Keep reports whether a commit should reach the aggregator
func (p *Preprocessor) Keep(c CommitRecord) bool {
	author := strings.TrimSpace(c.Author)
	if author == "" || author == unknownAuthor {
		return false
	}
	return !p.IsNoise(c.Message)
}

// FilterCommits returns the kept commits ordered oldest first
func (p *Preprocessor) FilterCommits(commits []CommitRecord) []CommitRecord {
	kept := make([]CommitRecord, 0, len(commits))
	for _, c := range commits {
		if p.Keep(c) {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	return kept
}

// ErrInvalidRepositoryURL is returned when a repository URL has no owner/repo pair
var ErrInvalidRepositoryURL = errors.New("repository URL does not name an owner and repository")

// RepositoryRef identifies a repository on the hosting service
type RepositoryRef struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Repo
}

// ParseRepositoryURL decomposes https, ssh (git@host:owner/repo), scheme-less
// (github.com/owner/repo) and bare owner/repo references. For URLs the first
// two path segments name the repository, so browser links such as
// .../owner/repo/tree/main resolve too.
func ParseRepositoryURL(raw string) (RepositoryRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RepositoryRef{}, ErrInvalidRepositoryURL
	}

	var path string
	bare := false
	switch {
	case strings.HasPrefix(s, "git@"):
		_, after, ok := strings.Cut(s, ":")
		if !ok {
			return RepositoryRef{}, fmt.Errorf("%w: %q", ErrInvalidRepositoryURL, raw)
		}
		path = after
	case strings.Contains(s, "://"), hasHostPrefix(s):
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return RepositoryRef{}, fmt.Errorf("%w: %q", ErrInvalidRepositoryURL, raw)
		}
		path = u.Path
	default:
		path = s
		bare = true
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	segments := make([]string, 0, 4)
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) < 2 || (bare && len(segments) != 2) {
		return RepositoryRef{}, fmt.Errorf("%w: %q", ErrInvalidRepositoryURL, raw)
	}

	return RepositoryRef{
		Owner: segments[0],
		Repo:  strings.TrimSuffix(segments[1], ".git"),
	}, nil
}

// hasHostPrefix reports whether a scheme-less reference starts with a host
// name. Owner names never contain a dot.
func hasHostPrefix(s string) bool {
	first, _, ok := strings.Cut(s, "/")
	return ok && strings.Contains(first, ".")
}
