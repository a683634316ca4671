// Package commits resolves a revision range of a working copy into an
// ordered list of commit descriptors.
package commits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mslinn/commitbench/pkg/git"
)

// metadataFormat yields author date, sha, author email, subject and body,
// tab separated. The body is last so embedded tabs and newlines stay in it.
const metadataFormat = "--pretty=%aI%x09%H%x09%aE%x09%s%x09%b"

// ErrMalformedRecord is returned when a metadata record does not have 5 fields.
var ErrMalformedRecord = errors.New("malformed commit metadata record")

// Commit describes one commit. It is never mutated after Enumerate returns it.
type Commit struct {
	SHA       string
	Timestamp time.Time
	Title     string
	Message   string
	Author    string

	// Current marks the descriptor of the working copy's present state,
	// returned when no range was requested. It must not be checked out.
	Current bool
}

// ShortSHA returns the first 8 characters of the sha
func (c Commit) ShortSHA() string {
	if len(c.SHA) > 8 {
		return c.SHA[:8]
	}
	return c.SHA
}

// Enumerate resolves start/end in the working copy behind g.
//
// With neither given it returns the current HEAD as a single Current commit.
// With only start it returns the commit start resolves to. With both it
// returns start and every commit in start..end, oldest first.
// Any git failure aborts enumeration; there is no partial result.
func Enumerate(ctx context.Context, g *git.Context, start, end string) ([]Commit, error) {
	var shas []string

	switch {
	case start == "" && end == "":
		out, err := g.Log(ctx, "-1", "--pretty=%H")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve current commit: %w", err)
		}
		shas = splitLines(out)
	case end == "":
		out, err := g.Log(ctx, "-1", start, "--pretty=%H")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve commit %s: %w", start, err)
		}
		shas = splitLines(out)
	case start == "":
		return nil, fmt.Errorf("end commit %s given without a start commit", end)
	default:
		first, err := g.Log(ctx, "-1", start, "--pretty=%H")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve commit %s: %w", start, err)
		}
		out, err := g.Log(ctx, "--pretty=%H", start+".."+end)
		if err != nil {
			return nil, fmt.Errorf("failed to list commits %s..%s: %w", start, end, err)
		}
		// git log is newest first
		rangeSHAs := splitLines(out)
		reverse(rangeSHAs)
		shas = append(splitLines(first), rangeSHAs...)
	}

	commits := make([]Commit, 0, len(shas))
	for _, sha := range shas {
		out, err := g.Log(ctx, sha, "-1", metadataFormat)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata of %s: %w", sha, err)
		}
		commit, err := ParseRecord(out)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", sha, err)
		}
		commit.Current = start == "" && end == ""
		commits = append(commits, commit)
	}

	return commits, nil
}

// ParseRecord parses one metadataFormat record. Only the first four tabs
// delimit fields; the message body keeps any tabs or newlines it contains.
func ParseRecord(record string) (Commit, error) {
	fields := strings.SplitN(record, "\t", 5)
	if len(fields) != 5 {
		return Commit{}, fmt.Errorf("%w: got %d fields, want 5", ErrMalformedRecord, len(fields))
	}

	timestamp, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[0]))
	if err != nil {
		return Commit{}, fmt.Errorf("%w: bad author date %q: %v", ErrMalformedRecord, fields[0], err)
	}

	return Commit{
		Timestamp: timestamp,
		SHA:       fields[1],
		Author:    fields[2],
		Title:     fields[3],
		Message:   strings.TrimRight(fields[4], "\n"),
	}, nil
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
