package github

import (
	"context"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// RecordTypeIssue is the record type of mirrored issues.
const RecordTypeIssue = "issue"

// noreplyDomain keys users that expose no email.
const noreplyDomain = "users.noreply.github.com"

// buildIssue converts an issue and its comments into an ExternalItem.
func buildIssue(repo RepoRef, issue *gh.Issue, comments []*gh.IssueComment) domain.ExternalItem {
	id := IssueID(repo, issue.GetNumber())
	updated := issue.GetUpdatedAt().Time

	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = l.GetName()
	}

	item := domain.ExternalItem{
		ExternalID: id,
		Revision:   revision(updated),
		Type:       RecordTypeIssue,
		GroupID:    repo.String(),
		Title:      issue.GetTitle(),
		CreatedAt:  issue.GetCreatedAt().Time,
		UpdatedAt:  updated,
		Grants:     issueGrants(issue),
		Metadata: map[string]any{
			"number":   issue.GetNumber(),
			"state":    issue.GetState(),
			"labels":   labels,
			"html_url": issue.GetHTMLURL(),
			"comments": issue.GetComments(),
		},
	}

	for _, c := range comments {
		child := domain.ChildItem{
			ExternalID: id + "/comment/" + strconv.FormatInt(c.GetID(), 10),
			Revision:   revision(c.GetUpdatedAt().Time),
			Kind:       domain.ChildComment,
			Title:      commentTitle(c.GetBody()),
			CreatedAt:  c.GetCreatedAt().Time,
			UpdatedAt:  c.GetUpdatedAt().Time,
		}
		if ref, ok := userRef(c.GetUser()); ok {
			child.Grants = []domain.Grant{{Principal: ref, Type: domain.PermissionOwner}}
		}
		item.Children = append(item.Children, child)
	}
	return item
}

// issueGrants grants the author ownership and the assignees write access.
func issueGrants(issue *gh.Issue) []domain.Grant {
	var grants []domain.Grant
	if ref, ok := userRef(issue.GetUser()); ok {
		grants = append(grants, domain.Grant{Principal: ref, Type: domain.PermissionOwner})
	}
	for _, a := range issue.Assignees {
		if ref, ok := userRef(a); ok {
			grants = append(grants, domain.Grant{Principal: ref, Type: domain.PermissionWriter})
		}
	}
	return grants
}

// userRef keys a user by email, or by the noreply address of the login.
func userRef(u *gh.User) (domain.PrincipalRef, bool) {
	if u == nil || u.GetLogin() == "" {
		return domain.PrincipalRef{}, false
	}
	key := u.GetEmail()
	if key == "" {
		key = u.GetLogin() + "@" + noreplyDomain
	}
	return domain.PrincipalRef{Kind: domain.PrincipalUser, Key: key, DisplayName: u.GetLogin()}, true
}

func revision(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func commentTitle(body string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(body), "\n")
	if len(line) > 80 {
		line = line[:80]
	}
	return line
}

// fetchComments loads the comments of an issue when it has any.
func fetchComments(ctx context.Context, client *Client, repo RepoRef, issue *gh.Issue) ([]*gh.IssueComment, error) {
	if issue.GetComments() == 0 {
		return nil, nil
	}
	return client.ListIssueComments(ctx, repo, issue.GetNumber())
}
