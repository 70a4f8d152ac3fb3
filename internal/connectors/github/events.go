package github

import (
	"strconv"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// PermissionEventKinds are the issue event types that change the grants
// derived by issueGrants.
var PermissionEventKinds = []string{"assigned", "unassigned", "transferred"}

// AuditObjectIssue is the audit object type carrying an issue id.
const AuditObjectIssue = "issue"

// buildAuditEvent converts an issue event into an audit feed entry.
func buildAuditEvent(repo RepoRef, ev *gh.IssueEvent) domain.AuditEvent {
	out := domain.AuditEvent{
		ID:   repo.String() + "/events/" + strconv.FormatInt(ev.GetID(), 10),
		Kind: ev.GetEvent(),
		At:   ev.GetCreatedAt().Time,
	}
	if ev.Issue != nil && !ev.Issue.IsPullRequest() {
		out.Objects = append(out.Objects, domain.AuditObject{
			Type: AuditObjectIssue,
			ID:   IssueID(repo, ev.Issue.GetNumber()),
		})
	}
	return out
}
