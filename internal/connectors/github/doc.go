// Package github implements a connector mirroring GitHub issues.
//
// Each configured repository is one scope ("github/issue/owner/name").
// Issues are paged by offset, ordered by update time, with their comments
// as child items. The author is granted ownership of an issue and its
// assignees write access; users are keyed by email or by their noreply
// address.
//
// The connector is also a permission source: assignment changes in the
// repository issue events feed mark issues whose grants must be refreshed.
//
// # Configuration
//
//   - repos: comma-separated "owner/name" list (required)
//   - state: all, open or closed (default all)
//   - base_url: API endpoint for GitHub Enterprise
//
// # Rate Limiting
//
// Requests are throttled by a token bucket at about 1.2 requests per second,
// and the X-RateLimit-Remaining and X-RateLimit-Reset headers pause the
// client until the quota resets. Rate limit responses unwrap to
// domain.ErrRateLimited so the engine retries the page.
package github
