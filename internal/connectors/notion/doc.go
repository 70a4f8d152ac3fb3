// Package notion implements a connector that mirrors the pages of Notion
// databases.
//
// Each database is one scope, queried oldest edit first and paged with the
// query's start cursor. Page payloads arrive in two shapes: database rows
// carry their title in whichever property has the title type, while pages
// parented by another page or the workspace use the "title" property.
// Both are normalized before conversion. File, PDF, image, video and audio
// blocks become attachment children.
//
// The public API has no audit feed, so permissions are limited to the page
// creator (owner) and last editor (writer) when their emails are visible.
package notion
