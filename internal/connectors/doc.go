// Package connectors holds the source connectors of the mirror. Each
// subpackage adapts one source API to driven.Connector:
//
//   - gmail: mailbox labels, paged by the list page token
//   - github: repository issues, paged by offset, with an issue-event audit feed
//   - notion: database pages, paged by the query cursor
//
// Builtin returns their builders for registration with the ConnectorFactory
// at startup.
package connectors
