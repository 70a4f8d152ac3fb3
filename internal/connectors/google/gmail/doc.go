// Package gmail implements a connector that mirrors Gmail messages.
//
// Each configured label is one scope paged with the messages.list page
// token. Messages of a thread are linked to the thread's first message;
// attachments become child records. The sender owns a message and the
// To, Cc and Bcc recipients are readers.
//
// Gmail exposes no permission audit feed, so the connector does not
// implement driven.PermissionSource.
package gmail
