package gmail

import (
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// RecordTypeMessage is the record type of mirrored messages.
const RecordTypeMessage = "message"

// webURLPrefix opens a message in the Gmail web client.
const webURLPrefix = "https://mail.google.com/mail/u/0/#all/"

// buildMessage converts a message fetched in full format into an ExternalItem.
// Messages of a thread are siblings of the thread root; attachments are
// children. The sender owns a message and its recipients can read it.
func buildMessage(msg *gmail.Message, label string) domain.ExternalItem {
	at := time.UnixMilli(msg.InternalDate).UTC()
	headers := headerMap(msg.Payload)

	item := domain.ExternalItem{
		ExternalID: msg.Id,
		Revision:   strconv.FormatUint(msg.HistoryId, 10),
		Type:       RecordTypeMessage,
		GroupID:    label,
		Title:      headers["subject"],
		CreatedAt:  at,
		UpdatedAt:  at,
		Deleted:    slices.Contains(msg.LabelIds, "TRASH"),
		Metadata: map[string]any{
			"thread_id": msg.ThreadId,
			"labels":    msg.LabelIds,
			"snippet":   msg.Snippet,
			"web_url":   webURLPrefix + msg.Id,
		},
	}
	if msg.ThreadId != "" && msg.ThreadId != msg.Id {
		item.SiblingExternalID = msg.ThreadId
	}

	item.Grants = append(item.Grants, grants(headers["from"], domain.PermissionOwner)...)
	for _, h := range []string{"to", "cc", "bcc"} {
		item.Grants = append(item.Grants, grants(headers[h], domain.PermissionReader)...)
	}

	for _, part := range attachments(msg.Payload) {
		item.Children = append(item.Children, domain.ChildItem{
			ExternalID: msg.Id + "/attachment/" + part.PartId,
			Revision:   item.Revision,
			Kind:       domain.ChildAttachment,
			Title:      part.Filename,
			CreatedAt:  at,
			UpdatedAt:  at,
		})
	}
	return item
}

// headerMap returns the top-level headers keyed by lower-case name.
func headerMap(p *gmail.MessagePart) map[string]string {
	out := map[string]string{}
	if p == nil {
		return out
	}
	for _, h := range p.Headers {
		k := strings.ToLower(h.Name)
		if _, ok := out[k]; !ok {
			out[k] = h.Value
		}
	}
	return out
}

// grants parses an address list header. Unparseable entries are dropped.
func grants(header string, t domain.PermissionType) []domain.Grant {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(header)
	if err != nil {
		addrs = nil
		for _, part := range strings.Split(header, ",") {
			if a, err := mail.ParseAddress(strings.TrimSpace(part)); err == nil {
				addrs = append(addrs, a)
			}
		}
	}
	out := make([]domain.Grant, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, domain.Grant{
			Principal: domain.PrincipalRef{Kind: domain.PrincipalUser, Key: a.Address, DisplayName: a.Name},
			Type:      t,
		})
	}
	return out
}

// attachments walks the MIME tree for parts stored as attachments.
func attachments(p *gmail.MessagePart) []*gmail.MessagePart {
	if p == nil {
		return nil
	}
	var out []*gmail.MessagePart
	if p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "" {
		out = append(out, p)
	}
	for _, child := range p.Parts {
		out = append(out, attachments(child)...)
	}
	return out
}

// shouldSync drops spam and trash unless the unit includes them.
func shouldSync(msg *gmail.Message, cfg *Config) bool {
	if cfg.IncludeSpamTrash {
		return true
	}
	return !slices.Contains(msg.LabelIds, "SPAM") && !slices.Contains(msg.LabelIds, "TRASH")
}

// searchQuery combines the configured query with the window. Gmail search
// has second granularity, so the bounds are widened to whole seconds and
// the engine applies the exact window.
func searchQuery(base string, f domain.Filters) string {
	parts := make([]string, 0, 3)
	if base != "" {
		parts = append(parts, base)
	}
	if f.ModifiedAfter != nil {
		parts = append(parts, "after:"+strconv.FormatInt(f.ModifiedAfter.Unix(), 10))
	}
	if f.ModifiedBefore != nil {
		before := f.ModifiedBefore.Unix()
		if f.ModifiedBefore.Nanosecond() > 0 {
			before++
		}
		parts = append(parts, "before:"+strconv.FormatInt(before, 10))
	}
	return strings.Join(parts, " ")
}
