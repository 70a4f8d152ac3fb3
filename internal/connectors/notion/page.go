package notion

import (
	"path"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// RecordTypePage is the record type of mirrored pages.
const RecordTypePage = "page"

// pageShape is the layout a page payload arrives in.
type pageShape int

const (
	// shapeDatabaseRow is a page parented by a database. Its title lives
	// in whichever property has the title type.
	shapeDatabaseRow pageShape = iota + 1
	// shapeStandalone is a page parented by a page, block or the workspace.
	// Its title lives in the "title" property.
	shapeStandalone
)

// pagePayload is the canonical form of a page, independent of its shape.
type pagePayload struct {
	ID           string
	Shape        pageShape
	DatabaseID   string
	ParentPageID string
	Title        string
	URL          string
	Created      time.Time
	Edited       time.Time
	Archived     bool
	CreatedBy    notionapi.User
	EditedBy     notionapi.User
}

// attachment is a file-like block of a page.
type attachment struct {
	BlockID string
	Type    string
	Name    string
}

func detectShape(p *notionapi.Page) pageShape {
	if string(p.Parent.Type) == "database_id" {
		return shapeDatabaseRow
	}
	return shapeStandalone
}

// normalizePage converts a page of either shape into a pagePayload.
func normalizePage(p *notionapi.Page) pagePayload {
	out := pagePayload{
		ID:        normalizeID(p.ID.String()),
		Shape:     detectShape(p),
		URL:       p.URL,
		Created:   time.Time(p.CreatedTime).UTC(),
		Edited:    time.Time(p.LastEditedTime).UTC(),
		Archived:  p.Archived,
		CreatedBy: p.CreatedBy,
		EditedBy:  p.LastEditedBy,
	}

	switch out.Shape {
	case shapeDatabaseRow:
		out.DatabaseID = normalizeID(p.Parent.DatabaseID.String())
		for _, prop := range p.Properties {
			if t, ok := prop.(*notionapi.TitleProperty); ok {
				out.Title = plainText(t.Title)
				break
			}
		}
	case shapeStandalone:
		if string(p.Parent.Type) == "page_id" {
			out.ParentPageID = normalizeID(p.Parent.PageID.String())
		}
		if t, ok := p.Properties["title"].(*notionapi.TitleProperty); ok {
			out.Title = plainText(t.Title)
		}
	}
	if out.Title == "" {
		out.Title = "Untitled"
	}
	return out
}

// buildPage converts a normalized page and its file blocks into an ExternalItem.
func buildPage(p pagePayload, files []attachment) domain.ExternalItem {
	rev := p.Edited.Format(time.RFC3339Nano)
	item := domain.ExternalItem{
		ExternalID:       p.ID,
		Revision:         rev,
		Type:             RecordTypePage,
		ParentExternalID: p.ParentPageID,
		GroupID:          p.DatabaseID,
		Title:            p.Title,
		CreatedAt:        p.Created,
		UpdatedAt:        p.Edited,
		Deleted:          p.Archived,
		Metadata:         map[string]any{"web_url": p.URL},
	}

	if owner, ok := userRef(p.CreatedBy); ok {
		item.Grants = append(item.Grants, domain.Grant{Principal: owner, Type: domain.PermissionOwner})
	}
	if editor, ok := userRef(p.EditedBy); ok && editor.NormalizedKey() != ownerKey(item.Grants) {
		item.Grants = append(item.Grants, domain.Grant{Principal: editor, Type: domain.PermissionWriter})
	}

	for _, f := range files {
		item.Children = append(item.Children, domain.ChildItem{
			ExternalID: p.ID + "/file/" + normalizeID(f.BlockID),
			Revision:   rev,
			Kind:       domain.ChildAttachment,
			Title:      f.Name,
			CreatedAt:  p.Created,
			UpdatedAt:  p.Edited,
		})
	}
	return item
}

// toAttachment returns the attachment of a file-like block.
func toAttachment(b notionapi.Block) (attachment, bool) {
	typ := string(b.GetType())
	switch typ {
	case "file", "pdf", "image", "video", "audio":
	default:
		return attachment{}, false
	}
	a := attachment{BlockID: b.GetID().String(), Type: typ, Name: typ}
	if fb, ok := b.(*notionapi.FileBlock); ok {
		if name := plainText(fb.File.Caption); name != "" {
			a.Name = name
		} else if fb.File.File != nil {
			a.Name = fileName(fb.File.File.URL, typ)
		} else if fb.File.External != nil {
			a.Name = fileName(fb.File.External.URL, typ)
		}
	}
	return a, true
}

// userRef keys a user by email. Bots and users without a visible email
// are not principals.
func userRef(u notionapi.User) (domain.PrincipalRef, bool) {
	if u.Person == nil || u.Person.Email == "" {
		return domain.PrincipalRef{}, false
	}
	return domain.PrincipalRef{Kind: domain.PrincipalUser, Key: u.Person.Email, DisplayName: u.Name}, true
}

func ownerKey(grants []domain.Grant) string {
	if len(grants) == 0 {
		return ""
	}
	return grants[0].Principal.NormalizedKey()
}

func plainText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, t := range rt {
		sb.WriteString(t.PlainText)
	}
	return strings.TrimSpace(sb.String())
}

func fileName(rawURL, fallback string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	if name := path.Base(rawURL); name != "." && name != "/" && name != "" {
		return name
	}
	return fallback
}
