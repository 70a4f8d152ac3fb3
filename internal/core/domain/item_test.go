package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validItem() ExternalItem {
	return ExternalItem{
		ExternalID: "msg-1",
		Revision:   "5",
		UpdatedAt:  time.Now(),
		Children:   []ChildItem{{ExternalID: "att-1", Kind: ChildAttachment}},
		Grants: []Grant{
			{Principal: PrincipalRef{Kind: PrincipalUser, Key: "Ada@Example.com"}, Type: PermissionOwner},
		},
	}
}

func TestExternalItem_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExternalItem)
		valid  bool
	}{
		{"valid", func(*ExternalItem) {}, true},
		{"empty external id", func(i *ExternalItem) { i.ExternalID = "  " }, false},
		{"zero update time", func(i *ExternalItem) { i.UpdatedAt = time.Time{} }, false},
		{"child without id", func(i *ExternalItem) { i.Children[0].ExternalID = "" }, false},
		{"grant without key", func(i *ExternalItem) { i.Grants[0].Principal.Key = "" }, false},
		{"child grant without key", func(i *ExternalItem) {
			i.Children[0].Grants = []Grant{{Principal: PrincipalRef{Kind: PrincipalUser}}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(&item)
			err := item.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformedItem)
			}
		})
	}
}

func TestPrincipalRef_NormalizedKey(t *testing.T) {
	assert.Equal(t, "ada@example.com", PrincipalRef{Kind: PrincipalUser, Key: " Ada@Example.com "}.NormalizedKey())
	assert.Equal(t, "Team-42", PrincipalRef{Kind: PrincipalGroup, Key: "Team-42"}.NormalizedKey())
}

func TestRelationForChild(t *testing.T) {
	assert.Equal(t, RelationCommentOf, RelationForChild(ChildComment))
	assert.Equal(t, RelationAttachmentOf, RelationForChild(ChildAttachment))
}
