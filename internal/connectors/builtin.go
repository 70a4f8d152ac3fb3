package connectors

import (
	"github.com/custodia-labs/sercha-mirror/internal/connectors/github"
	"github.com/custodia-labs/sercha-mirror/internal/connectors/google/gmail"
	"github.com/custodia-labs/sercha-mirror/internal/connectors/notion"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Registrar accepts connector builders.
type Registrar interface {
	Register(connectorType string, builder driven.ConnectorBuilder)
}

// Builtin returns the builders of the bundled connectors keyed by type.
func Builtin() map[string]driven.ConnectorBuilder {
	return map[string]driven.ConnectorBuilder{
		gmail.ConnectorType:  gmail.Builder,
		github.ConnectorType: github.Builder,
		notion.ConnectorType: notion.Builder,
	}
}

// RegisterBuiltin registers every bundled connector.
func RegisterBuiltin(r Registrar) {
	for t, b := range Builtin() {
		r.Register(t, b)
	}
}
