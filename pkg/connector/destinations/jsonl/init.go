package jsonl

import (
	"github.com/ajitpratap0/multisql/pkg/connector/core"
	"github.com/ajitpratap0/multisql/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination(Name, NewJSONLDestination)

	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         Name,
		Type:         core.ConnectorTypeDestination,
		Description:  "Writes tagged records as JSON lines to a file or stdout",
		Capabilities: []string{"streaming", "json_lines", "compression"},
	})
}
