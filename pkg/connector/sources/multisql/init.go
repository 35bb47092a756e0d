package multisql

import (
	"github.com/ajitpratap0/multisql/pkg/connector/core"
	"github.com/ajitpratap0/multisql/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource(Name, NewMultiSQLSource)

	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        Name,
		Type:        core.ConnectorTypeSource,
		Description: "Runs each SQL statement as an independent unit and streams tagged records",
		Capabilities: []string{
			"splits",
			"fault_isolation",
			"parallel_units",
		},
	})
}
