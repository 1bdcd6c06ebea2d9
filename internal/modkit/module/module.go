// Package module holds the port lookup helpers main uses to cross wire modules
package module

import (
	phttp "otprelay/internal/platform/net/http"
)

// Module is modkit.Module restated here so modules can import this package without a cycle
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
