package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Called after instantiation and before Provision().
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup after instantiation:
// defaults, transports, service lookups.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their configuration
// is complete and correct. Called after Provision(). Must not have side effects.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that run background work
// (listeners, schedulers). Called after every module is provisioned.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that hold resources: open
// connections, database handles, servers. Called in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}
