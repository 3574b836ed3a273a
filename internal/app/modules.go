package app

import (
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/modules/mnet"
	"github.com/vk/p4grid/modules/p4c"
	"github.com/vk/p4grid/modules/shell"
	"github.com/vk/p4grid/modules/thrift"
	"github.com/vk/p4grid/modules/topodb"
)

// coreModules is the definitive list of built-in components compiled into
// the p4grid binary.
var coreModules = []registry.Module{
	&p4c.Module{},
	&thrift.Module{},
	&mnet.Module{},
	&topodb.Module{},
	&shell.Module{},
}
