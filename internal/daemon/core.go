package daemon

import (
	"github.com/noodlylight/fusilli/internal/config"
	"github.com/noodlylight/fusilli/internal/object"
	"github.com/noodlylight/fusilli/internal/plugin"
)

func init() {
	plugin.Register(config.CorePlugin, coreVTable)
}

// coreVTable is the bootstrap plugin. It sits at the bottom of every stack
// and damages each screen once so the first frame is painted.
func coreVTable() *plugin.VTable {
	return &plugin.VTable{
		Name: config.CorePlugin,
		InitScreen: func(_ plugin.Host, s *object.Screen) bool {
			s.Damage()
			return true
		},
	}
}
