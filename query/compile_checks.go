package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-smshook/core"
	"github.com/goliatone/go-smshook/reassembly"
)

var (
	_ gocmd.Querier[PendingGroupsMessage, []core.PendingGroup] = (*PendingGroupsQuery)(nil)
	_ PendingGroupsReader                                      = (*reassembly.Janitor)(nil)
)
