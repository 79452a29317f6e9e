package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-smshook/reassembly"
)

var (
	_ gocmd.Commander[MessageReceivedMessage] = (*DeliverMessageCommand)(nil)
	_ gocmd.Commander[PurgeMessage]           = (*PurgeCommand)(nil)
	_ Purger                                  = (*reassembly.Janitor)(nil)
)
