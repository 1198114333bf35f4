package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProcessDeliveryMessage]   = (*ProcessDeliveryCommand)(nil)
	_ gocmd.Commander[RenewSubscriptionMessage] = (*RenewSubscriptionCommand)(nil)
	_ gocmd.Message                             = ProcessDeliveryMessage{}
	_ gocmd.Message                             = RenewSubscriptionMessage{}
)
