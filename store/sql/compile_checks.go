package sqlstore

import "github.com/goliatone/go-smshook/core"

var (
	_ core.PartStore              = (*PartStore)(nil)
	_ core.PartMaintainer         = (*PartStore)(nil)
	_ core.DeliveryLedger         = (*DeliveryLedgerStore)(nil)
	_ core.DeliveryLedger         = (*CachedDeliveryLedger)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
