package core

var (
	_ PartStore      = (*MemoryPartStore)(nil)
	_ PartMaintainer = (*MemoryPartStore)(nil)
	_ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
	_ MessageHandler = MessageHandlerFunc(nil)
)
