package topics

const (
	// Resolução de apostas
	BetResolved  = "bet_resolved"
	BetCancelled = "bet_cancelled"
	BetStatus    = "bet_status"

	// Inventário (itens de uso único consumidos no settlement)
	InventoryItemConsumed = "inventory_item_consumed"

	// DLQs
	OutboxDLQ = "outbox_dlq"
)
