package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Warehouse{},
		&TypeComponent{},
		&Stock{},
		&Component{},
		&CaseLine{},
		&Reservation{},
		&StockTransferRequest{},
		&RequestItem{},
		&StockAdjustment{},
		&Shipment{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
