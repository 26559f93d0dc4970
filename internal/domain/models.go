package domain

// Models lists every persisted model in migration order
func Models() []any {
	return []any{
		&User{},
		&Wallet{},
		&Transaction{},
		&Escrow{},
		&Notification{},
		&Category{},
		&Supplier{},
		&RFQ{},
		&Quote{},
	}
}
