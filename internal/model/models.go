package model

// All lists every relational model, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&ChatSession{},
		&ChatMessage{},
	}
}
