package order

// QueryOrdersModel represents filter parameters for querying orders
type QueryOrdersModel struct {
	UserID string `json:"userId,omitempty"`
	Status Status `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
