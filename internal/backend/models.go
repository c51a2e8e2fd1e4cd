package backend

import "time"

type Category struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"medicineCount,omitempty"`
}

type Medicine struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	GenericName   string   `json:"genericName,omitempty"`
	Company       string   `json:"company,omitempty"`
	Category      string   `json:"category,omitempty"`
	Description   string   `json:"description,omitempty"`
	Image         string   `json:"image,omitempty"`
	MassUnit      string   `json:"massUnit,omitempty"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"originalPrice,omitempty"`
	Discount      float64  `json:"discount,omitempty"`
	Stock         int      `json:"stock"`
	SellerEmail   string   `json:"sellerEmail,omitempty"`
}

// FinalPrice is the sale price after the percentage discount.
func (m Medicine) FinalPrice() float64 {
	if m.Discount <= 0 {
		return m.Price
	}
	return m.Price * (1 - m.Discount/100)
}

type MedicineFilter struct {
	Category string
	Seller   string
	Page     int
	Limit    int
}

type MedicinePage struct {
	Items []Medicine `json:"items"`
	Total int64      `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

type OrderItem struct {
	MedicineID  string  `json:"medicineId"`
	Name        string  `json:"name"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
	SellerEmail string  `json:"sellerEmail,omitempty"`
}

type Shipping struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address"`
	City    string `json:"city,omitempty"`
}

type Order struct {
	ID        string      `json:"_id,omitempty"`
	Email     string      `json:"email"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	Status    string      `json:"status"`
	PaymentID string      `json:"paymentId,omitempty"`
	Shipping  Shipping    `json:"shipping"`
	CreatedAt time.Time   `json:"createdAt,omitempty"`
}

type Payment struct {
	ID            string    `json:"_id,omitempty"`
	Email         string    `json:"email"`
	Amount        float64   `json:"amount"`
	TransactionID string    `json:"transactionId"`
	Status        string    `json:"status"`
	SellerEmails  []string  `json:"sellerEmails,omitempty"`
	OrderID       string    `json:"orderId,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

type PaymentFilter struct {
	Email  string
	Seller string
	From   time.Time
	To     time.Time
}

type Advertisement struct {
	ID          string `json:"_id,omitempty"`
	MedicineID  string `json:"medicineId,omitempty"`
	Image       string `json:"image"`
	Description string `json:"description,omitempty"`
	SellerEmail string `json:"sellerEmail,omitempty"`
	Active      bool   `json:"active"`
}

type UserRecord struct {
	ID       string `json:"_id,omitempty"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
	Role     string `json:"role"`
}
