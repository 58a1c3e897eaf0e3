package paypal

// CreateOrderInput describes the single line item of a new order.
// Value must already be formatted for the currency's minor unit.
type CreateOrderInput struct {
	Value    string
	Currency string
	CustomID string
}

// Order is the subset of the provider's order representation we read.
type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units,omitempty"`
	Payer         *Payer         `json:"payer,omitempty"`
}

// PurchaseUnit carries the merchant-supplied metadata of an order.
type PurchaseUnit struct {
	CustomID string `json:"custom_id,omitempty"`
}

// Payer identifies the buyer.
type Payer struct {
	EmailAddress string `json:"email_address,omitempty"`
	PayerID      string `json:"payer_id,omitempty"`
}

// Completed reports whether the order reached its terminal successful state.
func (o Order) Completed() bool { return o.Status == StatusCompleted }

// PayerEmail returns the buyer's email, if the provider returned one.
func (o Order) PayerEmail() string {
	if o.Payer == nil {
		return ""
	}
	return o.Payer.EmailAddress
}

// CustomID returns the metadata stored on the first purchase unit.
func (o Order) CustomID() string {
	if len(o.PurchaseUnits) == 0 {
		return ""
	}
	return o.PurchaseUnits[0].CustomID
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type breakdown struct {
	ItemTotal money `json:"item_total"`
}

type amountPayload struct {
	CurrencyCode string    `json:"currency_code"`
	Value        string    `json:"value"`
	Breakdown    breakdown `json:"breakdown"`
}

type itemPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitAmount  money  `json:"unit_amount"`
}

type purchaseUnitPayload struct {
	CustomID string        `json:"custom_id,omitempty"`
	Items    []itemPayload `json:"items"`
	Amount   amountPayload `json:"amount"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type orderPayload struct {
	Intent             string                `json:"intent"`
	PurchaseUnits      []purchaseUnitPayload `json:"purchase_units"`
	ApplicationContext applicationContext    `json:"application_context"`
}
