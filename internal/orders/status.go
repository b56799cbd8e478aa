package orders

type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// SubOrderStatus is the seller-facing vocabulary; "new" stands for "confirmed".
type SubOrderStatus string

const (
	SubStatusNew        SubOrderStatus = "new"
	SubStatusProcessing SubOrderStatus = "processing"
	SubStatusShipped    SubOrderStatus = "shipped"
	SubStatusDelivered  SubOrderStatus = "delivered"
	SubStatusCancelled  SubOrderStatus = "cancelled"
	SubStatusReturned   SubOrderStatus = "returned"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {StatusReturned: true},
	StatusCancelled:  {},
	StatusReturned:   {},
}

// progression is the fixed forward path the automatic sweep follows.
var progression = map[Status]Status{
	StatusConfirmed:  StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0 || s == StatusDelivered
}

// Next returns the status the sweep advances s to, if any.
func (s Status) Next() (Status, bool) {
	n, ok := progression[s]
	return n, ok
}

// Cancellable reports whether a parcel in status s has not left yet.
func (s Status) Cancellable() bool {
	return CanTransition(s, StatusCancelled)
}

// ActiveStatuses are the aggregate statuses the sweep selects.
func ActiveStatuses() []Status {
	return []Status{StatusConfirmed, StatusProcessing, StatusShipped}
}

func AllStatuses() []Status {
	return []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusReturned}
}

// Canonical maps the seller vocabulary onto the shared state machine.
func (s SubOrderStatus) Canonical() Status {
	if s == SubStatusNew {
		return StatusConfirmed
	}
	return Status(s)
}

func (s SubOrderStatus) Valid() bool {
	return s.Canonical().Valid()
}

// SubStatusOf is the inverse of Canonical.
func SubStatusOf(s Status) SubOrderStatus {
	if s == StatusConfirmed {
		return SubStatusNew
	}
	return SubOrderStatus(s)
}

func CanTransitionSub(from, to SubOrderStatus) bool {
	return CanTransition(from.Canonical(), to.Canonical())
}

func ActiveSubStatuses() []SubOrderStatus {
	return []SubOrderStatus{SubStatusNew, SubStatusProcessing, SubStatusShipped}
}

func AllSubStatuses() []SubOrderStatus {
	return []SubOrderStatus{SubStatusNew, SubStatusProcessing, SubStatusShipped, SubStatusDelivered, SubStatusCancelled, SubStatusReturned}
}
