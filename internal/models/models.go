package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ServiceType string

const (
	ServiceTypeIMEI   ServiceType = "IMEI"
	ServiceTypeServer ServiceType = "Server"
	ServiceTypeRemote ServiceType = "Remote"
)

type ProcessType string

const (
	ProcessInventory ProcessType = "Inventory"
	ProcessAPI       ProcessType = "Api"
	ProcessManual    ProcessType = "Manual"
)

type OrderStatus string

const (
	OrderWaitingAction OrderStatus = "Waiting Action"
	OrderInProcess     OrderStatus = "In Process"
	OrderSuccess       OrderStatus = "Success"
	OrderRejected      OrderStatus = "Rejected"
)

// External status codes exposed to API clients. Anything outside the
// known set maps to StatusCodeUnknown.
const (
	StatusCodeWaiting = 0
	StatusCodeProcess = 1
	StatusCodeReject  = 3
	StatusCodeSuccess = 4
	StatusCodeUnknown = -1
)

func ExternalStatusCode(status OrderStatus) int {
	switch status {
	case OrderSuccess:
		return StatusCodeSuccess
	case OrderRejected:
		return StatusCodeReject
	case OrderInProcess:
		return StatusCodeProcess
	case OrderWaitingAction:
		return StatusCodeWaiting
	default:
		return StatusCodeUnknown
	}
}

const CustomerBlocked = "Block"

type Customer struct {
	ID       int64
	Name     string
	Email    string
	APIKey   string
	APIAllow bool
	Status   string
	Balance  decimal.Decimal
	Currency string
}

type ServiceGroup struct {
	ID     int64
	Name   string
	Type   string
	Status string
}

const (
	ServiceActive   = "Active"
	ServiceInactive = "Inactive"
)

type Service struct {
	ID           int64
	GroupID      int64
	Title        string
	ServiceType  ServiceType
	ProcessType  ProcessType
	Status       string
	FreeService  bool
	MinQty       int
	MaxQty       int
	APIID        int64
	ReferenceID  string
	DeliveryTime string
	Sells        int64
}

// ServiceField is one declared input field of a service. Declaration
// order matters: for IMEI services the first declared field is the
// primary device-identifier field.
type ServiceField struct {
	ID        int64
	ServiceID int64
	Name      string
}

type Order struct {
	ID              int64
	CustomerID      int64
	CustomerName    string
	InvoiceStatus   string
	Currency        string
	ServiceType     ServiceType
	ServiceID       int64
	ServiceTitle    string
	Quantity        int
	Price           decimal.Decimal
	PaymentMethod   string
	TrxID           string
	Status          OrderStatus
	ProcessType     ProcessType
	APIID           int64
	RemoteServiceID string
	RemoteOrderID   string
	FirstInput      string
	Comments        string
	CreatedAt       time.Time
}

type OrderField struct {
	OrderID int64
	Name    string
	Value   string
}

const (
	StatementDebit  = "Debit"
	StatementCredit = "Credit"
)

type Statement struct {
	ID           int64
	CustomerID   int64
	Description  string
	Kind         string
	Amount       decimal.Decimal
	OrderID      int64
	ServiceTitle string
	Balance      decimal.Decimal
	Reference    string
	CreatedAt    time.Time
}

const (
	AudienceCustomer = "customer"
	AudienceOperator = "operator"
)

type MailNotification struct {
	ID        int64
	Audience  string
	Recipient string
	Subject   string
	OrderID   int64
	CreatedAt time.Time
}
