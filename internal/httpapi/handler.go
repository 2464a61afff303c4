package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"unlockdesk/internal/models"
	"unlockdesk/internal/ratelimit"
	"unlockdesk/internal/request"
	"unlockdesk/internal/schema"
	"unlockdesk/internal/services"
	"unlockdesk/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// System settings indexes, inherited from the reseller panel.
const (
	settingMaintenance = 13
	settingDemoMode    = 14
)

type Directory interface {
	GetCustomerByCredentials(ctx context.Context, email, apiKey string) (*models.Customer, error)
	SettingEnabled(ctx context.Context, index int) (bool, error)
	ListActiveGroups(ctx context.Context) ([]models.ServiceGroup, error)
	ListActiveServices(ctx context.Context, groupID int64) ([]models.Service, error)
	GetServiceFields(ctx context.Context, serviceID int64) ([]models.ServiceField, error)
}

type Orders interface {
	PlaceOrder(ctx context.Context, customer *models.Customer, rawParams string) (int64, error)
	OrderStatus(ctx context.Context, customerID, orderID int64) (services.StatusResult, error)
	OrderStatusBulk(ctx context.Context, customerID int64, rawIDs string) (services.BulkStatusResult, error)
}

type Pricer interface {
	Price(ctx context.Context, serviceID, customerID int64, quantity int) (decimal.Decimal, bool, error)
}

type Handler struct {
	Directory  Directory
	Orders     Orders
	Pricing    Pricer
	Gate       *ratelimit.Gate
	Validate   *validator.Validate
	Log        *zap.Logger
	APIVersion string
}

func NewHandler(dir Directory, orders Orders, pricing Pricer, gate *ratelimit.Gate, log *zap.Logger, apiVersion string) *Handler {
	return &Handler{
		Directory:  dir,
		Orders:     orders,
		Pricing:    pricing,
		Gate:       gate,
		Validate:   validator.New(),
		Log:        log,
		APIVersion: apiVersion,
	}
}

type credentialFrame struct {
	Username  string `validate:"required,email,max=60"`
	AccessKey string `validate:"required,max=39"`
	Action    string `validate:"required,max=30"`
}

// PublicAPI is the single reseller entry point. Every call carries
// static credentials plus an action name; the action selects the
// operation, never the route.
func (h *Handler) PublicAPI(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	ctx := r.Context()

	if on, err := h.Directory.SettingEnabled(ctx, settingMaintenance); err == nil && on {
		h.writeError(w, http.StatusOK, "Currently server is under maintenance. Please try again later.")
		return
	}
	if on, err := h.Directory.SettingEnabled(ctx, settingDemoMode); err == nil && on {
		h.writeError(w, http.StatusOK, "Demo Mode ON!")
		return
	}

	frame := credentialFrame{
		Username:  r.FormValue("username"),
		AccessKey: r.FormValue("apiaccesskey"),
		Action:    r.FormValue("action"),
	}
	if err := h.Validate.Struct(frame); err != nil {
		h.writeError(w, http.StatusOK, frameErrorMessage(err))
		return
	}

	customer, err := h.Directory.GetCustomerByCredentials(ctx, frame.Username, frame.AccessKey)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusOK, "Authentication Failed")
		return
	}
	if err != nil {
		h.Log.Error("customer lookup failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if customer.Status == models.CustomerBlocked {
		h.writeError(w, http.StatusOK, "You are Blocked!")
		return
	}
	if !customer.APIAllow {
		h.writeError(w, http.StatusOK, "API is inactive!")
		return
	}

	switch frame.Action {
	case "accountinfo":
		h.accountInfo(w, customer)
	case "imeiservicelist":
		h.serviceList(w, r, customer)
	case "getimeiorder":
		h.getOrder(w, r, customer)
	case "getimeiorderbulk":
		h.getOrderBulk(w, r, customer)
	case "placeimeiorder":
		h.placeOrder(w, r, customer)
	default:
		h.writeError(w, http.StatusOK, "Invalid Action")
	}
}

func (h *Handler) accountInfo(w http.ResponseWriter, customer *models.Customer) {
	h.writeSuccess(w, http.StatusOK, map[string]any{
		"MESSAGE":     "Your Account Info",
		"AccountInfo": h.accountBlock(customer),
	})
}

func (h *Handler) accountBlock(customer *models.Customer) map[string]any {
	credit, _ := customer.Balance.Round(2).Float64()
	return map[string]any{
		"credit":    customer.Balance.StringFixed(2) + " " + customer.Currency,
		"creditraw": credit,
		"mail":      customer.Email,
		"currency":  customer.Currency,
	}
}

func (h *Handler) serviceList(w http.ResponseWriter, r *http.Request, customer *models.Customer) {
	ctx := r.Context()

	if next, ok := h.Gate.Allow(customer.ID); !ok {
		minutes := int(time.Until(next).Minutes()) + 1
		h.writeError(w, http.StatusOK,
			"You are calling this API too frequently! Please try after "+strconv.Itoa(minutes)+" minutes.")
		return
	}

	groups, err := h.Directory.ListActiveGroups(ctx)
	if err != nil {
		h.Log.Error("group list failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	list := make(map[string]any)
	for _, group := range groups {
		svcs, err := h.Directory.ListActiveServices(ctx, group.ID)
		if err != nil {
			h.Log.Error("service list failed", zap.Int64("group_id", group.ID), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "Internal error")
			return
		}
		if len(svcs) == 0 {
			continue
		}

		groupType, serverCode := groupTypeCodes(group.Type)
		entries := make(map[string]any, len(svcs))
		for _, svc := range svcs {
			entry, err := h.serviceEntry(ctx, customer, svc, groupType, serverCode)
			if err != nil {
				h.Log.Error("service entry failed", zap.Int64("service_id", svc.ID), zap.Error(err))
				h.writeError(w, http.StatusInternalServerError, "Internal error")
				return
			}
			entries[strconv.FormatInt(svc.ID, 10)] = entry
		}

		list[group.Name] = map[string]any{
			"GROUPNAME": group.Name,
			"GROUPTYPE": groupType,
			"SERVICES":  entries,
		}
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"MESSAGE":     "Service List",
		"LIST":        list,
		"ACCOUNTINFO": h.accountBlock(customer),
	})
}

func (h *Handler) serviceEntry(ctx context.Context, customer *models.Customer, svc models.Service, groupType string, serverCode int) (map[string]any, error) {
	price, _, err := h.Pricing.Price(ctx, svc.ID, customer.ID, 1)
	if err != nil {
		return nil, err
	}
	credit, _ := price.Float64()

	qnt := 0
	if svc.MinQty > 0 {
		qnt = 1
	}

	entry := map[string]any{
		"SERVICEID":   svc.ID,
		"SERVICETYPE": groupType,
		"SERVER":      serverCode,
		"QNT":         qnt,
		"MINQNT":      svc.MinQty,
		"MAXQNT":      svc.MaxQty,
		"SERVICENAME": svc.Title,
		"CREDIT":      credit,
		"TIME":        svc.DeliveryTime,
		"INFO":        "",
	}

	fields, err := h.Directory.GetServiceFields(ctx, svc.ID)
	if err != nil {
		return nil, err
	}

	custom := fields
	if svc.ServiceType == models.ServiceTypeIMEI && len(fields) > 0 {
		entry["CUSTOM"] = map[string]any{
			"allow":      "1",
			"bulk":       "0",
			"customname": fields[0].Name,
			"custominfo": "",
			"customlen":  "1",
			"maxlength":  "300",
			"regex":      "",
			"isalpha":    "1",
		}
		custom = fields[1:]
	}
	if len(custom) > 0 {
		reqs := make([]map[string]any, 0, len(custom))
		for _, f := range custom {
			reqs = append(reqs, map[string]any{
				"type":         "serviceimei",
				"fieldname":    f.Name,
				"fieldtype":    "text",
				"description":  "",
				"fieldoptions": "",
				"required":     "on",
			})
		}
		entry["Requires.Custom"] = reqs
	}

	return entry, nil
}

func groupTypeCodes(raw string) (string, int) {
	switch raw {
	case "Server":
		return "SERVER", 1
	case "IMEI":
		return "IMEI", 0
	default:
		return "REMOTE", 2
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, customer *models.Customer) {
	idStr, err := request.DecodeStatus(r.FormValue("parameters"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Parameter required.")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		id = 0
	}

	res, err := h.Orders.OrderStatus(r.Context(), customer.ID, id)
	if errors.Is(err, services.ErrOrderNotFound) {
		h.writeError(w, http.StatusNotFound, "Order ID not found!")
		return
	}
	if err != nil {
		h.Log.Error("order status failed", zap.Int64("order_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"STATUS": res.Code,
		"CODE":   res.Comments,
	})
}

func (h *Handler) getOrderBulk(w http.ResponseWriter, r *http.Request, customer *models.Customer) {
	idsStr, err := request.DecodeStatus(r.FormValue("parameters"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Parameter required.")
		return
	}

	res, err := h.Orders.OrderStatusBulk(r.Context(), customer.ID, idsStr)
	if err != nil {
		h.Log.Error("bulk order status failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	payload := make(map[string]any)
	success := make(map[string]any)
	var errList []map[string]any
	for _, entry := range res.Entries {
		if !entry.Found {
			errList = append(errList, map[string]any{
				"MESSAGE": "Order ID " + strconv.FormatInt(entry.ID, 10) + " not found!",
			})
			continue
		}
		success[strconv.FormatInt(entry.ID, 10)] = map[string]any{
			"STATUS":   entry.Code,
			"CODE":     entry.Comments,
			"COMMENTS": entry.Comments,
		}
	}
	if len(success) > 0 {
		payload["SUCCESS"] = success
	}
	if len(errList) > 0 {
		payload["ERROR"] = errList
	}
	payload["ID"] = res.EchoID

	h.writeEnvelope(w, http.StatusOK, payload)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, customer *models.Customer) {
	orderID, err := h.Orders.PlaceOrder(r.Context(), customer, r.FormValue("parameters"))
	if err != nil {
		h.placeOrderError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"MESSAGE":     "Order received",
		"REFERENCEID": orderID,
	})
}

func (h *Handler) placeOrderError(w http.ResponseWriter, err error) {
	var missing schema.MissingFieldError
	switch {
	case errors.Is(err, request.ErrMalformed):
		h.writeError(w, http.StatusBadRequest, "Parameter or Service <ID> missing.")
	case errors.Is(err, services.ErrServiceNotFound):
		h.writeError(w, http.StatusNotFound, "Service not found or inactive.")
	case errors.Is(err, schema.ErrMissingPrimary):
		h.writeError(w, http.StatusBadRequest, "IMEI field is required.")
	case errors.As(err, &missing):
		h.writeError(w, http.StatusBadRequest, missing.Field+" is required.")
	case errors.Is(err, request.ErrInvalidEncoding):
		h.writeError(w, http.StatusBadRequest, "CUSTOMFIELD must be base64 encoded.")
	case errors.Is(err, request.ErrInvalidJSON):
		h.writeError(w, http.StatusBadRequest, "CUSTOMFIELD must decode to valid JSON.")
	case errors.Is(err, services.ErrPricing):
		h.writeError(w, http.StatusBadRequest, "Balance process error!")
	case errors.Is(err, services.ErrInsufficientBalance):
		h.writeError(w, http.StatusBadRequest, "Not enough balance!")
	default:
		h.Log.Error("place order failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func frameErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	switch first := verrs[0]; first.StructField() {
	case "Username":
		if first.Tag() == "email" {
			return "User name must be an email"
		}
		return "User name is required"
	case "AccessKey":
		return "API access key is required"
	default:
		return "Action is required"
	}
}
