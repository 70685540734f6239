package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"checkout/api/internal/asaas"
	"checkout/api/internal/dedup"
	"checkout/api/internal/logger"
	"checkout/api/internal/order"
	"checkout/api/internal/repository"

	"github.com/google/uuid"
)

// History sources written by this package.
const (
	SourcePipeline = "pipeline"
	SourceCharge   = "charge"
)

// Store is the persistence the pipeline needs.
type Store interface {
	Settings(ctx context.Context) (*repository.Settings, error)
	FindOrder(ctx context.Context, paymentID, chargeID string) (*order.Order, error)
	InsertOrder(ctx context.Context, o *order.Order) (bool, error)
	OrderByID(ctx context.Context, id int64) (*order.Order, error)
	LinkCharge(ctx context.Context, id int64, chargeID string, pix *order.PixDetails) (bool, error)
	SetPixSnapshot(ctx context.Context, id int64, chargeID string, pix order.PixDetails) (bool, error)
	RecordStatusChange(ctx context.Context, c repository.StatusChange) error
	PixOrdersAwaitingCharge(ctx context.Context, olderThan time.Time, limit int) ([]int64, error)
}

// Provider registers PIX charges with the payment gateway.
type Provider interface {
	CreatePixCharge(ctx context.Context, params asaas.PixChargeParams) (*asaas.PixCharge, error)
	PixQRCode(ctx context.Context, chargeID string) (*order.PixDetails, error)
}

// Attempt is one checkout submission.
type Attempt struct {
	// ID identifies the payment attempt. Generated when empty.
	ID         string
	Method     order.Method
	BaseStatus string
	Card       *order.CardDetails
	Pix        *order.PixDetails
	// ChargeID is set when the charge was registered before submission.
	ChargeID   string
	DeviceType order.DeviceType
}

// Result is what CreateOrder produced.
type Result struct {
	Order       *order.Order
	Status      order.Status
	Existing    bool
	RuleApplied string
}

type Options struct {
	// Grace keeps a released attempt id blocked for a short while so a
	// double-submitted form cannot sneak in between lookup and insert.
	Grace           time.Duration
	ProviderTimeout time.Duration
}

// Service creates orders exactly once per payment attempt.
type Service struct {
	store    Store
	provider Provider
	dedup    *dedup.Deduplicator
	opts     Options
}

// NewService wires the pipeline. provider may be nil, in which case PIX orders
// are stored without a charge and surface a ProviderIntegration error.
func NewService(store Store, provider Provider, registry *dedup.Registry, opts Options) *Service {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 15 * time.Second
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	return &Service{
		store:    store,
		provider: provider,
		dedup:    dedup.New(registry),
		opts:     opts,
	}
}

// Close stops the service's pending claim timers.
func (s *Service) Close() {
	s.dedup.Close()
}

// CreateOrder validates the attempt, resolves its initial status and stores
// it. A previously stored order for the same attempt or charge is returned
// with Existing set. For PIX orders without a charge the provider charge is
// registered; when that fails the stored order is returned together with an
// ErrProviderIntegration error.
func (s *Service) CreateOrder(ctx context.Context, att Attempt, cust order.Customer, product order.Product) (*Result, error) {
	cust, err := validate(att, cust, product)
	if err != nil {
		return nil, err
	}

	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, persistenceError(fmt.Errorf("load settings: %w", err))
	}
	if att.Method == order.MethodPix && !settings.AllowPix {
		return nil, validationError("pagamento via PIX está desabilitado")
	}
	if att.Method == order.MethodCard && !settings.AllowCreditCard {
		return nil, validationError("pagamento com cartão de crédito está desabilitado")
	}
	if !settings.AsaasEnabled {
		return nil, &Error{Kind: ErrProviderDisabled, Message: "pagamentos temporariamente indisponíveis"}
	}

	if strings.TrimSpace(att.ID) == "" {
		att.ID = uuid.New().String()
	}
	att.ChargeID = strings.TrimSpace(att.ChargeID)

	if !s.dedup.TryClaim(att.ID) {
		logger.Warnf("[CHECKOUT] Tentativa %s já em processamento", att.ID)
		return nil, &Error{Kind: ErrDuplicateAttempt, Message: "pagamento já está sendo processado"}
	}
	defer s.dedup.ReleaseAfter(att.ID, s.opts.Grace)

	existing, err := s.store.FindOrder(ctx, att.ID, att.ChargeID)
	if err != nil {
		return nil, persistenceError(fmt.Errorf("lookup attempt %s: %w", att.ID, err))
	}
	if existing != nil {
		logger.Infof("[CHECKOUT] Tentativa %s já registrada no pedido %d", att.ID, existing.ID)
		return &Result{Order: existing, Status: existing.Status, Existing: true}, nil
	}

	status, rule := resolveInitialStatus(ruleInput{
		method:   att.Method,
		baseHint: att.BaseStatus,
		product:  &product,
		settings: settings,
	})
	logger.Infof("[CHECKOUT] Tentativa %s (%s): status %s pela regra %s", att.ID, att.Method, status, rule)

	o := &order.Order{
		Customer:         cust,
		ProductID:        product.ID,
		ProductName:      product.Name,
		Price:            product.Price,
		IsDigitalProduct: product.IsDigital,
		Method:           att.Method,
		Status:           status,
		PaymentID:        att.ID,
		ChargeID:         att.ChargeID,
		DeviceType:       att.DeviceType,
	}
	if att.Method == order.MethodCard {
		o.Card = att.Card
	} else {
		o.Pix = att.Pix
	}

	inserted, err := s.store.InsertOrder(ctx, o)
	if err != nil {
		return nil, persistenceError(fmt.Errorf("insert order: %w", err))
	}
	if !inserted {
		winner, err := s.store.FindOrder(ctx, att.ID, att.ChargeID)
		if err != nil {
			return nil, persistenceError(fmt.Errorf("lookup after conflict: %w", err))
		}
		if winner == nil {
			return nil, persistenceError(errors.New("insert conflicted but no matching order was found"))
		}
		logger.Infof("[CHECKOUT] Tentativa %s perdeu a corrida para o pedido %d", att.ID, winner.ID)
		return &Result{Order: winner, Status: winner.Status, Existing: true}, nil
	}

	if err := s.store.RecordStatusChange(ctx, repository.StatusChange{
		OrderID:   o.ID,
		NewStatus: status,
		Reason:    rule,
		Source:    SourcePipeline,
		ChargeID:  o.ChargeID,
	}); err != nil {
		logger.Errorf("[CHECKOUT] Erro ao registrar histórico do pedido %d: %v", o.ID, err)
	}
	logger.Infof("[CHECKOUT] Pedido %d criado (%s, %s)", o.ID, o.Method, o.Status)

	res := &Result{Order: o, Status: o.Status, RuleApplied: rule}
	if o.Method == order.MethodPix && o.ChargeID == "" {
		linked, err := s.registerCharge(ctx, o)
		if linked != nil {
			res.Order = linked
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// RegisterCharge registers the provider charge of a PIX order that has none.
// An order linked to a charge but missing its QR snapshot gets the snapshot
// fetched; orders with both are returned unchanged.
func (s *Service) RegisterCharge(ctx context.Context, orderID int64) (*order.Order, error) {
	o, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, persistenceError(fmt.Errorf("load order %d: %w", orderID, err))
	}
	if o == nil {
		return nil, &Error{Kind: ErrNotFound, Message: "pedido não encontrado"}
	}
	if o.Method != order.MethodPix {
		return nil, validationError("pedido %d não é PIX", orderID)
	}
	if o.ChargeID != "" && o.Pix != nil {
		return o, nil
	}
	if o.Status.IsTerminal() {
		return nil, validationError("pedido %d já está finalizado (%s)", orderID, o.Status)
	}

	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, persistenceError(fmt.Errorf("load settings: %w", err))
	}
	if !settings.AsaasEnabled {
		return nil, &Error{Kind: ErrProviderDisabled, Message: "pagamentos temporariamente indisponíveis"}
	}
	if o.ChargeID != "" {
		return s.fetchQRCode(ctx, o)
	}
	return s.registerCharge(ctx, o)
}

func chargeKey(orderID int64) string {
	return fmt.Sprintf("charge:%d", orderID)
}

// registerCharge calls the provider and links the charge to o. Only one
// registration per order runs at a time. When the provider created the
// charge but its QR code could not be fetched, the charge is still linked and
// the reloaded order is returned together with the error.
func (s *Service) registerCharge(ctx context.Context, o *order.Order) (*order.Order, error) {
	key := chargeKey(o.ID)
	if !s.dedup.TryClaim(key) {
		return nil, &Error{Kind: ErrDuplicateAttempt, Message: "cobrança PIX já está sendo gerada"}
	}
	defer s.dedup.Release(key)

	if s.provider == nil {
		return nil, &Error{Kind: ErrProviderIntegration, Message: "pedido criado, mas o provedor de pagamento não está configurado"}
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	charge, chargeErr := s.provider.CreatePixCharge(pctx, asaas.PixChargeParams{
		OrderID:     o.ID,
		Customer:    o.Customer,
		Value:       o.Price,
		Description: o.ProductName,
	})
	if charge == nil || charge.ChargeID == "" {
		logger.Errorf("[CHECKOUT] Erro ao gerar cobrança PIX do pedido %d: %v", o.ID, chargeErr)
		return nil, &Error{Kind: ErrProviderIntegration, Message: "pedido criado, mas não foi possível gerar a cobrança PIX", Err: chargeErr}
	}

	// the provider charge exists from here on; store it even if ctx is done
	sctx := context.WithoutCancel(ctx)

	var pix *order.PixDetails
	if chargeErr == nil {
		pix = &charge.Pix
	}
	linked, err := s.store.LinkCharge(sctx, o.ID, charge.ChargeID, pix)
	if err != nil {
		return nil, persistenceError(fmt.Errorf("link charge %s to order %d: %w", charge.ChargeID, o.ID, err))
	}
	if !linked {
		logger.Warnf("[CHECKOUT] Pedido %d já possuía cobrança; cobrança %s descartada", o.ID, charge.ChargeID)
	} else {
		if err := s.store.RecordStatusChange(sctx, repository.StatusChange{
			OrderID:   o.ID,
			OldStatus: o.Status,
			NewStatus: o.Status,
			Reason:    "cobrança registrada",
			Source:    SourceCharge,
			ChargeID:  charge.ChargeID,
		}); err != nil {
			logger.Errorf("[CHECKOUT] Erro ao registrar histórico do pedido %d: %v", o.ID, err)
		}
		logger.Infof("[CHECKOUT] Cobrança %s vinculada ao pedido %d", charge.ChargeID, o.ID)
	}

	fresh, err := s.reload(sctx, o.ID)
	if err != nil {
		return nil, err
	}
	if chargeErr != nil {
		logger.Errorf("[CHECKOUT] QR Code da cobrança %s do pedido %d indisponível: %v", charge.ChargeID, o.ID, chargeErr)
		return fresh, &Error{Kind: ErrProviderIntegration, Message: "cobrança PIX criada, mas o QR Code ainda não está disponível", Err: chargeErr}
	}
	return fresh, nil
}

// fetchQRCode fills the missing QR snapshot of an order already linked to a
// charge. No new charge is ever created here.
func (s *Service) fetchQRCode(ctx context.Context, o *order.Order) (*order.Order, error) {
	key := chargeKey(o.ID)
	if !s.dedup.TryClaim(key) {
		return nil, &Error{Kind: ErrDuplicateAttempt, Message: "cobrança PIX já está sendo gerada"}
	}
	defer s.dedup.Release(key)

	if s.provider == nil {
		return nil, &Error{Kind: ErrProviderIntegration, Message: "o provedor de pagamento não está configurado"}
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	pix, err := s.provider.PixQRCode(pctx, o.ChargeID)
	if err != nil {
		logger.Errorf("[CHECKOUT] Erro ao buscar QR Code da cobrança %s do pedido %d: %v", o.ChargeID, o.ID, err)
		return nil, &Error{Kind: ErrProviderIntegration, Message: "não foi possível obter o QR Code PIX", Err: err}
	}
	if _, err := s.store.SetPixSnapshot(context.WithoutCancel(ctx), o.ID, o.ChargeID, *pix); err != nil {
		return nil, persistenceError(fmt.Errorf("store qr code of order %d: %w", o.ID, err))
	}
	logger.Infof("[CHECKOUT] QR Code da cobrança %s salvo no pedido %d", o.ChargeID, o.ID)
	return s.reload(ctx, o.ID)
}

func (s *Service) reload(ctx context.Context, id int64) (*order.Order, error) {
	fresh, err := s.store.OrderByID(ctx, id)
	if err != nil {
		return nil, persistenceError(fmt.Errorf("reload order %d: %w", id, err))
	}
	if fresh == nil {
		return nil, persistenceError(fmt.Errorf("order %d vanished after linking charge", id))
	}
	return fresh, nil
}

// validate checks the buyer and attempt and returns the customer with its
// CPF reduced to digits.
func validate(att Attempt, cust order.Customer, product order.Product) (order.Customer, error) {
	cust.Name = strings.TrimSpace(cust.Name)
	cust.Email = strings.TrimSpace(cust.Email)
	if cust.Name == "" {
		return cust, validationError("nome é obrigatório")
	}
	if cust.Email == "" {
		return cust, validationError("email é obrigatório")
	}
	if _, err := mail.ParseAddress(cust.Email); err != nil {
		return cust, validationError("email inválido")
	}
	if strings.TrimSpace(cust.CPF) == "" {
		return cust, validationError("CPF é obrigatório")
	}
	cpf := asaas.SanitizeDocument(cust.CPF)
	if err := asaas.ValidateCPF(cpf); err != nil {
		return cust, validationError("%s", err.Error())
	}
	cust.CPF = cpf
	if strings.TrimSpace(cust.Phone) != "" {
		if err := asaas.ValidatePhone(cust.Phone); err != nil {
			return cust, validationError("%s", err.Error())
		}
	}

	switch att.Method {
	case order.MethodCard:
		if att.Card == nil || att.Card.Last4 == "" {
			return cust, validationError("dados do cartão são obrigatórios")
		}
		if att.Pix != nil {
			return cust, validationError("pedido com cartão não pode conter dados de PIX")
		}
	case order.MethodPix:
		if att.Card != nil {
			return cust, validationError("pedido PIX não pode conter dados de cartão")
		}
	default:
		return cust, validationError("método de pagamento inválido: %q", att.Method)
	}

	if strings.TrimSpace(product.Name) == "" {
		return cust, validationError("produto é obrigatório")
	}
	if product.Price.IsNegative() {
		return cust, validationError("preço do produto inválido")
	}
	return cust, nil
}
