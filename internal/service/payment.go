package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/events"
	"github.com/linemk/event-shop/internal/lib/metrics"
	"github.com/linemk/event-shop/internal/payments"
	"github.com/linemk/event-shop/internal/storage"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
)

// PaymentTarget - за что платим. Должно быть заполнено ровно одно поле.
type PaymentTarget struct {
	OrderID        *int64
	RegistrationID *int64
}

type IntentResult struct {
	PaymentID       int64  `json:"payment_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// Deduper помнит уже обработанные события провайдера
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type PaymentService interface {
	// CreatePaymentIntent создаёт платёж у провайдера и сохраняет его в статусе pending.
	// Если за ту же цель уже есть pending-платёж с той же суммой, возвращается он.
	CreatePaymentIntent(ctx context.Context, userID int64, target PaymentTarget) (*IntentResult, error)
	// ApplyPaymentResult применяет итог платежа. Повторное применение успешного платежа ничего не меняет.
	ApplyPaymentResult(ctx context.Context, paymentIntentID string, succeeded bool) error
	// HandleWebhook проверяет подпись вебхука и применяет событие.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type paymentService struct {
	log              *slog.Logger
	db               *sql.DB
	txOpts           storage.TxOptions
	paymentRepo      storage.PaymentStorage
	orderRepo        storage.OrderStorage
	registrationRepo storage.RegistrationStorage
	reconciler       StatusReconciler
	gateway          payments.Gateway
	dedup            Deduper
	currency         string
	publisher        events.Publisher
	metrics          *metrics.Metrics
}

// PaymentDeps собирает зависимости платёжного сервиса. Dedup может быть nil.
type PaymentDeps struct {
	DB            *sql.DB
	TxOptions     storage.TxOptions
	Payments      storage.PaymentStorage
	Orders        storage.OrderStorage
	Registrations storage.RegistrationStorage
	Reconciler    StatusReconciler
	Gateway       payments.Gateway
	Dedup         Deduper
	Currency      string
	Publisher     events.Publisher
	Metrics       *metrics.Metrics
}

func NewPaymentService(log *slog.Logger, deps PaymentDeps) PaymentService {
	return &paymentService{
		log:              log,
		db:               deps.DB,
		txOpts:           deps.TxOptions,
		paymentRepo:      deps.Payments,
		orderRepo:        deps.Orders,
		registrationRepo: deps.Registrations,
		reconciler:       deps.Reconciler,
		gateway:          deps.Gateway,
		dedup:            deps.Dedup,
		currency:         deps.Currency,
		publisher:        deps.Publisher,
		metrics:          deps.Metrics,
	}
}

// toMinorUnits переводит сумму в минимальные единицы валюты (×100, округление)
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (s *paymentService) CreatePaymentIntent(ctx context.Context, userID int64, target PaymentTarget) (*IntentResult, error) {
	const op = "service.PaymentService.CreatePaymentIntent"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	if (target.OrderID == nil) == (target.RegistrationID == nil) {
		return nil, ErrPaymentTarget
	}

	payment := &models.Payment{
		Currency: s.currency,
		Status:   models.PaymentStatusPending,
		UserID:   userID,
	}
	metadata := map[string]string{"user_id": strconv.FormatInt(userID, 10)}

	if target.OrderID != nil {
		order, err := s.orderRepo.GetOrderByID(ctx, *target.OrderID)
		if err != nil {
			if errors.Is(err, storage.ErrOrderNotFound) {
				return nil, &NotFoundError{Entity: "order", ID: *target.OrderID}
			}
			logger.Error("failed to get order", slog.Any("error", err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if order.UserID != userID {
			return nil, &NotFoundError{Entity: "order", ID: *target.OrderID}
		}
		payment.Amount = toMinorUnits(order.TotalAmount)
		if order.Status != models.OrderStatusPending || payment.Amount <= 0 {
			return nil, ErrOrderNotPayable
		}
		payment.Type = models.PaymentTypeMerchandise
		payment.OrderID = target.OrderID
		metadata["order_id"] = strconv.FormatInt(order.ID, 10)
	} else {
		reg, err := s.registrationRepo.GetRegistrationByID(ctx, *target.RegistrationID)
		if err != nil {
			if errors.Is(err, storage.ErrRegistrationNotFound) {
				return nil, &NotFoundError{Entity: "registration", ID: *target.RegistrationID}
			}
			logger.Error("failed to get registration", slog.Any("error", err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if reg.UserID != userID {
			return nil, &NotFoundError{Entity: "registration", ID: *target.RegistrationID}
		}
		payment.Amount = toMinorUnits(reg.EventPrice)
		if reg.PaymentStatus == models.PaymentStatusPaid || payment.Amount <= 0 {
			return nil, ErrRegistrationNotPayable
		}
		payment.Type = models.PaymentTypeEventRegistration
		payment.RegistrationID = target.RegistrationID
		metadata["registration_id"] = strconv.FormatInt(reg.ID, 10)
	}

	// незавершённый платёж за ту же цель переиспользуется, новое намерение не создаётся
	if res, ok, err := s.reusePending(ctx, logger, payment); err != nil || ok {
		return res, err
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, payments.IntentRequest{
		Amount:   payment.Amount,
		Currency: s.currency,
		Metadata: metadata,
	})
	if err != nil {
		logger.Error("failed to create payment intent", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payment.PaymentIntentID = intent.ID
	if err := s.paymentRepo.CreatePayment(ctx, payment); err != nil {
		logger.Error("failed to store payment", slog.String("intent", intent.ID), slog.Any("error", err))
		// без строки в базе намерение осталось бы сиротой
		s.cancelIntent(ctx, logger, intent.ID)
		if errors.Is(err, storage.ErrDuplicate) {
			// параллельный запрос успел сохранить свой платёж
			if res, ok, rerr := s.reusePending(ctx, logger, payment); rerr == nil && ok {
				return res, nil
			}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("payment intent created", slog.Int64("paymentID", payment.ID), slog.Int64("amount", payment.Amount))
	return &IntentResult{
		PaymentID:       payment.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
	}, nil
}

// reusePending возвращает уже существующий незавершённый платёж за ту же цель.
// Если сумма или валюта изменились, старое намерение отменяется, платёж помечается failed
// и ok == false.
func (s *paymentService) reusePending(ctx context.Context, logger *slog.Logger, want *models.Payment) (*IntentResult, bool, error) {
	const op = "service.PaymentService.reusePending"

	existing, err := s.paymentRepo.GetPendingPayment(ctx, want.OrderID, want.RegistrationID)
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			return nil, false, nil
		}
		logger.Error("failed to get pending payment", slog.Any("error", err))
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if existing.Amount != want.Amount || existing.Currency != want.Currency || existing.UserID != want.UserID {
		logger.Info("pending payment is stale", slog.String("intent", existing.PaymentIntentID),
			slog.Int64("amount", existing.Amount), slog.Int64("newAmount", want.Amount))
		s.cancelIntent(ctx, logger, existing.PaymentIntentID)
		err := storage.WithTx(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
			return s.paymentRepo.UpdatePaymentStatus(ctx, tx, existing.ID, models.PaymentStatusFailed)
		})
		if err != nil {
			logger.Error("failed to expire pending payment", slog.Any("error", err))
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		return nil, false, nil
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, existing.PaymentIntentID)
	if err != nil {
		logger.Error("failed to get payment intent", slog.String("intent", existing.PaymentIntentID), slog.Any("error", err))
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("pending payment reused", slog.Int64("paymentID", existing.ID))
	return &IntentResult{
		PaymentID:       existing.ID,
		PaymentIntentID: existing.PaymentIntentID,
		ClientSecret:    intent.ClientSecret,
		Amount:          existing.Amount,
		Currency:        existing.Currency,
	}, true, nil
}

// cancelIntent отменяет намерение у провайдера. Ошибка только логируется:
// неоплаченное намерение провайдер со временем закроет сам.
func (s *paymentService) cancelIntent(ctx context.Context, logger *slog.Logger, intentID string) {
	if err := s.gateway.CancelPaymentIntent(ctx, intentID); err != nil {
		logger.Warn("failed to cancel payment intent", slog.String("intent", intentID), slog.Any("error", err))
	}
}

// ApplyPaymentResult в одной транзакции меняет статус платежа и связанных с ним
// заказа или регистрации. Действующее лицо для заказа - владелец платежа.
func (s *paymentService) ApplyPaymentResult(ctx context.Context, paymentIntentID string, succeeded bool) error {
	const op = "service.PaymentService.ApplyPaymentResult"
	logger := s.log.With(slog.String("op", op), slog.String("intent", paymentIntentID), slog.Bool("succeeded", succeeded))

	var (
		payment *models.Payment
		tr      *Transition
		applied bool
		outcome string
	)
	err := storage.WithTx(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		tr, applied = nil, false

		p, err := s.paymentRepo.LockPaymentByIntentIDTx(ctx, tx, paymentIntentID)
		if err != nil {
			return err
		}
		payment = p

		if p.Status == models.PaymentStatusSucceeded {
			outcome = outcomeDuplicate
			return nil
		}

		if !succeeded {
			outcome = outcomeFailed
			if p.Status == models.PaymentStatusFailed {
				outcome = outcomeDuplicate
				return nil
			}
			return s.paymentRepo.UpdatePaymentStatus(ctx, tx, p.ID, models.PaymentStatusFailed)
		}

		outcome = outcomeSucceeded
		if err := s.paymentRepo.UpdatePaymentStatus(ctx, tx, p.ID, models.PaymentStatusSucceeded); err != nil {
			return err
		}
		if p.OrderID != nil {
			tr, applied, err = s.reconciler.MarkPaidTx(ctx, tx, p.UserID, *p.OrderID)
			if err != nil {
				return err
			}
		}
		if p.RegistrationID != nil {
			if err := s.registrationRepo.MarkRegistrationPaidTx(ctx, tx, *p.RegistrationID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			return err
		}
		logger.Error("failed to apply payment result", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.PaymentApplied(ctx, outcome)
	if outcome == outcomeDuplicate {
		logger.Info("payment result already applied", slog.String("status", string(payment.Status)))
		return nil
	}

	if tr != nil {
		if applied {
			s.metrics.OrderTransition(ctx, string(tr.Kind), string(tr.Order.Status))
			publish(ctx, logger, s.publisher, events.EventOrderStatusChanged, tr.Order.ID, events.OrderStatusChangedPayload{
				OrderID: tr.Order.ID,
				From:    string(tr.From),
				To:      string(tr.Order.Status),
				ActorID: payment.UserID,
				Kind:    string(tr.Kind),
			})
		} else {
			logger.Warn("payment succeeded for order not awaiting payment",
				slog.Int64("orderID", tr.Order.ID),
				slog.String("orderStatus", string(tr.Order.Status)),
			)
		}
	}

	correlationID := int64(0)
	switch {
	case payment.OrderID != nil:
		correlationID = *payment.OrderID
	case payment.RegistrationID != nil:
		correlationID = *payment.RegistrationID
	}
	publish(ctx, logger, s.publisher, events.EventPaymentApplied, correlationID, events.PaymentAppliedPayload{
		PaymentIntentID: payment.PaymentIntentID,
		Succeeded:       succeeded,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		OrderID:         payment.OrderID,
		RegistrationID:  payment.RegistrationID,
	})

	logger.Info("payment result applied", slog.String("outcome", outcome))
	return nil
}

// HandleWebhook подтверждает неизвестные платежи и события чужих типов без ошибки,
// иначе провайдер будет повторять доставку бесконечно. Событие отмечается
// обработанным только после успешного применения.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	const op = "service.PaymentService.HandleWebhook"

	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.log.Warn("webhook rejected", slog.String("op", op), slog.Any("error", err))
		return err
	}
	logger := s.log.With(slog.String("op", op), slog.String("eventID", ev.ID), slog.String("type", ev.Type))

	if s.dedup != nil {
		seen, err := s.dedup.Seen(ctx, ev.ID)
		if err != nil {
			// без redis полагаемся на идемпотентность ApplyPaymentResult
			logger.Warn("dedup lookup failed", slog.Any("error", err))
		} else if seen {
			logger.Info("webhook event already processed")
			return nil
		}
	}

	switch ev.Type {
	case payments.EventPaymentIntentSucceeded:
		err = s.ApplyPaymentResult(ctx, ev.PaymentIntentID, true)
	case payments.EventPaymentIntentFailed:
		err = s.ApplyPaymentResult(ctx, ev.PaymentIntentID, false)
	default:
		logger.Debug("webhook event ignored")
		return nil
	}
	if err != nil {
		if !errors.Is(err, storage.ErrPaymentNotFound) {
			return err
		}
		logger.Warn("webhook for unknown payment intent", slog.String("intent", ev.PaymentIntentID))
	}

	if s.dedup != nil {
		if err := s.dedup.Mark(ctx, ev.ID); err != nil {
			logger.Warn("failed to mark webhook event", slog.Any("error", err))
		}
	}
	return nil
}
