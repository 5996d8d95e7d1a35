package storage

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrMerchNotFound        = errors.New("merchandise not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrLockTimeout          = errors.New("lock timeout")
	ErrDuplicate            = errors.New("duplicate record")
)

// ErrorClass - класс ошибки postgres с точки зрения повтора транзакции
type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqUniqueViolation      = "23505"
)

// ClassifyError определяет, имеет ли смысл повторять транзакцию.
// Всё, что не распознано как конфликт блокировок, считается постоянной ошибкой.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}
	if errors.Is(err, ErrLockTimeout) {
		return ErrorClassTransient
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure:
			return ErrorClassSerialization
		case pqDeadlockDetected:
			return ErrorClassDeadlock
		case pqLockNotAvailable:
			return ErrorClassTransient
		}
	}
	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func isLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqLockNotAvailable
}
