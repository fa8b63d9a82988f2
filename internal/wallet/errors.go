package wallet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinels for errors.Is. The detailed error types below match them.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRoleRestricted      = errors.New("balance kind not spendable under current marketing role")
	ErrRoleLocked          = errors.New("marketing role already locked")
	ErrInvalidRole         = errors.New("invalid marketing role")
	ErrStoreUnavailable    = errors.New("ledger store unavailable")
)

// InvalidAmountError is returned before any I/O when an amount is not
// strictly positive or carries more precision than the kind allows.
type InvalidAmountError struct {
	Kind   Kind
	Amount decimal.Decimal
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %s for %s: %s", e.Amount.String(), e.Kind, e.Reason)
}

func (e *InvalidAmountError) Is(target error) bool { return target == ErrInvalidAmount }

// InsufficientBalanceError means a debit would drive a sub-balance negative.
type InsufficientBalanceError struct {
	Kind      Kind
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s: available %s, requested %s", e.Kind, e.Available.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// RoleRestrictedError means the debited kind is not spendable under the active role.
type RoleRestrictedError struct {
	Kind Kind
	Role MarketingRole
}

func (e *RoleRestrictedError) Error() string {
	return fmt.Sprintf("%s is not spendable with marketing role %s", e.Kind, e.Role)
}

func (e *RoleRestrictedError) Is(target error) bool { return target == ErrRoleRestricted }

// RoleLockedError names the role already locked in and the one requested.
type RoleLockedError struct {
	Current   MarketingRole
	Requested MarketingRole
}

func (e *RoleLockedError) Error() string {
	return fmt.Sprintf("marketing role %s is locked; cannot assign %s", e.Current, e.Requested)
}

func (e *RoleLockedError) Is(target error) bool { return target == ErrRoleLocked }

// StoreUnavailableError wraps a failure of the durable store. The atomic
// apply guarantees no partial effect, so callers may retry (credits only
// with a reference id).
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("ledger store %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// unavailable wraps err unless it already is a typed ledger error.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrRoleRestricted) ||
		errors.Is(err, ErrRoleLocked) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrStoreUnavailable)
}
