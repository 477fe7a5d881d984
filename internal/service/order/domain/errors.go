package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCart       = errors.New("invalid cart")
	ErrInvalidInput      = errors.New("invalid input")
	ErrOutOfStock        = errors.New("out of stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateToken    = errors.New("duplicate tracking token")
)

// OutOfStockError 指明是哪一个商品库存不足（或已下架、不存在）
type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrOutOfStock
}
