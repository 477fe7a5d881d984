// internal/service/order/domain/state.go
package domain

import "fmt"

// State 定义了订单的生命周期状态
type State string

const (
	StatePaid      State = "PAID"      // 货到付款订单创建即视为已确认
	StatePacking   State = "PACKING"   // 生产者正在打包
	StateShipped   State = "SHIPPED"   // 已交给快递
	StateDelivered State = "DELIVERED" // 已签收
	StateCancelled State = "CANCELLED" // 已取消
)

// allowedTransitions 列出每个状态允许流转到的下一个状态
var allowedTransitions = map[State][]State{
	StatePaid:    {StatePacking, StateCancelled},
	StatePacking: {StateShipped, StateCancelled},
	StateShipped: {StateDelivered},
}

// ParseState 校验外部传入的状态字符串
func ParseState(raw string) (State, error) {
	switch s := State(raw); s {
	case StatePaid, StatePacking, StateShipped, StateDelivered, StateCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, raw)
}

func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
