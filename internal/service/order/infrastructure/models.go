package infrastructure

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const trackingTokenIndex = "uk_orders_tracking_token"

// ProducerModel 对应数据库中的 producers 表
type ProducerModel struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Name      string `gorm:"type:varchar(255)"`
	Email     string `gorm:"type:varchar(255)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProducerModel) TableName() string {
	return "producers"
}

// ProductModel 对应数据库中的 products 表，stock 只在结账事务内被扣减
type ProductModel struct {
	ID         string          `gorm:"primaryKey;type:varchar(64)"`
	Name       string          `gorm:"type:varchar(255)"`
	Price      decimal.Decimal `gorm:"type:decimal(10,2)"`
	Stock      int             `gorm:"not null;default:0"`
	Active     bool            `gorm:"not null;default:true"`
	ProducerID string          `gorm:"type:varchar(64);index"`
	WeightKg   float64         `gorm:"type:decimal(8,3)"`
	LengthCm   float64         `gorm:"type:decimal(8,2)"`
	WidthCm    float64         `gorm:"type:decimal(8,2)"`
	HeightCm   float64         `gorm:"type:decimal(8,2)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ProductModel) TableName() string {
	return "products"
}

// OrderModel 对应数据库中的 orders 表；tracking_token 可为 NULL 以便历史数据回填
type OrderModel struct {
	ID             string           `gorm:"primaryKey;type:varchar(36)"`
	Status         string           `gorm:"type:varchar(16);index"`
	BuyerName      string           `gorm:"type:varchar(255)"`
	BuyerPhone     string           `gorm:"type:varchar(32)"`
	BuyerEmail     string           `gorm:"type:varchar(255)"`
	ShippingMethod string           `gorm:"type:varchar(32)"`
	Subtotal       decimal.Decimal  `gorm:"type:decimal(10,2)"`
	ShippingCost   decimal.Decimal  `gorm:"type:decimal(10,2)"`
	Total          decimal.Decimal  `gorm:"type:decimal(10,2)"`
	Currency       string           `gorm:"type:char(3)"`
	TrackingToken  sql.NullString   `gorm:"type:varchar(64);uniqueIndex:uk_orders_tracking_token"`
	Items          []OrderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt      time.Time        `gorm:"index"`
	UpdatedAt      time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 对应 order_items 表，写入后不再修改
type OrderItemModel struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	OrderID     string          `gorm:"type:varchar(36);index"`
	ProductID   string          `gorm:"type:varchar(64)"`
	ProductName string          `gorm:"type:varchar(255)"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2)"`
	ProducerID  string          `gorm:"type:varchar(64)"`
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// AllModels 供启动时 AutoMigrate 使用
func AllModels() []interface{} {
	return []interface{}{&ProducerModel{}, &ProductModel{}, &OrderModel{}, &OrderItemModel{}}
}
