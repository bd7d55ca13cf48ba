package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the catalog row a cart line points to. The catalog is maintained
// elsewhere; the order core only reads it and bumps CumulativeSales.
type Product struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name            string          `gorm:"type:varchar(255);not null" json:"name"`
	Price           decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"price"`
	ImageURL        string          `gorm:"type:text" json:"image_url"`
	CumulativeSales int             `gorm:"type:int;not null;default:0" json:"cumulative_sales"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

// CartItem is one product line in a user's cart. A user holds at most one
// line per product; consumed lines are soft deleted and can be restored.
type CartItem struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"product_id"`
	Product   Product        `gorm:"foreignKey:ProductID" json:"product"`
	Quantity  int            `gorm:"type:int;not null;default:1" json:"quantity"`
	IsChecked bool           `gorm:"not null;default:true" json:"is_checked"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ToOrderItem captures the line as a receipt snapshot.
func (c CartItem) ToOrderItem() OrderItem {
	return OrderItem{
		ProductID:   c.ProductID,
		ProductName: c.Product.Name,
		UnitPrice:   c.Product.Price,
		ImageURL:    c.Product.ImageURL,
		Quantity:    c.Quantity,
	}
}
