// Package shop — магазин AstroCoins: каталог по городам, покупки и выдача заказов.
package shop

import (
	"time"

	"github.com/google/uuid"
)

// Category — категория товаров, принадлежит одному городу.
type Category struct {
	ID          int64
	CityID      int64
	Name        string
	Slug        string
	Description string
	Icon        string
	Order       int
	IsFeatured  bool
	CreatedAt   time.Time
}

// Product — товар, принадлежит одному городу и одной категории того же города.
type Product struct {
	ID          int64
	CityID      int64
	CategoryID  int64
	Name        string
	Slug        string
	Description string
	Price       int64 // 0..SHOP_MAX_PRICE
	Stock       int
	Available   bool
	IsDigital   bool
	Featured    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Purchase — покупка товара.
type Purchase struct {
	ID          int64
	OrderCode   uuid.UUID // Код заказа для выдачи
	UserID      int64
	ProductID   int64
	Quantity    int
	TotalPrice  int64
	Delivered   bool
	DeliveredAt *time.Time
	DeliveredBy *int64
	CreatedAt   time.Time
}

// Order — покупка вместе с данными товара и покупателя, для выдачи.
type Order struct {
	Purchase
	ProductName string
	CityID      int64
	Username    string
}

// CategoryWithProducts — раздел каталога.
type CategoryWithProducts struct {
	Category *Category
	Products []*Product
}

// CategoryInput — данные для создания (ID == 0) или изменения категории.
type CategoryInput struct {
	ID          int64
	CityID      *int64
	Name        string
	Slug        string
	Description string
	Icon        string
	Order       int
	IsFeatured  bool
}

// ProductInput — данные для создания (ID == 0) или изменения товара.
type ProductInput struct {
	ID          int64
	CityID      *int64
	CategoryID  int64
	Name        string
	Slug        string
	Description string
	Price       int64
	Stock       int
	Available   bool
	IsDigital   bool
	Featured    bool
}

// PurchaseResult — результат покупки.
type PurchaseResult struct {
	PurchaseID int64
	OrderCode  uuid.UUID
	NewBalance int64
	NewStock   int
	Message    string
}

// DefaultCategories — стандартный набор категорий нового города.
var DefaultCategories = []CategoryInput{
	{Name: "Коврики для мыши", Icon: "fa-computer-mouse", Order: 1},
	{Name: "Браслеты", Icon: "fa-ring", Order: 2},
	{Name: "Канцелярские принадлежности", Icon: "fa-pencil", Order: 3},
	{Name: "Попсокеты", Icon: "fa-mobile-screen", Order: 4},
	{Name: "Бутылки/стаканы для воды", Icon: "fa-bottle-water", Order: 5},
	{Name: "Рюкзаки и сумки", Icon: "fa-bag-shopping", Order: 6},
	{Name: "Головные уборы", Icon: "fa-hat-cowboy", Order: 7},
	{Name: "Переводки и наклейки", Icon: "fa-note-sticky", Order: 8},
	{Name: "ИЗ с педагогом", Icon: "fa-palette", Order: 9},
	{Name: "Вкусняшки", Icon: "fa-cookie-bite", Order: 10},
	{Name: "Часы", Icon: "fa-clock", Order: 11},
	{Name: "Игры", Icon: "fa-gamepad", Order: 12},
	{Name: "Одежда", Icon: "fa-shirt", Order: 13},
	{Name: "Подарочные сертификаты", Icon: "fa-gift", Order: 14},
	{Name: "USB-накопитель (флешка)", Icon: "fa-usb", Order: 15},
	{Name: "Ремувки", Icon: "fa-eraser", Order: 16},
	{Name: "Картхолдер", Icon: "fa-credit-card", Order: 17},
	{Name: "Roblox ТОП", Icon: "fa-robot", Order: 18, IsFeatured: true},
	{Name: "Gold Standoff", Icon: "fa-gun", Order: 19, IsFeatured: true},
	{Name: "Steam DOTA TOP", Icon: "fa-gamepad", Order: 20, IsFeatured: true},
	{Name: "Значки", Icon: "fa-circle-check", Order: 21},
	{Name: "Зарядный аккумулятор", Icon: "fa-battery-full", Order: 22},
	{Name: "Бэйджи школьные", Icon: "fa-id-card", Order: 23},
}
