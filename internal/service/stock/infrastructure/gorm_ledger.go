package infrastructure

import (
	"context"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockgate/internal/service/stock/domain"
)

// MySQL 错误码
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

var tracer = otel.Tracer("stockgate/ledger")

// GormLedger 是 port.Ledger 的 GORM 实现
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// AutoMigrate 创建或更新 stock_items / stock_orders 表结构
func (l *GormLedger) AutoMigrate(ctx context.Context) error {
	return l.db.WithContext(ctx).AutoMigrate(&StockItemModel{}, &StockOrderModel{})
}

// Settle 在一个事务内完成：行锁 -> 按 token 查重 -> 校验库存 -> 扣减 -> 写订单
func (l *GormLedger) Settle(ctx context.Context, r *domain.Reservation) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "ledger.Settle")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("item.id", int64(r.ItemID)),
		attribute.Int64("quantity", r.Quantity),
		attribute.String("correlation.token", r.CorrelationToken),
	)

	var settled *domain.Order
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item StockItemModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", int64(r.ItemID)).
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.SettlementFault{Kind: domain.FaultNotFound, ItemID: r.ItemID, Requested: r.Quantity}
		}
		if err != nil {
			return errors.Wrapf(err, "lock item %s", r.ItemID)
		}

		existing, err := findOrderByToken(tx, r.CorrelationToken)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Replayed = true
			settled = existing
			return nil
		}

		if item.Quantity < r.Quantity {
			return &domain.SettlementFault{
				Kind:      domain.FaultInsufficientDurableStock,
				ItemID:    r.ItemID,
				Requested: r.Quantity,
				Available: item.Quantity,
			}
		}

		err = tx.Model(&StockItemModel{}).
			Where("id = ?", item.ID).
			Update("quantity", gorm.Expr("quantity - ?", r.Quantity)).Error
		if err != nil {
			return errors.Wrapf(err, "decrement item %s", r.ItemID)
		}

		model := toOrderModel(domain.NewCompletedOrder(r))
		if err := tx.Create(model).Error; err != nil {
			return errors.Wrapf(err, "insert order %s", r.CorrelationToken)
		}
		settled = toDomainOrder(model)
		return nil
	})

	if err != nil && IsDuplicateKey(err) {
		// 并发的重复投递先一步提交了订单
		existing, findErr := l.OrderByToken(ctx, r.CorrelationToken)
		if findErr == nil {
			existing.Replayed = true
			return existing, nil
		}
	}
	if err != nil {
		if _, isFault := domain.AsSettlementFault(err); !isFault {
			span.SetAttributes(attribute.Bool("lock.contention", IsLockContention(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	span.SetAttributes(attribute.Bool("replayed", settled.Replayed))
	return settled, nil
}

func findOrderByToken(tx *gorm.DB, token string) (*domain.Order, error) {
	var models []StockOrderModel
	if err := tx.Where("correlation_token = ?", token).Limit(1).Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "find order %s", token)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return toDomainOrder(&models[0]), nil
}

// InitItem 以 upsert 方式设置持久层库存
func (l *GormLedger) InitItem(ctx context.Context, item domain.Item) error {
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "quantity", "updated_at"}),
	}).Create(toItemModel(item)).Error
	if err != nil {
		return errors.Wrapf(err, "init item %s", item.ID)
	}
	return nil
}

func (l *GormLedger) Quantity(ctx context.Context, id domain.ItemID) (int64, error) {
	var item StockItemModel
	err := l.db.WithContext(ctx).Where("id = ?", int64(id)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.ErrItemNotFound
	}
	if err != nil {
		return 0, errors.Wrapf(err, "query item %s", id)
	}
	return item.Quantity, nil
}

func (l *GormLedger) OrderByToken(ctx context.Context, token string) (*domain.Order, error) {
	var model StockOrderModel
	err := l.db.WithContext(ctx).Where("correlation_token = ?", token).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query order %s", token)
	}
	return toDomainOrder(&model), nil
}

// IsDuplicateKey 判断是否为唯一键冲突
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysqldriver.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// IsLockContention 判断是否为锁等待超时或死锁，这类错误重试通常能成功
func IsLockContention(err error) bool {
	var me *mysqldriver.MySQLError
	return errors.As(err, &me) && (me.Number == errLockWaitTimeout || me.Number == errDeadlock)
}
