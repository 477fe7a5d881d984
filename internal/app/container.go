// internal/app/container.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/database"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/pkg/zookeeper"

	notifapp "storefront/internal/service/notification/application"
	notifdomain "storefront/internal/service/notification/domain"
	notifport "storefront/internal/service/notification/domain/port"
	notifinfra "storefront/internal/service/notification/infrastructure"
	notifhttp "storefront/internal/service/notification/interfaces"

	orderapp "storefront/internal/service/order/application"
	orderdomain "storefront/internal/service/order/domain"
	orderport "storefront/internal/service/order/domain/port"
	orderinfra "storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/adapter"
	orderhttp "storefront/internal/service/order/interfaces"

	rlapp "storefront/internal/service/ratelimit/application"
	rldomain "storefront/internal/service/ratelimit/domain"
	rlinfra "storefront/internal/service/ratelimit/infrastructure"
	rlhttp "storefront/internal/service/ratelimit/interfaces"

	shipapp "storefront/internal/service/shipping/application"
	shipdomain "storefront/internal/service/shipping/domain"
	shiphttp "storefront/internal/service/shipping/interfaces"
)

const (
	zkSessionTimeout = 10 * time.Second
	zkLockWait       = 5 * time.Second
)

// orderStore 是订单存储同时实现的四个仓储接口
type orderStore interface {
	orderdomain.CheckoutStore
	orderdomain.OrderRepository
	orderdomain.ProductRepository
	orderdomain.ProducerRepository
}

// Container 持有两个二进制共用的全部组件
type Container struct {
	Config   *bootstrap.Config
	Orders   *orderapp.OrderApplicationService
	Shipping *shipapp.ShippingService
	Notifier *notifapp.NotificationService
	Delivery *notifapp.DeliveryService
	Limiter  *rlapp.Limiter

	rateLimit *rlhttp.Middleware
	consumer  *orderinfra.StatusCommandConsumer
	closers   []func() error
}

// New 按配置组装所有依赖；返回错误时已经打开的资源会被释放
func New(cfg *bootstrap.Config) (_ *Container, err error) {
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// 1. 存储
	var db *gorm.DB
	var store orderStore
	var tasks notifdomain.TaskRepository
	if cfg.Storage.Driver == "mysql" {
		if db, err = database.Open(cfg.Infra.MySQL.DSN); err != nil {
			return nil, err
		}
		sqlDB, dbErr := db.DB()
		if dbErr != nil {
			return nil, dbErr
		}
		c.closers = append(c.closers, sqlDB.Close)

		models := append(orderinfra.AllModels(), notifinfra.AllModels()...)
		models = append(models, rlinfra.AllModels()...)
		if err = db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		store = orderinfra.NewGormStore(db)
		tasks = notifinfra.NewGormTaskRepository(db)
	} else {
		logger.Ctx(context.Background()).Warn().Msg("⚠️ using in-memory storage, data is lost on restart")
		store = orderinfra.NewMemoryStore()
		tasks = notifinfra.NewMemoryTaskRepository()
	}

	// 2. 运费
	engine, err := shipdomain.NewEngine(shippingConfig(cfg.Shipping))
	if err != nil {
		return nil, err
	}
	c.Shipping = shipapp.NewShippingService(engine, adapter.NewCatalogAdapter(store))

	// 3. 通知
	renderer := notifdomain.NewRenderer()
	c.Notifier = notifapp.NewNotificationService(tasks, renderer, nil)
	c.Delivery = notifapp.NewDeliveryService(tasks, renderer, senders(cfg.Notification), deliveryConfig(cfg.Notification))
	if len(cfg.Infra.Zookeeper.Servers) > 0 {
		var conn *zk.Conn
		if conn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Servers, zkSessionTimeout); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { conn.Close(); return nil })
		c.Delivery.WithPassLocker(zookeeper.NewPassLocker(conn, zkLockWait))
	}

	// 4. 订单，事件提交后先进程内入队，再按需写 Kafka
	publishers := []orderport.OrderEventPublisher{adapter.NewInProcessNotifier(c.Notifier)}
	if cfg.Infra.Kafka.Enabled {
		events := adapter.NewKafkaEventAdapter(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.OrderEventsTopic))
		c.closers = append(c.closers, events.Close)
		publishers = append(publishers, events)
	}
	c.Orders = orderapp.NewOrderApplicationService(store, store, store, store, c.Shipping, adapter.NewFanoutPublisher(publishers...))
	c.Notifier.SetOrderSource(c.Orders)

	// 5. 限流
	var counters rldomain.CounterStore
	switch cfg.RateLimit.Backend {
	case "mysql":
		counters = rlinfra.NewGormCounterStore(db)
	case "redis":
		var client *redis.Client
		if client, err = redis.NewClient(cfg.Infra.Redis.Addrs); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Close)
		if counters, err = rlinfra.NewRedisCounterStore(client, cfg.RateLimit.Retention); err != nil {
			return nil, err
		}
	default:
		counters = rlinfra.NewMemoryCounterStore()
	}
	c.Limiter = rlapp.NewLimiter(counters, cfg.RateLimit.Retention)
	c.rateLimit = rlhttp.NewMiddleware(c.Limiter, policies(cfg.RateLimit.Policies))

	if cfg.Infra.Kafka.Enabled {
		reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.StatusChangeTopic, cfg.Infra.Kafka.GroupID)
		c.consumer = orderinfra.NewStatusCommandConsumer(reader, c.Orders)
	}
	return c, nil
}

// RegisterRoutes 挂载所有 HTTP 入口
func (c *Container) RegisterRoutes(mux *http.ServeMux) {
	secret := c.Config.Ops.CronSecret
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", metrics.Handler())

	orderhttp.NewOrderHandler(c.Orders, c.rateLimit, secret, c.Config.App.Env == "dev").RegisterRoutes(mux)
	shiphttp.NewShippingHandler(c.Shipping).RegisterRoutes(mux)
	notifhttp.NewNotificationHandler(c.Delivery, c.Notifier, secret).RegisterRoutes(mux)
	rlhttp.NewMaintenanceHandler(c.Limiter, secret).RegisterRoutes(mux)
}

// StartConsumers 启动 Kafka 状态命令消费者（未启用 Kafka 时什么都不做）
func (c *Container) StartConsumers(ctx context.Context) {
	if c.consumer != nil {
		c.consumer.Start(ctx)
	}
}

// Close 停止消费者并按打开的逆序释放资源
func (c *Container) Close() error {
	if c.consumer != nil {
		c.consumer.Stop()
		c.consumer = nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func shippingConfig(s bootstrap.ShippingConfig) shipdomain.Config {
	cfg := shipdomain.Config{
		FlatFee:           decimal.NewFromFloat(s.FlatFee),
		FreeThreshold:     decimal.NewFromFloat(s.FreeThreshold),
		CODFee:            decimal.NewFromFloat(s.CODFee),
		VolumetricDivisor: s.VolumetricDivisor,
	}
	for _, r := range s.Surcharges {
		cfg.Surcharges = append(cfg.Surcharges, shipdomain.SurchargeRule{
			Name:      r.Name,
			Condition: r.Condition,
			PerUnit:   decimal.NewFromFloat(r.PerUnit),
			Reason:    r.Reason,
		})
	}
	return cfg
}

func deliveryConfig(n bootstrap.NotificationConfig) notifapp.DeliveryConfig {
	cfg := notifapp.DefaultDeliveryConfig()
	cfg.MaxAttempts = n.MaxAttempts
	if n.BackoffBase > 0 {
		cfg.Backoff.Base = n.BackoffBase
	}
	if n.BackoffMax > 0 {
		cfg.Backoff.Max = n.BackoffMax
	}
	if n.DispatchTimeout > 0 {
		cfg.DispatchTimeout = n.DispatchTimeout
	}
	if n.ClaimTTL > 0 {
		cfg.ClaimTTL = n.ClaimTTL
	}
	if n.Concurrency > 0 {
		cfg.Concurrency = n.Concurrency
	}
	if n.MaxBatch > 0 {
		cfg.MaxBatch = n.MaxBatch
	}
	return cfg
}

// senders 为每个渠道选择发送器：关闭或没有配置地址时只打日志
func senders(n bootstrap.NotificationConfig) map[notifdomain.Channel]notifport.Sender {
	client := httpclient.NewClient(otel.Tracer("notification-sender"))
	pick := func(ch notifdomain.Channel, disabled bool, ep bootstrap.ChannelEndpoint) notifport.Sender {
		if disabled || ep.Endpoint == "" {
			return notifinfra.NewSimulatedSender(ch)
		}
		return notifinfra.NewHTTPSender(ch, client, ep.Endpoint, ep.APIKey, ep.From)
	}
	return map[notifdomain.Channel]notifport.Sender{
		notifdomain.ChannelEmail: pick(notifdomain.ChannelEmail, n.EmailDisabled, n.Email),
		notifdomain.ChannelSMS:   pick(notifdomain.ChannelSMS, n.SMSDisabled, n.SMS),
	}
}

func policies(in map[string]bootstrap.RateLimitPolicy) map[string]rldomain.Policy {
	out := make(map[string]rldomain.Policy, len(in))
	for action, p := range in {
		out[action] = rldomain.Policy{Ceiling: p.Ceiling, Window: p.Window}
	}
	return out
}
