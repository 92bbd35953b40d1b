package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	"robot-service/internal/logger"
	"robot-service/internal/types"
)

// Command lists (LPUSH by us, BRPOP by the sensor services) and channels.
const (
	ReflectanceCommands = "robot:reflectance"
	LineFollowCommands  = "robot:line-follow"
	ButtonCommands      = "robot:button"

	RobotHash   = "robot"
	DiagChannel = "robot:diag"
	FaultStream = "events:faults"

	diagQueue = 64

	// Calls made on behalf of the control loop give up after commandTimeout.
	commandTimeout = 100 * time.Millisecond

	healthInterval = time.Second
	healthTimeout  = 500 * time.Millisecond
	healthFailures = 3
)

var ErrConnectionLost = errors.New("redis connection lost")

type Callbacks struct {
	ButtonCallback func(string) error // "short", "long"
}

type RedisClient struct {
	client      *redis.Client
	callbacks   Callbacks
	logger      *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	session     string
	reflectance *ReflectanceCache
	distance    *DistanceCache
	diag        chan string
	dropped     atomic.Uint32
	lost        chan struct{}
	lostOnce    sync.Once
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:                  fmt.Sprintf("%s:%d", host, port),
			DB:                    0,
			ContextTimeoutEnabled: true,
		}),
		callbacks:   callbacks,
		logger:      l,
		ctx:         ctx,
		cancel:      cancel,
		session:     uuid.NewString(),
		reflectance: &ReflectanceCache{},
		distance:    &DistanceCache{},
		diag:        make(chan string, diagQueue),
		lost:        make(chan struct{}),
	}
}

// Session identifies this service run in published state and faults.
func (r *RedisClient) Session() string { return r.session }

func (r *RedisClient) Reflectance() *ReflectanceCache { return r.reflectance }
func (r *RedisClient) Distance() *DistanceCache       { return r.distance }

// Lost is closed when the subscription breaks or Redis stops answering.
func (r *RedisClient) Lost() <-chan struct{} { return r.lost }

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis (session %s)", r.session)

	for _, hash := range []string{ReflectanceHash, DistanceHash} {
		if err := r.refresh(hash); err != nil {
			r.logger.Warnf("Failed to get initial %s state: %v", hash, err)
		}
	}
	return nil
}

// StartListening subscribes to the sensor notifications and starts the
// command and diagnostic workers.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pubsub := r.client.Subscribe(r.ctx, ReflectanceHash, DistanceHash)
	if _, err := pubsub.Receive(r.ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	r.logger.Infof("Subscribed to Redis channels: %s, %s", ReflectanceHash, DistanceHash)

	r.wg.Add(4)
	go r.redisListener(pubsub)
	go r.listCommandListener(ButtonCommands, r.handleButtonCommand)
	go r.diagPublisher()
	go r.healthMonitor(healthInterval, r.ping)
	return nil
}

func (r *RedisClient) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// healthMonitor pings on every interval. The pub/sub channel survives
// outages by reconnecting, so only failed pings reveal a dead link:
// healthFailures in a row count as lost.
func (r *RedisClient) healthMonitor(interval time.Duration, ping func(context.Context) error) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(r.ctx, healthTimeout)
		err := ping(ctx)
		cancel()
		if r.ctx.Err() != nil {
			return
		}
		if err == nil {
			if failures > 0 {
				r.logger.Infof("Redis answering again")
			}
			failures = 0
			continue
		}

		failures++
		r.logger.Warnf("Redis health check failed (%d/%d): %v", failures, healthFailures, err)
		if failures >= healthFailures {
			r.logger.Errorf("Redis unreachable, sensor data is stale")
			r.connectionLost()
			return
		}
	}
}

// refresh reloads one sensor hash into its cache.
func (r *RedisClient) refresh(hash string) error {
	fields, err := r.client.HGetAll(r.ctx, hash).Result()
	if err != nil {
		return err
	}
	switch hash {
	case ReflectanceHash:
		r.reflectance.Apply(fields)
	case DistanceHash:
		r.distance.Apply(fields)
	}
	return nil
}

func (r *RedisClient) redisListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	r.logger.Infof("Starting Redis message listener")
	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting listener")
			return
		case msg, ok := <-channel:
			if !ok || msg == nil {
				r.logger.Errorf("Redis channel closed unexpectedly")
				r.connectionLost()
				return
			}
			r.logger.Debugf("Received Redis message: channel=%s payload=%s", msg.Channel, msg.Payload)
			if err := r.refresh(msg.Channel); err != nil {
				r.logger.Warnf("Failed to refresh %s: %v", msg.Channel, err)
			}
		}
	}
}

// connectionLost drops the sensor caches to their safe state and signals
// Lost.
func (r *RedisClient) connectionLost() {
	r.reflectance.Reset()
	r.distance.Reset()
	r.lostOnce.Do(func() { close(r.lost) })
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
		}

		// Short timeout to allow periodic context cancellation checks
		result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if errors.Is(err, context.Canceled) {
				r.logger.Infof("Context cancelled, exiting %s listener", key)
				return
			}
			r.logger.Warnf("Error reading from %s list: %v", key, err)
			time.Sleep(time.Second)
			continue
		}

		if len(result) >= 2 { // BRPOP returns [key, value]
			r.logger.Debugf("Received command from %s: %s", key, result[1])
			if err := handler(result[1]); err != nil {
				r.logger.Warnf("Error handling %s command: %v", key, err)
			}
		}
	}
}

func (r *RedisClient) handleButtonCommand(value string) error {
	if r.callbacks.ButtonCallback == nil {
		return nil
	}
	switch value {
	case "short", "long":
		return r.callbacks.ButtonCallback(value)
	default:
		return fmt.Errorf("invalid button command: %s", value)
	}
}

// SendCommand pushes a command onto a service's command list. It gives up
// after commandTimeout.
func (r *RedisClient) SendCommand(list, command string) error {
	ctx, cancel := context.WithTimeout(r.ctx, commandTimeout)
	defer cancel()
	if err := r.client.LPush(ctx, list, command).Err(); err != nil {
		r.logger.Warnf("Failed to send command '%s' to '%s': %v", command, list, err)
		return err
	}
	r.logger.Debugf("Sent command '%s' to '%s'", command, list)
	return nil
}

// Status queues a diagnostic line. A full queue drops the line.
func (r *RedisClient) Status(line string) {
	select {
	case r.diag <- line:
	default:
		if r.dropped.Inc() == 1 {
			r.logger.Warnf("Diagnostic queue full, dropping lines")
		}
	}
}

// Dropped returns the number of diagnostic lines lost to a full queue.
func (r *RedisClient) Dropped() uint32 { return r.dropped.Load() }

func (r *RedisClient) diagPublisher() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case line := <-r.diag:
			if err := r.client.Publish(r.ctx, DiagChannel, line).Err(); err != nil {
				r.logger.Debugf("Failed to publish diagnostic: %v", err)
			}
		}
	}
}

func (r *RedisClient) PublishRobotState(state types.RobotState) error {
	timestamp := time.Now().Format(time.RFC3339)
	ctx, cancel := context.WithTimeout(r.ctx, commandTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, RobotHash, "state", string(state), "state:timestamp", timestamp, "session", r.session)
	pipe.Publish(ctx, RobotHash, "state")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish robot state: %w", err)
	}
	r.logger.Debugf("Published robot state %s", state)
	return nil
}

// PublishOdometry stores the raw encoder counts.
func (r *RedisClient) PublishOdometry(left, right int64) error {
	return r.client.HSet(r.ctx, RobotHash, "encoder:left", left, "encoder:right", right).Err()
}

// PublishAdjustments records the wiring adjustments applied at startup.
func (r *RedisClient) PublishAdjustments(adjustments string) error {
	return r.client.HSet(r.ctx, RobotHash, "adjustments", adjustments).Err()
}

// ReportFault adds a fatal fault to the global event stream.
func (r *RedisClient) ReportFault(description string) error {
	r.logger.Errorf("Reporting fault: %s", description)

	pipe := r.client.Pipeline()
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: FaultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group":       "robot",
			"description": description,
			"session":     r.session,
			"ts":          time.Now().UnixMilli(),
		},
	})
	pipe.Publish(r.ctx, RobotHash, "fault")
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	// Wait for all goroutines to finish with a timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Debugf("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Warnf("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}

// ReflectanceSensor is the line sensor as seen by the controller: cached
// readings plus calibration commands.
type ReflectanceSensor struct {
	*ReflectanceCache
	r *RedisClient
}

func NewReflectanceSensor(r *RedisClient) *ReflectanceSensor {
	return &ReflectanceSensor{ReflectanceCache: r.reflectance, r: r}
}

func (s *ReflectanceSensor) CalibrateStart() bool {
	return s.r.SendCommand(ReflectanceCommands, "calibrate-start") == nil
}

func (s *ReflectanceSensor) CalibrateStop() bool {
	return s.r.SendCommand(ReflectanceCommands, "calibrate-stop") == nil
}

// LineFollower starts and stops the external line-following service.
type LineFollower struct {
	r *RedisClient
}

func NewLineFollower(r *RedisClient) *LineFollower { return &LineFollower{r: r} }

func (f *LineFollower) StartFollowing() { _ = f.r.SendCommand(LineFollowCommands, "start") }
func (f *LineFollower) StopFollowing()  { _ = f.r.SendCommand(LineFollowCommands, "stop") }
