package messaging

import (
	"strconv"
	"strings"
	"sync"

	"robot-service/internal/types"
)

// Sensor hashes written by the sensor services.
const (
	ReflectanceHash = "reflectance"
	DistanceHash    = "distance"
)

// ReflectanceCache mirrors the "reflectance" hash:
//
//	ready  "true" once the sensors are calibrated
//	line   none | partial | full
//	values comma-separated readings, leftmost first
type ReflectanceCache struct {
	mu     sync.RWMutex
	ready  bool
	line   types.LineKind
	values []int
}

// Apply replaces the cached state with a full hash snapshot. Malformed fields
// fall back to the safe value: not ready, no line, no readings.
func (c *ReflectanceCache) Apply(fields map[string]string) {
	line, err := types.ParseLineKind(fields["line"])
	if err != nil {
		line = types.LineNone
	}
	values := parseValues(fields["values"])

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = fields["ready"] == "true"
	c.line = line
	c.values = values
}

// Reset forgets everything, as if the sensors had gone away.
func (c *ReflectanceCache) Reset() { c.Apply(nil) }

func (c *ReflectanceCache) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *ReflectanceCache) GetLineKind() types.LineKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.line
}

func (c *ReflectanceCache) GetSensorValues() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int(nil), c.values...)
}

func parseValues(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil
		}
		values = append(values, v)
	}
	return values
}

// DistanceCache mirrors the "distance" hash: front, rear, left and right in
// millimetres. A missing or negative field means nothing in range.
type DistanceCache struct {
	mu sync.RWMutex
	mm map[string]int
}

func (c *DistanceCache) Apply(fields map[string]string) {
	mm := make(map[string]int, 4)
	for _, sensor := range []string{"front", "rear", "left", "right"} {
		v, err := strconv.Atoi(strings.TrimSpace(fields[sensor]))
		if err != nil || v < 0 {
			continue
		}
		mm[sensor] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mm = mm
}

func (c *DistanceCache) Reset() { c.Apply(nil) }

func (c *DistanceCache) near(sensor string, rangeMm int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.mm[sensor]
	return ok && v <= rangeMm
}

func (c *DistanceCache) NearFrontObstacle(rangeMm int) bool { return c.near("front", rangeMm) }
func (c *DistanceCache) NearRearObstacle(rangeMm int) bool  { return c.near("rear", rangeMm) }
func (c *DistanceCache) NearLeftObstacle(rangeMm int) bool  { return c.near("left", rangeMm) }
func (c *DistanceCache) NearRightObstacle(rangeMm int) bool { return c.near("right", rangeMm) }
