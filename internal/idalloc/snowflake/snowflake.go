// Package snowflake provides a ZooKeeper-coordinated, Snowflake-style
// generator for compact 64-bit distributed IDs.
//
// Like the segment package, this is a companion to the UUIDv7 generator,
// not something the generator depends on: cross-process ID coordination is
// explicitly out of scope for UUIDv7 generation itself. It exists for
// callers that need a second, denser ID space (e.g. a shard key) alongside
// UUIDv7 values, coordinated across processes via ZooKeeper worker-ID
// registration.
package snowflake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	// Epoch is the custom epoch, UTC 2023-01-01 00:00:00, subtracted from
	// wall-clock milliseconds before they're shifted into the ID.
	Epoch int64 = 1672531200000

	workerIDBits = 10
	sequenceBits = 12

	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
	sequenceMask   = -1 ^ (-1 << sequenceBits)
	workerIDMask   = -1 ^ (-1 << workerIDBits)

	zkRootPath = "/leaf_snowflake"
)

// NodeInfo is the worker-ID assignment persisted to both ZooKeeper and the
// local cache file, letting a node recover its identity across restarts.
type NodeInfo struct {
	LastTime   int64 `json:"last_time"`
	CreateTime int64 `json:"create_time"`
	WorkerID   int64 `json:"worker_id"`
}

// Config controls Driver construction.
type Config struct {
	ZKServers      []string
	Service        string
	Port           int
	CachePath      string // local worker-ID cache file; defaults to .leaf_cache_<port>
	ZKTimeout      time.Duration
	Logger         *slog.Logger
	HeartbeatEvery time.Duration
}

// Driver generates Snowflake-style IDs and maintains this node's worker-ID
// registration in ZooKeeper.
type Driver struct {
	mu       sync.Mutex
	lastTime int64
	workerID int64
	sequence int64

	zkClient  *zk.Conn
	service   string
	port      int
	cachePath string
	heartbeat time.Duration
	log       *slog.Logger
}

// NewDriver connects to ZooKeeper, registers or recovers this node's
// worker ID, and starts the background heartbeat.
func NewDriver(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.ZKTimeout == 0 {
		cfg.ZKTimeout = 5 * time.Second
	}
	if cfg.HeartbeatEvery == 0 {
		cfg.HeartbeatEvery = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cachePath := cfg.CachePath
	if cachePath == "" {
		cachePath = fmt.Sprintf(".leaf_cache_%d", cfg.Port)
	}

	conn, _, err := zk.Connect(cfg.ZKServers, cfg.ZKTimeout)
	if err != nil {
		return nil, fmt.Errorf("snowflake: connect zk: %w", err)
	}

	d := &Driver{
		zkClient:  conn,
		service:   cfg.Service,
		port:      cfg.Port,
		cachePath: cachePath,
		heartbeat: cfg.HeartbeatEvery,
		log:       cfg.Logger,
	}

	workerID, err := d.registerOrRecover()
	if err != nil {
		conn.Close()
		return nil, err
	}
	d.workerID = workerID
	d.log.Info("snowflake driver initialized", "worker_id", workerID, "service", cfg.Service, "port", cfg.Port)

	go d.runHeartbeat(ctx)
	return d, nil
}

func (d *Driver) registerOrRecover() (int64, error) {
	servicePath := fmt.Sprintf("%s/%s", zkRootPath, d.service)
	d.ensurePath(servicePath)

	nodeKey := fmt.Sprintf("%s/node-%d", servicePath, d.port)

	var info NodeInfo
	var workerID int64

	exists, _, err := d.zkClient.Exists(nodeKey)
	if err != nil {
		return 0, fmt.Errorf("snowflake: check node existence: %w", err)
	}

	now := time.Now().UnixMilli()

	if exists {
		data, _, err := d.zkClient.Get(nodeKey)
		if err != nil {
			return 0, fmt.Errorf("snowflake: get node info: %w", err)
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return 0, fmt.Errorf("snowflake: decode node info: %w", err)
		}
		workerID = info.WorkerID

		if now < info.LastTime {
			return 0, fmt.Errorf("snowflake: clock moved backwards: %d < %d", now, info.LastTime)
		}
		d.log.Info("recovered worker id from zk", "worker_id", workerID)
	} else {
		if cached, err := d.loadLocalCache(); err == nil {
			workerID = cached.WorkerID
			if now < cached.LastTime {
				return 0, fmt.Errorf("snowflake: clock moved backwards: %d < %d", now, cached.LastTime)
			}
			d.log.Info("recovered worker id from local cache", "worker_id", workerID)
		} else {
			workerID = int64(d.port) % (workerIDMask + 1)
		}

		info = NodeInfo{WorkerID: workerID, LastTime: now, CreateTime: now}
	}

	bytes, err := json.Marshal(info)
	if err != nil {
		return 0, fmt.Errorf("snowflake: encode node info: %w", err)
	}
	if exists {
		_, err = d.zkClient.Set(nodeKey, bytes, -1)
	} else {
		_, err = d.zkClient.Create(nodeKey, bytes, 0, zk.WorldACL(zk.PermAll))
	}
	if err != nil {
		return 0, fmt.Errorf("snowflake: register node info: %w", err)
	}

	if err := d.saveLocalCache(info); err != nil {
		d.log.Warn("snowflake: failed to write local cache", "error", err)
	}
	return workerID, nil
}

// NextID generates the next distributed ID: 1 reserved bit, 41-bit
// timestamp (relative to Epoch), 10-bit worker ID, 12-bit sequence.
func (d *Driver) NextID() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixMilli()

	if now < d.lastTime {
		offset := d.lastTime - now
		if offset > 5 {
			return 0, fmt.Errorf("snowflake: clock moved backwards by %dms, refusing", offset)
		}
		time.Sleep(time.Duration(offset) * time.Millisecond)
		now = time.Now().UnixMilli()
		if now < d.lastTime {
			return 0, fmt.Errorf("snowflake: clock moved backwards, refusing")
		}
	}

	if now == d.lastTime {
		d.sequence = (d.sequence + 1) & sequenceMask
		if d.sequence == 0 {
			for now <= d.lastTime {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		d.sequence = 0
	}

	d.lastTime = now

	id := ((now - Epoch) << timestampShift) |
		(d.workerID << workerIDShift) |
		d.sequence

	return id, nil
}

// runHeartbeat periodically republishes this node's liveness to ZooKeeper
// and the local cache, until ctx is cancelled.
func (d *Driver) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(d.heartbeat)
	defer ticker.Stop()

	servicePath := fmt.Sprintf("%s/%s", zkRootPath, d.service)
	nodeKey := fmt.Sprintf("%s/node-%d", servicePath, d.port)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			now := time.Now().UnixMilli()
			last := d.lastTime
			d.mu.Unlock()

			if now < last {
				d.log.Warn("clock rollback detected during heartbeat", "now", now, "last", last)
				continue
			}

			info := NodeInfo{WorkerID: d.workerID, LastTime: now}
			data, err := json.Marshal(info)
			if err != nil {
				continue
			}
			if _, err := d.zkClient.Set(nodeKey, data, -1); err != nil {
				d.log.Warn("heartbeat: zk set failed", "error", err)
			}
			if err := d.saveLocalCache(info); err != nil {
				d.log.Warn("heartbeat: local cache write failed", "error", err)
			}
		}
	}
}

func (d *Driver) ensurePath(path string) {
	exists, _, _ := d.zkClient.Exists(path)
	if !exists {
		d.zkClient.Create(path, []byte{}, 0, zk.WorldACL(zk.PermAll))
	}
}

func (d *Driver) saveLocalCache(info NodeInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(d.cachePath, data, 0644)
}

func (d *Driver) loadLocalCache() (NodeInfo, error) {
	data, err := os.ReadFile(d.cachePath)
	if err != nil {
		return NodeInfo{}, err
	}
	var info NodeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return NodeInfo{}, err
	}
	return info, nil
}

// Close releases the underlying ZooKeeper connection.
func (d *Driver) Close() {
	d.zkClient.Close()
}
